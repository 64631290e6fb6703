package executor

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/drover-labs/drover/internal/command"
	"github.com/drover-labs/drover/internal/paramutil"
	"github.com/drover-labs/drover/pkg/drover/v1/executor"
)

// shellRunner executes the command and shell modules' command lines. Tests
// may swap it for a fake before registering modules.
var shellRunner = command.NewRunner()

// registerBuiltins wires the module set every Local executor ships with.
// Registration of builtins into a fresh table cannot collide.
func registerBuiltins(l *Local) {
	_ = l.RegisterModule("setup", moduleSetup)
	_ = l.RegisterModule("ping", modulePing)
	_ = l.RegisterModule("command", moduleCommand)
	_ = l.RegisterModule("shell", moduleCommand)
	_ = l.RegisterModule("debug", moduleDebug)
	_ = l.RegisterModule("fail", moduleFail)
}

// moduleSetup gathers control-host facts, folding any key=value args in as
// user-supplied facts the way the fact-gathering step expects.
func moduleSetup(ctx context.Context, host string, spec executor.TaskSpec) executor.HostResult {
	hostname, _ := os.Hostname()
	facts := map[string]interface{}{
		"drover_hostname": hostname,
		"drover_system":   runtime.GOOS,
		"drover_arch":     runtime.GOARCH,
		"drover_datetime": time.Now().Format(time.RFC3339),
	}
	for key, value := range spec.Args {
		facts[key] = value
	}
	return executor.HostResult{
		executor.KeyFacts:   facts,
		executor.KeyChanged: false,
	}
}

func modulePing(ctx context.Context, host string, spec executor.TaskSpec) executor.HostResult {
	return executor.HostResult{"ping": "pong", executor.KeyChanged: false}
}

// moduleCommand runs the cmd argument through the shell and reports rc,
// stdout and stderr. A non-zero exit marks the host failed.
func moduleCommand(ctx context.Context, host string, spec executor.TaskSpec) executor.HostResult {
	cmdStr, err := paramutil.GetRequiredString(spec.Args, "cmd")
	if err != nil {
		return executor.HostResult{
			executor.KeyFailed: true,
			executor.KeyMsg:    err.Error(),
		}
	}
	chdir, _, err := paramutil.GetOptionalString(spec.Args, "chdir")
	if err != nil {
		return executor.HostResult{
			executor.KeyFailed: true,
			executor.KeyMsg:    err.Error(),
		}
	}

	res, err := shellRunner.Shell(ctx, cmdStr, chdir)
	if err != nil {
		return executor.HostResult{
			executor.KeyFailed: true,
			executor.KeyMsg:    err.Error(),
		}
	}

	result := executor.HostResult{
		executor.KeyRC:      res.ExitCode,
		executor.KeyStdout:  res.Stdout,
		"stderr":            res.Stderr,
		executor.KeyChanged: true,
	}
	if res.ExitCode != 0 {
		result[executor.KeyFailed] = true
		result[executor.KeyMsg] = fmt.Sprintf("command exited with rc=%d", res.ExitCode)
	}
	return result
}

func moduleDebug(ctx context.Context, host string, spec executor.TaskSpec) executor.HostResult {
	msg, _, _ := paramutil.GetOptionalString(spec.Args, "msg")
	return executor.HostResult{
		executor.KeyMsg:     msg,
		executor.KeyChanged: false,
	}
}

func moduleFail(ctx context.Context, host string, spec executor.TaskSpec) executor.HostResult {
	msg, _, _ := paramutil.GetOptionalString(spec.Args, "msg")
	if msg == "" {
		msg = "failed as requested"
	}
	return executor.HostResult{
		executor.KeyFailed: true,
		executor.KeyMsg:    msg,
	}
}
