package command

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Result holds the outcome of executing a shell command on the control host.
type Result struct {
	// Stdout contains the standard output captured from the command.
	Stdout string
	// Stderr contains the standard error captured from the command.
	Stderr string
	// ExitCode is the exit status code returned by the command. A value of
	// -1 indicates the command could not be started or was terminated before
	// it completed (e.g. command not found, context cancelled).
	ExitCode int
}

// Runner defines the interface for running shell commands locally. The
// command and shell modules go through this, which keeps their process
// handling in one place and lets tests substitute a fake.
type Runner interface {
	// Shell runs the command line through /bin/sh -c in workingDir (empty
	// means inherit). A non-zero exit code is not an error; the returned
	// error covers only failures to run the command at all.
	Shell(ctx context.Context, commandLine string, workingDir string) (*Result, error)
}

type defaultRunner struct{}

// NewRunner creates the os/exec backed runner.
func NewRunner() Runner {
	return &defaultRunner{}
}

func (r *defaultRunner) Shell(ctx context.Context, commandLine string, workingDir string) (*Result, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", commandLine)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	if workingDir != "" {
		cmd.Dir = workingDir
	}

	result := &Result{ExitCode: -1}
	err := cmd.Run()
	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()

	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The command ran; the caller inspects ExitCode.
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}

	result.ExitCode = 0
	return result, nil
}
