package executor

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/drover-labs/drover/internal/paramutil"
	"github.com/drover-labs/drover/internal/retry"
	"github.com/drover-labs/drover/pkg/drover/v1/errors"
	"github.com/drover-labs/drover/pkg/drover/v1/executor"
	"github.com/drover-labs/drover/pkg/drover/v1/inventory"
	droverlog "github.com/drover-labs/drover/pkg/drover/v1/log"
	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// SSHOptions configures how the SSH executor authenticates. Play-level
// remote_user and port settings override User and Port per dispatch.
type SSHOptions struct {
	User     string
	Port     int
	Password string
	KeyPath  string
	Timeout  time.Duration
}

// SSH fans tasks out to hosts over SSH sessions, with SFTP for file
// transfer. Hosts that cannot be dialed land in the dark set instead of
// failing the dispatch.
type SSH struct {
	inv     inventory.Inventory
	log     droverlog.Logger
	opts    SSHOptions
	forks   int
	retrier *retry.Helper
}

// NewSSH creates an SSH executor. forks bounds the per-task host fan-out.
func NewSSH(inv inventory.Inventory, log droverlog.Logger, opts SSHOptions, forks int) *SSH {
	if forks < 1 {
		forks = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &SSH{
		inv:     inv,
		log:     log.With("component", "SSHExecutor"),
		opts:    opts,
		forks:   forks,
		retrier: retry.NewHelper(log),
	}
}

var _ executor.Executor = (*SSH)(nil)

// Run dispatches the task over SSH to every host the pattern resolves to and
// blocks until all have responded or been marked dark.
func (s *SSH) Run(ctx context.Context, spec executor.TaskSpec) (*executor.Result, error) {
	hosts := s.inv.ListHosts(spec.Pattern)
	result := executor.NewResult()
	if len(hosts) == 0 {
		return result, nil
	}
	if !remoteModuleSupported(spec.Module) {
		return nil, errors.NewConfigError(fmt.Sprintf("unknown remote module '%s'", spec.Module), nil)
	}

	var wg sync.WaitGroup
	var resultMu sync.Mutex
	sem := make(chan struct{}, forkBound(spec.Forks, s.forks))
	for _, host := range hosts {
		wg.Add(1)
		sem <- struct{}{}
		go func(host string) {
			defer wg.Done()
			defer func() { <-sem }()
			res, dark := s.runOnHost(ctx, host, spec)
			resultMu.Lock()
			if dark {
				result.Dark[host] = res
			} else {
				result.Contacted[host] = res
			}
			resultMu.Unlock()
		}(host)
	}
	wg.Wait()
	return result, nil
}

// RunAsync launches the dispatch for each host in the background and returns
// a poller over the in-flight jobs. Asynchrony lives on the control side;
// each host still runs one ordinary SSH session.
func (s *SSH) RunAsync(ctx context.Context, spec executor.TaskSpec, seconds int) (*executor.Result, executor.Poller, error) {
	hosts := s.inv.ListHosts(spec.Pattern)
	result := executor.NewResult()
	if !remoteModuleSupported(spec.Module) {
		return nil, nil, errors.NewConfigError(fmt.Sprintf("unknown remote module '%s'", spec.Module), nil)
	}

	job := newAsyncJob(uuid.NewString(), hosts)
	for _, host := range hosts {
		result.Contacted[host] = executor.HostResult{
			"started": 1,
			"job_id":  job.id,
		}
		go func(host string) {
			res, dark := s.runOnHost(ctx, host, spec)
			if dark {
				res[executor.KeyFailed] = true
			}
			job.complete(host, res)
		}(host)
	}
	return result, &localPoller{job: job}, nil
}

func remoteModuleSupported(name string) bool {
	switch name {
	case "ping", "command", "shell", "copy", "setup":
		return true
	default:
		return false
	}
}

// runOnHost dials the host and executes the module. The second return value
// reports that the host was unreachable.
func (s *SSH) runOnHost(ctx context.Context, host string, spec executor.TaskSpec) (executor.HostResult, bool) {
	client, err := s.connect(ctx, host, spec.Play)
	if err != nil {
		s.log.Debugf("host %s unreachable: %v", host, err)
		return executor.HostResult{
			executor.KeyFailed: true,
			executor.KeyMsg:    err.Error(),
		}, true
	}
	defer client.Close()

	switch spec.Module {
	case "ping":
		return executor.HostResult{"ping": "pong", executor.KeyChanged: false}, false
	case "setup":
		return s.gatherFacts(client, spec), false
	case "copy":
		return s.copyFile(client, spec), false
	default:
		return s.runCommand(client, spec), false
	}
}

// connect opens an SSH connection using password, explicit key, default key,
// or agent auth, in that order of registration. The dial itself is retried
// with backoff, since a briefly unreachable host should not go dark.
func (s *SSH) connect(ctx context.Context, host string, play executor.PlayContext) (*ssh.Client, error) {
	var authMethods []ssh.AuthMethod

	if s.opts.Password != "" {
		authMethods = append(authMethods, ssh.Password(s.opts.Password))
	}
	if s.opts.KeyPath != "" {
		key, err := os.ReadFile(s.opts.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	} else {
		if usr, err := user.Current(); err == nil {
			if key, err := os.ReadFile(filepath.Join(usr.HomeDir, ".ssh", "id_rsa")); err == nil {
				if signer, err := ssh.ParsePrivateKey(key); err == nil {
					authMethods = append(authMethods, ssh.PublicKeys(signer))
				}
			}
		}
	}
	if sshAgent, err := net.Dial("unix", os.Getenv("SSH_AUTH_SOCK")); err == nil {
		authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(sshAgent).Signers))
	}
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication methods available")
	}

	sshUser := play.RemoteUser
	if sshUser == "" {
		sshUser = s.opts.User
	}
	port := play.RemotePort
	if port == 0 {
		port = s.opts.Port
	}
	if port == 0 {
		port = 22
	}

	config := &ssh.ClientConfig{
		User:            sshUser,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.opts.Timeout,
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	var client *ssh.Client
	err := s.retrier.Do(ctx, retry.Config{
		Attempts:      3,
		Delay:         500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        0.25,
		Label:         "ssh dial " + addr,
	}, func(context.Context) error {
		var dialErr error
		client, dialErr = ssh.Dial("tcp", addr, config)
		return dialErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}
	return client, nil
}

// runCommand executes the cmd argument in a session, wrapping it in sudo
// when the play asks for privilege escalation.
func (s *SSH) runCommand(client *ssh.Client, spec executor.TaskSpec) executor.HostResult {
	cmdStr, err := paramutil.GetRequiredString(spec.Args, "cmd")
	if err != nil {
		return executor.HostResult{
			executor.KeyFailed: true,
			executor.KeyMsg:    err.Error(),
		}
	}
	if spec.Play.Sudo {
		sudoUser := spec.Play.SudoUser
		if sudoUser == "" {
			sudoUser = "root"
		}
		cmdStr = fmt.Sprintf("sudo -u %s /bin/sh -c %s", sudoUser, shellQuote(cmdStr))
	}

	session, err := client.NewSession()
	if err != nil {
		return executor.HostResult{executor.KeyFailed: true, executor.KeyMsg: err.Error()}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	rc := 0
	if err := session.Run(cmdStr); err != nil {
		if exitErr, isExit := err.(*ssh.ExitError); isExit {
			rc = exitErr.ExitStatus()
		} else {
			return executor.HostResult{executor.KeyFailed: true, executor.KeyMsg: err.Error()}
		}
	}

	result := executor.HostResult{
		executor.KeyRC:      rc,
		executor.KeyStdout:  stdout.String(),
		"stderr":            stderr.String(),
		executor.KeyChanged: true,
	}
	if rc != 0 {
		result[executor.KeyFailed] = true
		result[executor.KeyMsg] = fmt.Sprintf("command exited with rc=%d", rc)
	}
	return result
}

// gatherFacts collects a minimal remote fact set over one session.
func (s *SSH) gatherFacts(client *ssh.Client, spec executor.TaskSpec) executor.HostResult {
	session, err := client.NewSession()
	if err != nil {
		return executor.HostResult{executor.KeyFailed: true, executor.KeyMsg: err.Error()}
	}
	defer session.Close()

	out, err := session.Output("uname -s; uname -m; hostname")
	if err != nil {
		return executor.HostResult{executor.KeyFailed: true, executor.KeyMsg: err.Error()}
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	facts := map[string]interface{}{}
	if len(lines) > 0 {
		facts["drover_system"] = strings.TrimSpace(lines[0])
	}
	if len(lines) > 1 {
		facts["drover_arch"] = strings.TrimSpace(lines[1])
	}
	if len(lines) > 2 {
		facts["drover_hostname"] = strings.TrimSpace(lines[2])
	}
	for key, value := range spec.Args {
		facts[key] = value
	}
	return executor.HostResult{
		executor.KeyFacts:   facts,
		executor.KeyChanged: false,
	}
}

// copyFile uploads the src argument (resolved against the play's basedir) to
// dest via SFTP.
func (s *SSH) copyFile(client *ssh.Client, spec executor.TaskSpec) executor.HostResult {
	src, err := paramutil.GetRequiredString(spec.Args, "src")
	if err != nil {
		return executor.HostResult{executor.KeyFailed: true, executor.KeyMsg: err.Error()}
	}
	dest, err := paramutil.GetRequiredString(spec.Args, "dest")
	if err != nil {
		return executor.HostResult{executor.KeyFailed: true, executor.KeyMsg: err.Error()}
	}
	if !filepath.IsAbs(src) && spec.Play.BaseDir != "" {
		src = filepath.Join(spec.Play.BaseDir, src)
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return executor.HostResult{executor.KeyFailed: true, executor.KeyMsg: err.Error()}
	}
	defer sftpClient.Close()

	data, err := os.ReadFile(src)
	if err != nil {
		return executor.HostResult{executor.KeyFailed: true, executor.KeyMsg: err.Error()}
	}
	dstFile, err := sftpClient.Create(dest)
	if err != nil {
		return executor.HostResult{executor.KeyFailed: true, executor.KeyMsg: err.Error()}
	}
	defer dstFile.Close()
	if _, err := dstFile.Write(data); err != nil {
		return executor.HostResult{executor.KeyFailed: true, executor.KeyMsg: err.Error()}
	}

	return executor.HostResult{
		executor.KeyChanged: true,
		"dest":              dest,
		"bytes":             len(data),
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
