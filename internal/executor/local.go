package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/drover-labs/drover/pkg/drover/v1/errors"
	"github.com/drover-labs/drover/pkg/drover/v1/executor"
	"github.com/drover-labs/drover/pkg/drover/v1/inventory"
	droverlog "github.com/drover-labs/drover/pkg/drover/v1/log"
	"github.com/drover-labs/drover/pkg/drover/v1/template"
	"github.com/google/uuid"
)

// ModuleFunc executes one module invocation for one host and returns its raw
// result. Implementations must be safe for concurrent calls across hosts.
type ModuleFunc func(ctx context.Context, host string, spec executor.TaskSpec) executor.HostResult

// Local is an in-process executor: modules run as Go functions on the control
// host, fanned out across the target hosts with a bounded worker pool. It
// backs the "local" transport and is the executor used throughout the engine
// tests.
type Local struct {
	inv      inventory.Inventory
	renderer template.Renderer
	log      droverlog.Logger
	forks    int

	mu      sync.RWMutex
	modules map[string]ModuleFunc
}

// NewLocal creates a Local executor with the builtin modules registered.
// forks bounds the per-task host fan-out; values below 1 mean serial.
func NewLocal(inv inventory.Inventory, renderer template.Renderer, log droverlog.Logger, forks int) *Local {
	if forks < 1 {
		forks = 1
	}
	l := &Local{
		inv:      inv,
		renderer: renderer,
		log:      log.With("component", "LocalExecutor"),
		forks:    forks,
		modules:  make(map[string]ModuleFunc),
	}
	registerBuiltins(l)
	return l
}

var _ executor.Executor = (*Local)(nil)

// forkBound picks the fan-out limit for one dispatch: the spec's per-task
// value when set, otherwise the executor's configured bound.
func forkBound(specForks, fallback int) int {
	if specForks > 0 {
		return specForks
	}
	return fallback
}

// RegisterModule adds a module implementation under the given name.
func (l *Local) RegisterModule(name string, fn ModuleFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if name == "" {
		return errors.NewConfigError("module registration error: name cannot be empty", nil)
	}
	if fn == nil {
		return errors.NewConfigError(fmt.Sprintf("module registration error for '%s': function cannot be nil", name), nil)
	}
	if _, exists := l.modules[name]; exists {
		return errors.NewConfigError(fmt.Sprintf("module registration error: duplicate module name '%s'", name), nil)
	}
	l.modules[name] = fn
	return nil
}

func (l *Local) module(name string) (ModuleFunc, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn, exists := l.modules[name]
	if !exists {
		return nil, errors.NewConfigError(fmt.Sprintf("unknown module '%s'", name), nil)
	}
	return fn, nil
}

// Run dispatches the task to every host the inventory currently exposes for
// the spec's pattern and blocks until all have responded.
func (l *Local) Run(ctx context.Context, spec executor.TaskSpec) (*executor.Result, error) {
	hosts := l.inv.ListHosts(spec.Pattern)
	result := executor.NewResult()
	if len(hosts) == 0 {
		return result, nil
	}

	fn, err := l.module(spec.Module)
	if err != nil {
		return nil, err
	}

	if skip, condErr := l.conditionalSkips(spec); condErr != nil {
		return nil, condErr
	} else if skip {
		for _, host := range hosts {
			result.Contacted[host] = executor.HostResult{executor.KeySkipped: true}
		}
		return result, nil
	}

	var wg sync.WaitGroup
	var resultMu sync.Mutex
	sem := make(chan struct{}, forkBound(spec.Forks, l.forks))
	for _, host := range hosts {
		wg.Add(1)
		sem <- struct{}{}
		go func(host string) {
			defer wg.Done()
			defer func() { <-sem }()
			res := fn(ctx, host, spec)
			resultMu.Lock()
			result.Contacted[host] = res
			resultMu.Unlock()
		}(host)
	}
	wg.Wait()
	return result, nil
}

// RunAsync launches the task as a background job on every host and returns
// immediately with a launch acknowledgement per host plus a poller for the
// completion phase.
func (l *Local) RunAsync(ctx context.Context, spec executor.TaskSpec, seconds int) (*executor.Result, executor.Poller, error) {
	hosts := l.inv.ListHosts(spec.Pattern)
	result := executor.NewResult()

	fn, err := l.module(spec.Module)
	if err != nil {
		return nil, nil, err
	}

	job := newAsyncJob(uuid.NewString(), hosts)
	for _, host := range hosts {
		result.Contacted[host] = executor.HostResult{
			"started": 1,
			"job_id":  job.id,
		}
		go func(host string) {
			res := fn(ctx, host, spec)
			job.complete(host, res)
		}(host)
	}
	return result, &localPoller{job: job}, nil
}

// conditionalSkips evaluates the task's guard expression against its
// variables. An empty guard never skips; a guard rendering to a falsy string
// skips every host, since the expression is host-independent at this layer.
func (l *Local) conditionalSkips(spec executor.TaskSpec) (bool, error) {
	if spec.Conditional == "" {
		return false, nil
	}
	rendered, err := l.renderer.Render(spec.Play.BaseDir, spec.Conditional, spec.Vars)
	if err != nil {
		return false, errors.NewValidationError(
			fmt.Sprintf("failed to evaluate conditional %q", spec.Conditional), err)
	}
	switch strings.ToLower(strings.TrimSpace(rendered)) {
	case "", "false", "no", "0":
		return true, nil
	default:
		return false, nil
	}
}
