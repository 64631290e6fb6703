package engine

import (
	"context"
	"sync"

	"github.com/drover-labs/drover/pkg/drover/v1/events"
	"github.com/drover-labs/drover/pkg/drover/v1/executor"
	"github.com/drover-labs/drover/pkg/drover/v1/inventory"
)

// dispatch records one executor call: which module ran, which hosts the
// inventory exposed for it at the time of the call, and the fan-out bound
// carried on the spec.
type dispatch struct {
	module string
	hosts  []string
	forks  int
}

// mockExecutor resolves the spec's pattern against the shared inventory, so
// restriction frames pushed by the engine shape what it sees, and answers
// each host from a per-module behavior function.
type mockExecutor struct {
	inv inventory.Inventory

	mu        sync.Mutex
	calls     []dispatch
	behaviors map[string]func(host string, spec executor.TaskSpec) executor.HostResult
	asyncFn   func(spec executor.TaskSpec, seconds int) (*executor.Result, executor.Poller, error)
}

func newMockExecutor(inv inventory.Inventory) *mockExecutor {
	return &mockExecutor{
		inv:       inv,
		behaviors: make(map[string]func(host string, spec executor.TaskSpec) executor.HostResult),
	}
}

var _ executor.Executor = (*mockExecutor)(nil)

// on registers the behavior for a module name.
func (m *mockExecutor) on(module string, fn func(host string, spec executor.TaskSpec) executor.HostResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.behaviors[module] = fn
}

func (m *mockExecutor) Run(_ context.Context, spec executor.TaskSpec) (*executor.Result, error) {
	hosts := m.inv.ListHosts(spec.Pattern)

	m.mu.Lock()
	m.calls = append(m.calls, dispatch{module: spec.Module, hosts: append([]string(nil), hosts...), forks: spec.Forks})
	fn := m.behaviors[spec.Module]
	m.mu.Unlock()

	result := executor.NewResult()
	for _, host := range hosts {
		if fn != nil {
			result.Contacted[host] = fn(host, spec)
		} else {
			result.Contacted[host] = executor.HostResult{executor.KeyChanged: false}
		}
	}
	return result, nil
}

func (m *mockExecutor) RunAsync(ctx context.Context, spec executor.TaskSpec, seconds int) (*executor.Result, executor.Poller, error) {
	if m.asyncFn != nil {
		hosts := m.inv.ListHosts(spec.Pattern)
		m.mu.Lock()
		m.calls = append(m.calls, dispatch{module: spec.Module, hosts: append([]string(nil), hosts...), forks: spec.Forks})
		m.mu.Unlock()
		return m.asyncFn(spec, seconds)
	}
	result, err := m.Run(ctx, spec)
	if err != nil {
		return nil, nil, err
	}
	return result, &mockPoller{result: result}, nil
}

// callsFor returns the recorded dispatches for one module.
func (m *mockExecutor) callsFor(module string) []dispatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []dispatch
	for _, call := range m.calls {
		if call.module == module {
			out = append(out, call)
		}
	}
	return out
}

// mockPoller hands back a canned completion result and outstanding list.
type mockPoller struct {
	result      *executor.Result
	outstanding []string
}

var _ executor.Poller = (*mockPoller)(nil)

func (p *mockPoller) Wait(context.Context, int, int) (*executor.Result, error) {
	return p.result, nil
}

func (p *mockPoller) Outstanding() []string {
	return append([]string(nil), p.outstanding...)
}

// recordingBus captures every emitted event for assertion.
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

var _ events.Bus = (*recordingBus)(nil)

func (b *recordingBus) Emit(event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) byType(t events.EventType) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, event := range b.events {
		if event.Type == t {
			out = append(out, event)
		}
	}
	return out
}
