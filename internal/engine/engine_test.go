package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	intInventory "github.com/drover-labs/drover/internal/inventory"
	"github.com/drover-labs/drover/internal/logger"
	drover "github.com/drover-labs/drover/pkg/drover/v1"
	"github.com/drover-labs/drover/pkg/drover/v1/events"
	"github.com/drover-labs/drover/pkg/drover/v1/executor"
	"github.com/drover-labs/drover/pkg/drover/v1/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlaybook(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playbook.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestEngine(t *testing.T, playbook string, hosts []string, opts ...drover.EngineOption) (*Engine, *mockExecutor, *recordingBus) {
	t.Helper()
	inv := intInventory.NewMemoryInventory(hosts, nil)
	exec := newMockExecutor(inv)
	bus := &recordingBus{}
	base := []drover.EngineOption{
		drover.WithInventory(inv),
		drover.WithExecutor(exec),
		drover.WithEventBus(bus),
		drover.WithStats(stats.New()),
	}
	eng, err := NewEngine(logger.NewDefaultLogger("error"), writePlaybook(t, playbook), append(base, opts...)...)
	require.NoError(t, err)
	return eng, exec, bus
}

func changedResult(string, executor.TaskSpec) executor.HostResult {
	return executor.HostResult{executor.KeyChanged: true, executor.KeyRC: 0}
}

func TestEngineRequiresCollaborators(t *testing.T) {
	path := writePlaybook(t, "- hosts: all\n  tasks:\n    - module: ping\n")
	_, err := NewEngine(logger.NewDefaultLogger("error"), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inventory")
}

func TestEngineHandlerFiresOncePerBatchAndClears(t *testing.T) {
	playbook := `
- hosts: all
  gather_facts: false
  tasks:
    - name: touch config
      module: command
      args: { cmd: "true" }
      notify: restart service
    - name: touch config again
      module: command
      args: { cmd: "true" }
      notify: restart service
    - name: steady state
      module: ping
  handlers:
    - name: restart service
      module: restart
`
	eng, exec, bus := newTestEngine(t, playbook, []string{"h1", "h2"})
	exec.on("command", changedResult)
	exec.on("ping", func(string, executor.TaskSpec) executor.HostResult {
		return executor.HostResult{executor.KeyChanged: false}
	})

	_, err := eng.Run(context.Background())
	require.NoError(t, err)

	restarts := exec.callsFor("restart")
	require.Len(t, restarts, 1, "handler must fire exactly once per batch despite two notifying tasks")
	assert.ElementsMatch(t, []string{"h1", "h2"}, restarts[0].hosts)

	// One notification event per handler/host pair, deduped.
	assert.Len(t, bus.byType(events.NotifyTriggered), 2)

	for i := range eng.docs[0].Play.Handlers {
		assert.Empty(t, eng.docs[0].Play.Handlers[i].NotifiedBy, "notification state must clear after firing")
	}
}

func TestEngineHandlerSkippedWithoutChanges(t *testing.T) {
	playbook := `
- hosts: all
  gather_facts: false
  tasks:
    - module: ping
  handlers:
    - name: restart service
      module: restart
`
	eng, exec, _ := newTestEngine(t, playbook, []string{"h1"})
	exec.on("ping", func(string, executor.TaskSpec) executor.HostResult {
		return executor.HostResult{executor.KeyChanged: false}
	})

	_, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, exec.callsFor("restart"))
}

func TestEngineUnknownHandlerIsFatal(t *testing.T) {
	playbook := `
- hosts: all
  gather_facts: false
  tasks:
    - module: command
      args: { cmd: "true" }
      notify: no such handler
`
	eng, exec, _ := newTestEngine(t, playbook, []string{"h1"})
	exec.on("command", changedResult)

	_, err := eng.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such handler")
}

func TestEngineSerialBatching(t *testing.T) {
	playbook := `
- hosts: all
  gather_facts: false
  serial: 2
  tasks:
    - module: command
      args: { cmd: "true" }
      notify: restart service
  handlers:
    - name: restart service
      module: restart
`
	eng, exec, _ := newTestEngine(t, playbook, []string{"h1", "h2", "h3", "h4", "h5"})
	exec.on("command", changedResult)

	_, err := eng.Run(context.Background())
	require.NoError(t, err)

	commands := exec.callsFor("command")
	require.Len(t, commands, 3)
	assert.Equal(t, []string{"h1", "h2"}, commands[0].hosts)
	assert.Equal(t, []string{"h3", "h4"}, commands[1].hosts)
	assert.Equal(t, []string{"h5"}, commands[2].hosts)

	// Handlers fire once per batch, scoped to that batch's notifying hosts.
	restarts := exec.callsFor("restart")
	require.Len(t, restarts, 3)
	assert.Equal(t, []string{"h1", "h2"}, restarts[0].hosts)
	assert.Equal(t, []string{"h3", "h4"}, restarts[1].hosts)
	assert.Equal(t, []string{"h5"}, restarts[2].hosts)
}

func TestEngineHostExhaustionAbortsRun(t *testing.T) {
	playbook := `
- hosts: all
  gather_facts: false
  tasks:
    - module: breaker
    - module: never
- hosts: all
  gather_facts: false
  tasks:
    - module: second_play
`
	eng, exec, bus := newTestEngine(t, playbook, []string{"h1", "h2"})
	exec.on("breaker", func(string, executor.TaskSpec) executor.HostResult {
		return executor.HostResult{executor.KeyFailed: true, executor.KeyMsg: "boom"}
	})

	summaries, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, exec.callsFor("never"), "tasks after exhaustion must not dispatch")
	assert.Empty(t, exec.callsFor("second_play"), "later plays must not run after an aborted play")
	assert.Len(t, bus.byType(events.NoHostsRemaining), 1)
	assert.Len(t, bus.byType(events.HostFailed), 2)

	require.Contains(t, summaries, "h1")
	assert.Equal(t, 1, summaries["h1"].Failures)
}

func TestEngineFailureIgnoredKeepsHost(t *testing.T) {
	playbook := `
- hosts: all
  gather_facts: false
  tasks:
    - module: breaker
      ignore_errors: true
    - module: after
`
	eng, exec, bus := newTestEngine(t, playbook, []string{"h1"})
	exec.on("breaker", func(string, executor.TaskSpec) executor.HostResult {
		return executor.HostResult{executor.KeyFailed: true}
	})

	_, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, exec.callsFor("after"), 1)
	assert.Equal(t, []string{"h1"}, exec.callsFor("after")[0].hosts)
	assert.Empty(t, bus.byType(events.HostFailed))
}

func TestEngineExtraVarsOverrideFacts(t *testing.T) {
	playbook := `
- hosts: all
  tasks:
    - module: probe
      register: probe_out
`
	eng, exec, _ := newTestEngine(t, playbook, []string{"h1"},
		drover.WithExtraVars(map[string]interface{}{"tier": "override"}))
	exec.on("setup", func(string, executor.TaskSpec) executor.HostResult {
		return executor.HostResult{executor.KeyFacts: map[string]interface{}{
			"tier":     "gathered",
			"hostname": "h1.example",
		}}
	})
	exec.on("probe", func(string, executor.TaskSpec) executor.HostResult {
		return executor.HostResult{
			executor.KeyChanged: false,
			executor.KeyFacts:   map[string]interface{}{"tier": "from_task"},
			executor.KeyStdout:  "one\ntwo\n",
		}
	})

	_, err := eng.Run(context.Background())
	require.NoError(t, err)

	cached := eng.cache.Get("h1")
	assert.Equal(t, "override", cached["tier"], "extra vars must win over gathered and task facts")
	assert.Equal(t, "h1.example", cached["hostname"])

	registered, ok := cached["probe_out"].(map[string]interface{})
	require.True(t, ok, "register must store the host result")
	assert.Equal(t, []interface{}{"one", "two"}, registered[executor.KeyStdoutLines])
}

func TestEngineGatherFactsOnlyForUncachedHosts(t *testing.T) {
	playbook := `
- hosts: all
  tasks:
    - module: ping
- hosts: all
  tasks:
    - module: ping
`
	eng, exec, _ := newTestEngine(t, playbook, []string{"h1", "h2"})

	_, err := eng.Run(context.Background())
	require.NoError(t, err)

	// The second play finds both hosts already gathered and skips setup.
	setups := exec.callsFor("setup")
	require.Len(t, setups, 1)
	assert.ElementsMatch(t, []string{"h1", "h2"}, setups[0].hosts)
}

func TestEngineForksCarriedOnEveryDispatch(t *testing.T) {
	playbook := `
- hosts: all
  gather_facts: true
  tasks:
    - module: ping
`
	eng, exec, _ := newTestEngine(t, playbook, []string{"h1", "h2"}, drover.WithForks(3))

	_, err := eng.Run(context.Background())
	require.NoError(t, err)

	for _, module := range []string{"setup", "ping"} {
		calls := exec.callsFor(module)
		require.Len(t, calls, 1, module)
		assert.Equal(t, 3, calls[0].forks, module)
	}
}

func TestEngineGatherFactsSkipsFailedHosts(t *testing.T) {
	playbook := `
- hosts: all
  gather_facts: false
  tasks:
    - module: breaker
- hosts: all
  gather_facts: true
  tasks:
    - module: ping
`
	eng, exec, _ := newTestEngine(t, playbook, []string{"h1", "h2"})
	exec.on("breaker", func(host string, _ executor.TaskSpec) executor.HostResult {
		if host == "h2" {
			return executor.HostResult{executor.KeyFailed: true}
		}
		return executor.HostResult{}
	})

	summaries, err := eng.Run(context.Background())
	require.NoError(t, err)

	// The second play gathers facts for the surviving host only.
	setups := exec.callsFor("setup")
	require.Len(t, setups, 1)
	assert.Equal(t, []string{"h1"}, setups[0].hosts)

	require.Contains(t, summaries, "h2")
	assert.Equal(t, 0, summaries["h2"].Ok, "a failed host must not accrue setup successes")
	assert.Equal(t, 1, summaries["h2"].Failures)
}

func TestEngineAsyncTimeoutSynthesizesFailure(t *testing.T) {
	playbook := `
- hosts: all
  gather_facts: false
  tasks:
    - module: long_job
      async: 30
      poll: 2
    - module: after
`
	eng, exec, bus := newTestEngine(t, playbook, []string{"h1", "h2"})
	exec.asyncFn = func(executor.TaskSpec, int) (*executor.Result, executor.Poller, error) {
		launched := executor.NewResult()
		launched.Contacted["h1"] = executor.HostResult{"started": 1}
		launched.Contacted["h2"] = executor.HostResult{"started": 1}
		done := executor.NewResult()
		done.Contacted["h1"] = executor.HostResult{executor.KeyChanged: true, executor.KeyRC: 0}
		return launched, &mockPoller{result: done, outstanding: []string{"h2"}}, nil
	}

	summaries, err := eng.Run(context.Background())
	require.NoError(t, err)

	require.Contains(t, summaries, "h2")
	assert.Equal(t, 1, summaries["h2"].Failures, "an outstanding host at the deadline counts as failed")
	assert.Equal(t, 0, summaries["h1"].Failures)
	assert.Len(t, bus.byType(events.HostFailed), 1)

	// h1 survives and runs the follow-up task alone.
	require.Len(t, exec.callsFor("after"), 1)
	assert.Equal(t, []string{"h1"}, exec.callsFor("after")[0].hosts)
}

func TestEngineFireAndForgetUsesLaunchAck(t *testing.T) {
	playbook := `
- hosts: all
  gather_facts: false
  tasks:
    - module: long_job
      async: 30
`
	eng, exec, _ := newTestEngine(t, playbook, []string{"h1"})
	exec.asyncFn = func(executor.TaskSpec, int) (*executor.Result, executor.Poller, error) {
		launched := executor.NewResult()
		launched.Contacted["h1"] = executor.HostResult{"started": 1, "job_id": "j1"}
		return launched, &mockPoller{result: executor.NewResult(), outstanding: []string{"h1"}}, nil
	}

	summaries, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summaries["h1"].Failures, "fire-and-forget never waits on the poller")
	assert.Equal(t, 1, summaries["h1"].Ok)
}

func TestEngineNoHostsMatchedIsBenign(t *testing.T) {
	playbook := `
- hosts: nonexistent
  gather_facts: false
  tasks:
    - module: ping
- hosts: all
  gather_facts: false
  tasks:
    - module: ping
`
	eng, exec, bus := newTestEngine(t, playbook, []string{"h1"})

	_, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, bus.byType(events.NoHostsMatched), 1)
	require.Len(t, exec.callsFor("ping"), 1, "the second play still runs")
}

func TestEngineConditionalPassedToExecutor(t *testing.T) {
	playbook := `
- hosts: all
  gather_facts: false
  vars:
    do_it: "yes"
  tasks:
    - module: guarded
      when: "{{ .do_it }}"
      args: { cmd: "echo {{ .do_it }}" }
`
	eng, exec, _ := newTestEngine(t, playbook, []string{"h1"})
	var seen executor.TaskSpec
	exec.on("guarded", func(_ string, spec executor.TaskSpec) executor.HostResult {
		seen = spec
		return executor.HostResult{executor.KeyChanged: false}
	})

	_, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "{{ .do_it }}", seen.Conditional, "guards are evaluated by the executor, not pre-rendered")
	assert.Equal(t, "echo yes", seen.Args["cmd"], "argument values are rendered before dispatch")
}
