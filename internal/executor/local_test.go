package executor

import (
	"context"
	"testing"
	"time"

	"github.com/drover-labs/drover/internal/inventory"
	"github.com/drover-labs/drover/internal/logger"
	"github.com/drover-labs/drover/internal/template"
	"github.com/drover-labs/drover/pkg/drover/v1/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T, hosts ...string) *Local {
	t.Helper()
	inv := inventory.NewMemoryInventory(hosts, nil)
	return NewLocal(inv, template.NewGoRenderer(), logger.NewDefaultLogger("ERROR"), 4)
}

func TestLocalRunPing(t *testing.T) {
	l := newTestLocal(t, "h1", "h2")
	result, err := l.Run(context.Background(), executor.TaskSpec{Pattern: "all", Module: "ping"})
	require.NoError(t, err)
	require.Len(t, result.Contacted, 2)
	assert.Empty(t, result.Dark)
	assert.Equal(t, "pong", result.Contacted["h1"]["ping"])
}

func TestLocalRunUnknownModule(t *testing.T) {
	l := newTestLocal(t, "h1")
	_, err := l.Run(context.Background(), executor.TaskSpec{Pattern: "all", Module: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown module")
}

func TestLocalRunZeroHosts(t *testing.T) {
	l := newTestLocal(t)
	result, err := l.Run(context.Background(), executor.TaskSpec{Pattern: "all", Module: "ping"})
	require.NoError(t, err)
	assert.True(t, result.Empty())
}

func TestLocalCommandCapturesOutput(t *testing.T) {
	l := newTestLocal(t, "h1")
	result, err := l.Run(context.Background(), executor.TaskSpec{
		Pattern: "all",
		Module:  "command",
		Args:    map[string]interface{}{"cmd": "echo hello"},
	})
	require.NoError(t, err)
	res := result.Contacted["h1"]
	assert.Equal(t, 0, res[executor.KeyRC])
	assert.Equal(t, "hello\n", res[executor.KeyStdout])
	assert.True(t, res.Changed())
	assert.False(t, res.Failed())
}

func TestLocalCommandNonZeroExitFails(t *testing.T) {
	l := newTestLocal(t, "h1")
	result, err := l.Run(context.Background(), executor.TaskSpec{
		Pattern: "all",
		Module:  "command",
		Args:    map[string]interface{}{"cmd": "exit 3"},
	})
	require.NoError(t, err)
	res := result.Contacted["h1"]
	assert.Equal(t, 3, res[executor.KeyRC])
	assert.True(t, res.Failed())
}

func TestLocalConditionalSkips(t *testing.T) {
	l := newTestLocal(t, "h1")
	result, err := l.Run(context.Background(), executor.TaskSpec{
		Pattern:     "all",
		Module:      "ping",
		Conditional: "{{ .do_it }}",
		Vars:        map[string]interface{}{"do_it": "false"},
	})
	require.NoError(t, err)
	assert.True(t, result.Contacted["h1"].Skipped())
}

func TestLocalSetupGathersFacts(t *testing.T) {
	l := newTestLocal(t, "h1")
	result, err := l.Run(context.Background(), executor.TaskSpec{
		Pattern: "all",
		Module:  "setup",
		Args:    map[string]interface{}{"tier": "web"},
	})
	require.NoError(t, err)
	facts := result.Contacted["h1"].Facts()
	require.NotNil(t, facts)
	assert.Equal(t, "web", facts["tier"])
	assert.NotEmpty(t, facts["drover_system"])
}

func TestLocalRunAsyncCompletes(t *testing.T) {
	l := newTestLocal(t, "h1", "h2")
	initial, poller, err := l.RunAsync(context.Background(), executor.TaskSpec{
		Pattern: "all",
		Module:  "command",
		Args:    map[string]interface{}{"cmd": "true"},
	}, 10)
	require.NoError(t, err)
	require.Len(t, initial.Contacted, 2)
	assert.Equal(t, 1, initial.Contacted["h1"]["started"])

	result, err := poller.Wait(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.Len(t, result.Contacted, 2)
	assert.Empty(t, poller.Outstanding())
}

func TestLocalRunAsyncTimeoutLeavesOutstanding(t *testing.T) {
	l := newTestLocal(t, "h1")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	_, poller, err := l.RunAsync(ctx, executor.TaskSpec{
		Pattern: "all",
		Module:  "command",
		Args:    map[string]interface{}{"cmd": "sleep 30"},
	}, 1)
	require.NoError(t, err)

	start := time.Now()
	result, err := poller.Wait(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Empty(t, result.Contacted)
	assert.Equal(t, []string{"h1"}, poller.Outstanding())
	assert.Less(t, time.Since(start), 5*time.Second)
}
