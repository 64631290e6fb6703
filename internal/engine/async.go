package engine

import (
	"context"

	"github.com/drover-labs/drover/internal/config"
	"github.com/drover-labs/drover/pkg/drover/v1/executor"
)

// runAsyncTask launches the task as a background job on every host. With a
// positive poll interval the engine waits, up to the task's async budget,
// for every host to report back; hosts still running at the deadline are
// synthesized as failed with a timeout message, so they flow through stats
// and events like any other failure. With poll <= 0 the launch
// acknowledgements stand as the task's result (fire and forget).
func (e *Engine) runAsyncTask(ctx context.Context, task *config.Task, spec executor.TaskSpec) (*executor.Result, error) {
	launched, poller, err := e.exec.RunAsync(ctx, spec, task.AsyncSeconds)
	if err != nil {
		return nil, err
	}
	if task.PollInterval <= 0 {
		return launched, nil
	}

	result, err := poller.Wait(ctx, task.AsyncSeconds, task.PollInterval)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = executor.NewResult()
	}
	for host, res := range launched.Dark {
		result.Dark[host] = res
	}
	for _, host := range poller.Outstanding() {
		result.Contacted[host] = executor.HostResult{
			executor.KeyFailed: 1,
			executor.KeyRC:     nil,
			executor.KeyMsg:    "timed out",
		}
	}
	return result, nil
}
