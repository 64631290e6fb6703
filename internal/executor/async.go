package executor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/drover-labs/drover/pkg/drover/v1/executor"
)

func newAsyncJob(id string, hosts []string) *asyncJob {
	job := &asyncJob{
		id:      id,
		pending: make(map[string]struct{}, len(hosts)),
		done:    make(map[string]executor.HostResult),
	}
	for _, host := range hosts {
		job.pending[host] = struct{}{}
	}
	return job
}

// asyncJob holds the completion state of one async launch across hosts.
type asyncJob struct {
	id string

	mu      sync.Mutex
	pending map[string]struct{}
	done    map[string]executor.HostResult
}

func (j *asyncJob) complete(host string, res executor.HostResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.pending, host)
	j.done[host] = res
}

// harvest moves finished results out of the job and reports how many hosts
// are still running.
func (j *asyncJob) harvest() (map[string]executor.HostResult, int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	finished := j.done
	j.done = make(map[string]executor.HostResult)
	return finished, len(j.pending)
}

func (j *asyncJob) outstanding() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	hosts := make([]string, 0, len(j.pending))
	for host := range j.pending {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}

// localPoller implements executor.Poller against an asyncJob.
type localPoller struct {
	job *asyncJob
}

var _ executor.Poller = (*localPoller)(nil)

// Wait collects job results until every host has finished or seconds elapse.
// Hosts still running at the deadline stay pending and are reported by
// Outstanding; the caller decides how to account for them.
func (p *localPoller) Wait(ctx context.Context, seconds, interval int) (*executor.Result, error) {
	if interval < 1 {
		interval = 1
	}
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	result := executor.NewResult()

	for {
		finished, pending := p.job.harvest()
		for host, res := range finished {
			result.Contacted[host] = res
		}
		if pending == 0 {
			return result, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return result, nil
		}
		sleep := time.Duration(interval) * time.Second
		if sleep > remaining {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func (p *localPoller) Outstanding() []string {
	return p.job.outstanding()
}
