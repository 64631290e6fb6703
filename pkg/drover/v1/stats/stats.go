// Package stats accumulates per-host outcome counts across a whole engine
// run. The aggregator is a required engine collaborator: the availability
// filter consults it before every task, and the final run summary is derived
// from it.
package stats

import (
	"sort"
	"sync"

	"github.com/drover-labs/drover/pkg/drover/v1/executor"
)

// Summary holds the final per-host counters reported at the end of a run.
type Summary struct {
	Ok          int `json:"ok"`
	Changed     int `json:"changed"`
	Unreachable int `json:"unreachable"`
	Failures    int `json:"failures"`
	Skipped     int `json:"skipped"`
}

// Aggregator is the append-only per-host outcome store. Counts only ever
// increase within a run. All methods are safe for concurrent use, though the
// engine itself writes from a single goroutine.
type Aggregator struct {
	mu        sync.RWMutex
	processed map[string]int
	ok        map[string]int
	changed   map[string]int
	dark      map[string]int
	failures  map[string]int
	skipped   map[string]int
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		processed: make(map[string]int),
		ok:        make(map[string]int),
		changed:   make(map[string]int),
		dark:      make(map[string]int),
		failures:  make(map[string]int),
		skipped:   make(map[string]int),
	}
}

// Compute folds one task dispatch result into the counters. When
// ignoreErrors is set, per-host failures count as ok instead of failures
// (the host still participates in availability reduction through the result
// itself, not through stats). Setup results never count as changed.
func (a *Aggregator) Compute(result *executor.Result, ignoreErrors, setup bool) {
	if result == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for host, hr := range result.Contacted {
		a.processed[host]++
		switch {
		case hr.Skipped():
			a.skipped[host]++
		case hr.Failed():
			if ignoreErrors {
				a.ok[host]++
			} else {
				a.failures[host]++
			}
		default:
			a.ok[host]++
			if !setup && hr.Changed() {
				a.changed[host]++
			}
		}
	}
	for host := range result.Dark {
		a.processed[host]++
		a.dark[host]++
	}
}

// Processed returns the sorted list of hosts any task has touched.
func (a *Aggregator) Processed() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	hosts := make([]string, 0, len(a.processed))
	for h := range a.processed {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// FailedOrUnreachable reports whether the host has any recorded failure or
// unreachable event. The engine subtracts such hosts from the available set
// before every task.
func (a *Aggregator) FailedOrUnreachable(host string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.failures[host] > 0 || a.dark[host] > 0
}

// Summarize returns the counters for one host.
func (a *Aggregator) Summarize(host string) Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Summary{
		Ok:          a.ok[host],
		Changed:     a.changed[host],
		Unreachable: a.dark[host],
		Failures:    a.failures[host],
		Skipped:     a.skipped[host],
	}
}
