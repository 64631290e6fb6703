// Package executor defines the remote task runner contract. The engine
// sequences tasks; an Executor fans a single task out to every host the
// inventory currently exposes and reports a per-host split of contacted
// results and unreachable ("dark") hosts.
package executor

import "context"

// Well-known keys in a HostResult.
const (
	KeyChanged     = "changed"
	KeyFailed      = "failed"
	KeySkipped     = "skipped"
	KeyFacts       = "facts"
	KeyStdout      = "stdout"
	KeyStdoutLines = "stdout_lines"
	KeyMsg         = "msg"
	KeyRC          = "rc"
)

// HostResult is the raw outcome of one module invocation on one host.
// Executors populate the well-known keys above; modules may add their own.
type HostResult map[string]interface{}

// Changed reports whether the result indicates a state change.
func (r HostResult) Changed() bool { return truthy(r[KeyChanged]) }

// Failed reports whether the result indicates a failure.
func (r HostResult) Failed() bool { return truthy(r[KeyFailed]) }

// Skipped reports whether the host skipped the task (conditional guard).
func (r HostResult) Skipped() bool { return truthy(r[KeySkipped]) }

// Facts returns the fact map gathered by the invocation, or nil.
func (r HostResult) Facts() map[string]interface{} {
	if m, ok := r[KeyFacts].(map[string]interface{}); ok {
		return m
	}
	return nil
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != "" && t != "false" && t != "0"
	default:
		return false
	}
}

// Result is the per-host split an Executor returns for one task dispatch.
// Contacted holds hosts that responded (success, failure or skip alike);
// Dark holds hosts that could not be reached at all.
type Result struct {
	Contacted map[string]HostResult `json:"contacted"`
	Dark      map[string]HostResult `json:"dark"`
}

// NewResult returns an empty Result with both maps allocated.
func NewResult() *Result {
	return &Result{
		Contacted: make(map[string]HostResult),
		Dark:      make(map[string]HostResult),
	}
}

// Empty reports whether no host was contacted and none was unreachable.
// The engine treats an empty mid-batch result as host exhaustion.
func (r *Result) Empty() bool {
	return r == nil || (len(r.Contacted) == 0 && len(r.Dark) == 0)
}

// PlayContext carries the play-level connection settings a task inherits.
// It is an immutable snapshot passed alongside the task spec, never a live
// reference into the play.
type PlayContext struct {
	Name       string
	BaseDir    string
	RemoteUser string
	RemotePort int
	Transport  string
	Sudo       bool
	SudoUser   string
}

// TaskSpec describes one module invocation the engine asks an Executor to
// fan out. Pattern is resolved by the executor against the inventory's
// current restriction state. Forks bounds the host fan-out for this
// invocation; zero leaves the executor's own bound in effect.
type TaskSpec struct {
	Pattern     string
	Module      string
	Args        map[string]interface{}
	Vars        map[string]interface{}
	Conditional string
	Forks       int
	Play        PlayContext
}

// Poller tracks an asynchronously launched task until completion or deadline.
type Poller interface {
	// Wait polls job status until every launched host reports completion or
	// seconds elapse, whichever comes first, checking every interval seconds.
	// It returns the results collected so far; hosts still running are NOT
	// included and remain listed by Outstanding.
	Wait(ctx context.Context, seconds, interval int) (*Result, error)

	// Outstanding returns the hosts whose jobs have not completed.
	Outstanding() []string
}

// Executor dispatches a task to many hosts concurrently and returns once
// every host has responded or been marked unreachable. Run is synchronous
// from the engine's point of view; RunAsync returns as soon as the job has
// been launched on each host, with a Poller for the completion phase.
type Executor interface {
	Run(ctx context.Context, spec TaskSpec) (*Result, error)
	RunAsync(ctx context.Context, spec TaskSpec, seconds int) (*Result, Poller, error)
}
