package events

import "time"

// EventType represents the type of a drover engine event.
type EventType string

// Standard drover event types. These cover the lifecycle notifications the
// engine emits while driving a playbook: run and play boundaries, the setup
// (fact-gathering) step, task and handler starts, handler notifications, and
// the two host-set edge conditions.
const (
	RunStart         EventType = "RunStart"
	RunEnd           EventType = "RunEnd"
	PlayStart        EventType = "PlayStart"
	NoHostsMatched   EventType = "NoHostsMatched"   // play pattern matched zero hosts; play skipped
	NoHostsRemaining EventType = "NoHostsRemaining" // available set exhausted mid-play; play aborted
	SetupStart       EventType = "SetupStart"
	TaskStart        EventType = "TaskStart"
	HandlerStart     EventType = "HandlerStart"
	NotifyTriggered  EventType = "NotifyTriggered" // a changed host flagged a handler
	HostUnreachable  EventType = "HostUnreachable"
	HostFailed       EventType = "HostFailed" // includes synthesized async timeouts
)

// Event represents a significant occurrence within the drover engine.
type Event struct {
	// Type categorizes the event.
	Type EventType `json:"type"`
	// Timestamp marks when the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// PlayName identifies the play context, if applicable.
	PlayName string `json:"play_name,omitempty"`
	// TaskName identifies the task or handler context, if applicable. The
	// name is template-expanded before emission.
	TaskName string `json:"task_name,omitempty"`
	// Host identifies the host context for per-host events.
	Host string `json:"host,omitempty"`
	// Payload contains event-specific data.
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Bus defines the interface for publishing engine lifecycle events. The
// engine never consumes a return value from the sink; implementations should
// be non-blocking or handle blocking carefully to avoid slowing the engine.
type Bus interface {
	Emit(event Event)
}
