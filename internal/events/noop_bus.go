package events

import "github.com/drover-labs/drover/pkg/drover/v1/events"

// NoOpEventBus implements the public events.Bus interface and discards every
// event. It is the fallback when no callback sink is configured, so engine
// code can emit unconditionally without nil checks.
type NoOpEventBus struct{}

// NewNoOpEventBus creates a new NoOpEventBus.
func NewNoOpEventBus() events.Bus {
	return &NoOpEventBus{}
}

// Emit discards the event.
func (n *NoOpEventBus) Emit(event events.Event) {}

var _ events.Bus = (*NoOpEventBus)(nil)
