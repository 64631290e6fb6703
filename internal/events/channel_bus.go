package events

import (
	"github.com/drover-labs/drover/pkg/drover/v1/events"
	droverlog "github.com/drover-labs/drover/pkg/drover/v1/log"
)

// ChannelEventBus implements the public events.Bus interface on a buffered Go
// channel. Emission never blocks the engine: when the buffer is full the
// event is dropped and a warning is logged.
type ChannelEventBus struct {
	channel chan events.Event
	log     droverlog.Logger
}

// NewChannelEventBus creates a ChannelEventBus with the given buffer size
// (a default of 100 applies when bufferSize is non-positive). Panics if the
// logger is nil.
func NewChannelEventBus(bufferSize int, log droverlog.Logger) *ChannelEventBus {
	const defaultBufferSize = 100
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if log == nil {
		panic("ChannelEventBus requires a non-nil logger")
	}

	bus := &ChannelEventBus{
		channel: make(chan events.Event, bufferSize),
		log:     log.With("component", "ChannelEventBus"),
	}
	bus.log.Debugf("ChannelEventBus initialized with buffer size %d", bufferSize)
	return bus
}

// Emit performs a non-blocking send onto the internal channel. Full buffer
// means the event is dropped with a warning rather than stalling a play.
func (c *ChannelEventBus) Emit(event events.Event) {
	select {
	case c.channel <- event:
	default:
		c.log.Warnf("Event channel buffer full, dropping event type '%s'", event.Type)
	}
}

// GetChannel returns the underlying event channel for in-process consumers
// such as the CLI callback printer. Not part of the events.Bus interface.
func (c *ChannelEventBus) GetChannel() <-chan events.Event {
	return c.channel
}

// Close closes the underlying channel, signaling consumers that no more
// events will arrive.
func (c *ChannelEventBus) Close() {
	c.log.Debugf("Closing ChannelEventBus channel.")
	close(c.channel)
}

var _ events.Bus = (*ChannelEventBus)(nil)
