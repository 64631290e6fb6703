package events

import (
	"context"

	"github.com/drover-labs/drover/pkg/drover/v1/events"
	droverlog "github.com/drover-labs/drover/pkg/drover/v1/log"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsEventListener consumes a ChannelEventBus, keeps host-outcome
// Prometheus counters up to date from the event stream, and logs the run's
// lifecycle as it goes. The CLI uses it as its presentation layer: one
// consumer covering both concerns, since the bus channel has a single reader.
type MetricsEventListener struct {
	bus                *ChannelEventBus
	log                droverlog.Logger
	failedCounter      prometheus.Counter
	unreachableCounter prometheus.Counter
	notifyCounter      prometheus.Counter
}

// NewMetricsEventListener creates a listener bound to the given bus and
// counters. Panics if any dependency is nil.
func NewMetricsEventListener(bus *ChannelEventBus, failed, unreachable, notify prometheus.Counter, log droverlog.Logger) *MetricsEventListener {
	if bus == nil || failed == nil || unreachable == nil || notify == nil || log == nil {
		panic("MetricsEventListener requires a non-nil bus, counters, and logger")
	}
	return &MetricsEventListener{
		bus:                bus,
		log:                log.With("component", "MetricsEventListener"),
		failedCounter:      failed,
		unreachableCounter: unreachable,
		notifyCounter:      notify,
	}
}

// Start consumes events until the bus channel closes or the context is
// cancelled. Run it in its own goroutine.
func (l *MetricsEventListener) Start(ctx context.Context) {
	l.log.Debugf("Starting metrics event listener...")
	for {
		select {
		case event, ok := <-l.bus.GetChannel():
			if !ok {
				l.log.Debugf("Event bus channel closed, stopping listener.")
				return
			}
			l.handleEvent(event)
		case <-ctx.Done():
			l.log.Debugf("Context cancelled, stopping metrics event listener.")
			return
		}
	}
}

func (l *MetricsEventListener) handleEvent(event events.Event) {
	switch event.Type {
	case events.PlayStart:
		l.log.Infof("PLAY [%s]", event.PlayName)
	case events.SetupStart:
		l.log.Infof("GATHERING FACTS [%s]", event.PlayName)
	case events.TaskStart:
		l.log.Infof("TASK [%s]", event.TaskName)
	case events.HandlerStart:
		l.log.Infof("HANDLER [%s]", event.TaskName)
	case events.NoHostsMatched:
		l.log.Warnf("no hosts matched for play '%s'", event.PlayName)
	case events.NoHostsRemaining:
		l.log.Errorf("no more hosts remaining during '%s', aborting play '%s'", event.TaskName, event.PlayName)
	case events.HostFailed:
		l.log.Errorf("failed: [%s] task '%s'", event.Host, event.TaskName)
		l.failedCounter.Inc()
	case events.HostUnreachable:
		l.log.Errorf("unreachable: [%s]", event.Host)
		l.unreachableCounter.Inc()
	case events.NotifyTriggered:
		l.log.Debugf("host %s notified handler '%s'", event.Host, event.TaskName)
		l.notifyCounter.Inc()
	}
}
