package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TracerProvider defines the interface for accessing the engine's tracer
// provider, so consumers can integrate drover's tracing with an existing
// OpenTelemetry setup or supply their own implementation.
type TracerProvider interface {
	// GetTracer returns a Tracer instance with the specified name and options.
	GetTracer(name string, opts ...trace.TracerOption) trace.Tracer

	// Shutdown gracefully shuts down the provider, flushing buffered spans.
	// NoOp implementations return nil immediately.
	Shutdown(ctx context.Context) error
}
