package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	codes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "drover"

// GetTracer returns a named tracer from the globally configured OpenTelemetry
// provider. Falls back to a NoOp tracer when no global provider is set.
// Injecting the TracerProvider into components is preferred over this.
func GetTracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}

// PlayAttributes builds the standard span attributes for a play span.
func PlayAttributes(playName, pattern string, hostCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("drover.play.name", playName),
		attribute.String("drover.play.pattern", pattern),
		attribute.Int("drover.play.host_count", hostCount),
	}
}

// TaskAttributes builds the standard span attributes for a task span.
func TaskAttributes(taskName, module string, handler bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("drover.task.name", taskName),
		attribute.String("drover.task.module", module),
		attribute.Bool("drover.task.handler", handler),
	}
}

// RecordError records an error event with a stack trace on the span and sets
// its status to Error. Does nothing for a nil error or a non-recording span.
func RecordError(span oteltrace.Span, err error) {
	if err == nil || span == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err, oteltrace.WithStackTrace(true))
	span.SetStatus(codes.Error, err.Error())
}
