package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	drovertracing "github.com/drover-labs/drover/pkg/drover/v1/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/encoding/gzip"
)

const defaultCollectorEndpoint = "localhost:4317"

// OtelTracerProvider implements the public drovertracing.TracerProvider
// interface using the OpenTelemetry SDK, or the official NoOp provider when
// tracing is disabled or misconfigured.
type OtelTracerProvider struct {
	provider trace.TracerProvider
	exporter sdktrace.SpanExporter
	// sdkProvider is the concrete SDK provider when tracing is enabled;
	// nil when operating as NoOp. Needed for Shutdown.
	sdkProvider *sdktrace.TracerProvider
}

// NewNoOpProvider creates a TracerProvider that performs no tracing.
func NewNoOpProvider() (*OtelTracerProvider, error) {
	return &OtelTracerProvider{
		provider: trace.NewNoopTracerProvider(),
	}, nil
}

// NewProviderFromEnv creates an OtelTracerProvider configured from the
// standard OTEL_* environment variables. When tracing is disabled
// (OTEL_SDK_DISABLED=true) or no endpoint is configured it falls back to a
// NoOp provider. The global OTel provider is not touched.
func NewProviderFromEnv(ctx context.Context) (*OtelTracerProvider, error) {
	if strings.ToLower(os.Getenv("OTEL_SDK_DISABLED")) == "true" {
		return NewNoOpProvider()
	}

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(semconv.ServiceNameKey.String(otelServiceName())),
		resource.WithProcess(), resource.WithOS(), resource.WithContainer(), resource.WithHost(),
	)
	if err != nil {
		res = resource.Default()
		fmt.Fprintf(os.Stderr, "Warning: Failed to create OTel resource: %v. Using default.\n", err)
	}

	exporter, err := createExporter(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to create OTLP exporter from environment: %v. Using NoOp tracer.\n", err)
		return NewNoOpProvider()
	}
	if exporter == nil {
		return NewNoOpProvider()
	}

	bsp := sdktrace.NewBatchSpanProcessor(exporter)
	sdkTP := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
	)

	return &OtelTracerProvider{
		provider:    sdkTP,
		exporter:    exporter,
		sdkProvider: sdkTP,
	}, nil
}

// createExporter builds the OTLP span exporter (gRPC or HTTP) described by
// the environment. Returns nil when no endpoint is configured.
func createExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	protocol := strings.ToLower(os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"))
	if protocol == "" {
		protocol = "grpc"
	}

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		switch protocol {
		case "grpc":
			endpoint = defaultCollectorEndpoint
		case "http", "http/protobuf":
			endpoint = "localhost:4318"
		default:
			return nil, nil
		}
	}

	headers := parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	timeout := parseTimeout(os.Getenv("OTEL_EXPORTER_OTLP_TIMEOUT"), 10*time.Second)
	compression := os.Getenv("OTEL_EXPORTER_OTLP_COMPRESSION")
	insecure := isInsecure(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"), os.Getenv("OTEL_EXPORTER_OTLP_TRACES_INSECURE"))

	switch protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithHeaders(headers),
			otlptracegrpc.WithTimeout(timeout),
		}
		if insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
		}
		if strings.ToLower(compression) == "gzip" {
			opts = append(opts, otlptracegrpc.WithCompressor(gzip.Name))
		}
		return otlptracegrpc.New(ctx, opts...)

	case "http", "http/protobuf":
		httpPath := os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")
		if httpPath == "" {
			httpPath = "/v1/traces"
		}
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithURLPath(httpPath),
			otlptracehttp.WithHeaders(headers),
			otlptracehttp.WithTimeout(timeout),
		}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if strings.ToLower(compression) == "gzip" {
			opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %s", protocol)
	}
}

// GetTracer returns a named tracer from the stored provider, either SDK or
// NoOp depending on initialization.
func (p *OtelTracerProvider) GetTracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if p.provider == nil {
		return trace.NewNoopTracerProvider().Tracer(name, opts...)
	}
	return p.provider.Tracer(name, opts...)
}

// Shutdown flushes buffered spans and stops the SDK provider and exporter.
// A no-op when operating as the NoOp provider.
func (p *OtelTracerProvider) Shutdown(ctx context.Context) error {
	var firstError error

	if p.sdkProvider != nil {
		if err := p.sdkProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error shutting down OTel tracer provider: %v\n", err)
			firstError = err
		}
	}
	if p.exporter != nil {
		if err := p.exporter.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error shutting down OTel exporter: %v\n", err)
			if firstError == nil {
				firstError = err
			}
		}
	}
	return firstError
}

// IsEffectivelyNoOp reports whether this provider was initialized as NoOp,
// letting the engine skip span creation entirely.
func (p *OtelTracerProvider) IsEffectivelyNoOp() bool {
	return p.sdkProvider == nil
}

func otelServiceName() string {
	name := os.Getenv("OTEL_SERVICE_NAME")
	if name == "" {
		name = "drover"
	}
	return name
}

// parseHeaders converts an OTLP comma-separated key=value string into a map.
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	if headerStr == "" {
		return headers
	}
	for _, pair := range strings.Split(headerStr, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) == 2 {
			key := strings.TrimSpace(kv[0])
			if key != "" {
				headers[key] = strings.TrimSpace(kv[1])
			}
		}
	}
	return headers
}

// parseTimeout accepts either integer milliseconds (the OTLP convention) or a
// Go duration string.
func parseTimeout(timeoutStr string, defaultTimeout time.Duration) time.Duration {
	if timeoutStr == "" {
		return defaultTimeout
	}
	if timeoutMs, err := strconv.ParseInt(timeoutStr, 10, 64); err == nil {
		if timeoutMs < 0 {
			return defaultTimeout
		}
		return time.Duration(timeoutMs) * time.Millisecond
	}
	if duration, err := time.ParseDuration(timeoutStr); err == nil {
		if duration < 0 {
			return defaultTimeout
		}
		return duration
	}
	fmt.Fprintf(os.Stderr, "Warning: Invalid OTLP timeout format '%s', using default %v\n", timeoutStr, defaultTimeout)
	return defaultTimeout
}

func isInsecure(flags ...string) bool {
	for _, flag := range flags {
		if strings.ToLower(strings.TrimSpace(flag)) == "true" {
			return true
		}
	}
	return false
}

var _ drovertracing.TracerProvider = (*OtelTracerProvider)(nil)
