package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
	droverlog "github.com/drover-labs/drover/pkg/drover/v1/log"
	"go.opentelemetry.io/otel/trace"
)

const defaultLevel = slog.LevelInfo

// parseLogLevel converts a level string (case-insensitive) to a slog.Level,
// falling back to INFO on anything unrecognized.
func parseLogLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return defaultLevel
	}
}

// defaultLogger implements the public droverlog.Logger interface on top of
// the standard slog library.
type defaultLogger struct {
	*slog.Logger
}

var _ droverlog.Logger = (*defaultLogger)(nil)

// NewLogger creates a Logger writing to the given writer (os.Stderr when nil)
// at the given level, in "text" or "json" format.
func NewLogger(levelStr string, formatStr string, writer io.Writer) droverlog.Logger {
	level := parseLogLevel(levelStr)
	if writer == nil {
		writer = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelAttribute,
	}

	var baseHandler slog.Handler
	switch strings.ToLower(formatStr) {
	case "json":
		baseHandler = slog.NewJSONHandler(writer, opts)
	default:
		baseHandler = slog.NewTextHandler(writer, opts)
	}

	// Wrap the base handler so trace/span IDs from the context end up on
	// every record logged through LogCtx.
	return &defaultLogger{
		Logger: slog.New(NewOtelHandler(baseHandler)),
	}
}

// NewDefaultLogger returns a text logger on Stderr at the given level.
func NewDefaultLogger(levelStr string) droverlog.Logger {
	return NewLogger(levelStr, "text", os.Stderr)
}

var levelStringMap = map[slog.Level]string{
	slog.LevelDebug: "DEBUG",
	slog.LevelInfo:  "INFO",
	slog.LevelWarn:  "WARN",
	slog.LevelError: "ERROR",
}

// replaceLevelAttribute renders the level attribute as an uppercase string.
func replaceLevelAttribute(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if !ok {
			return a
		}
		levelStr, exists := levelStringMap[level]
		if !exists {
			levelStr = level.String()
		}
		a.Value = slog.StringValue(levelStr)
	}
	return a
}

func (l *defaultLogger) Debugf(format string, args ...interface{}) {
	if l.Logger.Enabled(context.Background(), slog.LevelDebug) {
		l.Logger.Log(context.Background(), slog.LevelDebug, fmt.Sprintf(format, args...))
	}
}

func (l *defaultLogger) Infof(format string, args ...interface{}) {
	if l.Logger.Enabled(context.Background(), slog.LevelInfo) {
		l.Logger.Log(context.Background(), slog.LevelInfo, fmt.Sprintf(format, args...))
	}
}

func (l *defaultLogger) Warnf(format string, args ...interface{}) {
	if l.Logger.Enabled(context.Background(), slog.LevelWarn) {
		l.Logger.Log(context.Background(), slog.LevelWarn, fmt.Sprintf(format, args...))
	}
}

// Errorf logs a formatted message at the ERROR level. If the final argument
// is an error it is logged as a structured attribute, with task details split
// out for task execution failures.
func (l *defaultLogger) Errorf(format string, args ...interface{}) {
	if !l.Logger.Enabled(context.Background(), slog.LevelError) {
		return
	}
	msg := fmt.Sprintf(format, args...)

	logArgs := []any{}
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			var tee *droverrors.TaskExecutionError
			if errors.As(err, &tee) {
				logArgs = append(logArgs, slog.String("error_type", "TaskExecutionError"))
				if tee.TaskName != "" {
					logArgs = append(logArgs, slog.String("task_name", tee.TaskName))
				}
				if tee.Cause != nil {
					logArgs = append(logArgs, slog.String("error", tee.Cause.Error()))
				} else {
					logArgs = append(logArgs, slog.String("error", tee.Error()))
				}
			} else {
				logArgs = append(logArgs, slog.String("error", err.Error()))
			}
		}
	}
	l.Logger.Log(context.Background(), slog.LevelError, msg, logArgs...)
}

func (l *defaultLogger) Log(level slog.Level, msg string, args ...interface{}) {
	l.Logger.Log(context.Background(), level, msg, args...)
}

// LogCtx logs with the given context so the OtelHandler can attach trace and
// span IDs when a span is active.
func (l *defaultLogger) LogCtx(ctx context.Context, level slog.Level, msg string, args ...interface{}) {
	l.Logger.Log(ctx, level, msg, args...)
}

func (l *defaultLogger) With(args ...interface{}) droverlog.Logger {
	return &defaultLogger{Logger: l.Logger.With(args...)}
}

func (l *defaultLogger) IsEnabled(level slog.Level) bool {
	return l.Logger.Enabled(context.Background(), level)
}

// OtelHandler is slog.Handler middleware that injects OpenTelemetry trace_id
// and span_id attributes into records whose context carries a valid span.
type OtelHandler struct {
	next slog.Handler
}

// NewOtelHandler creates an OtelHandler wrapping the provided handler.
func NewOtelHandler(next slog.Handler) *OtelHandler {
	return &OtelHandler{next: next}
}

func (h *OtelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *OtelHandler) Handle(ctx context.Context, record slog.Record) error {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		record.AddAttrs(
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
		)
	}
	return h.next.Handle(ctx, record)
}

func (h *OtelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewOtelHandler(h.next.WithAttrs(attrs))
}

func (h *OtelHandler) WithGroup(name string) slog.Handler {
	return NewOtelHandler(h.next.WithGroup(name))
}
