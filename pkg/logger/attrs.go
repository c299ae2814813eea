package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// processAttrs are attached to every record of the process logger.
func processAttrs(cfg Config) []slog.Attr {
	id := cfg.InstanceID
	if id == "" {
		host, _ := os.Hostname()
		id = host + "-" + uuid.NewString()[:8]
	}
	return []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("version", cfg.Version),
		slog.String("env", string(cfg.Env)),
		slog.String("instance", id),
	}
}

// TraceAttrs describes the span carried by ctx, or nothing when there is none.
func TraceAttrs(ctx context.Context) []slog.Attr {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []slog.Attr{
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
		slog.Bool("sampled", sc.IsSampled()),
	}
}

// With returns l extended with the trace of ctx.
func With(ctx context.Context, l *slog.Logger) *slog.Logger {
	attrs := TraceAttrs(ctx)
	if len(attrs) == 0 {
		return l
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return l.With(args...)
}
