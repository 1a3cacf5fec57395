package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// NewTracingLogHandler wraps base so records logged inside a span carry its trace and span IDs.
//
// Only the *Context slog methods see the span. The loader logs with InfoContext and
// WarnContext inside its Loader.load and Fetcher.Open spans, so those lines can be joined
// with the trace of the load.
func NewTracingLogHandler(base slog.Handler) slog.Handler {
	return &spanHandler{base: base}
}

type spanHandler struct {
	base slog.Handler
}

func spanAttrs(ctx context.Context) []slog.Attr {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []slog.Attr{
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
		slog.Bool("trace_sampled", sc.TraceFlags().IsSampled()),
	}
}

func (h *spanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *spanHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(spanAttrs(ctx)...)
	return h.base.Handle(ctx, r)
}

func (h *spanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &spanHandler{base: h.base.WithAttrs(attrs)}
}

func (h *spanHandler) WithGroup(name string) slog.Handler {
	return &spanHandler{base: h.base.WithGroup(name)}
}
