// Package logging carries a *slog.Logger through contexts.
//
// The loader stores its logger once in New and adds attributes on the way down
// (component, then identifier per load), so a worker log line names the image it is about.
package logging

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

type loggerContextKey struct{}

var fallbackLogger = sync.OnceValue(func() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("logger", "fallback"))
})

// FromContext returns the logger stored in ctx, or a JSON logger on stdout if there is none
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return fallbackLogger()
}

func AddToContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// AddMetaToContext stores a logger that includes attrs on every record
func AddMetaToContext(ctx context.Context, attrs ...slog.Attr) context.Context {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return AddToContext(ctx, FromContext(ctx).With(args...))
}

// Discard returns a logger that drops everything, for tests and tools that want silence
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
