// Package logging carries a run scoped *slog.Logger through context so that
// every line emitted during one job invocation shares the same attributes.
package logging

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// ContextWithLogger returns a derived context that carries the provided logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts a logger previously attached to the context.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(contextKey{}).(*slog.Logger)
	return logger
}

// Or returns the context logger, falling back to fallback and then to
// slog.Default.
func Or(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger := FromContext(ctx); logger != nil {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

// WithRun tags base with the job name and run id and stores it in ctx.
func WithRun(ctx context.Context, base *slog.Logger, job, runID string) (context.Context, *slog.Logger) {
	if base == nil {
		base = slog.Default()
	}
	logger := base.With(slog.String("job", job), slog.String("run_id", runID))
	return ContextWithLogger(ctx, logger), logger
}
