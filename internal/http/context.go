package http

import (
	"context"
	"log/slog"

	"github.com/example/lounge-reconciler/internal/logging"
)

type contextKey string

const (
	jobNameContextKey contextKey = "job_name"
)

// ContextWithLogger returns a derived context carrying the request logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts the request logger if available.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}

// ContextWithJobName injects the job name resolved from the request path.
func ContextWithJobName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, jobNameContextKey, name)
}

// JobNameFromContext extracts a job name previously associated with the context.
func JobNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(jobNameContextKey).(string)
	return name, ok && name != ""
}
