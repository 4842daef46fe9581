package logging

import (
	"context"
	"log/slog"
)

type contextKey int

const loggerKey contextKey = 0

// WithLogger attaches a request-scoped logger to the context. Handlers
// derive it once with the request_id attribute so every downstream log
// line carries it.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the request-scoped logger, or the process default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
