package api

import (
	"context"
	"log/slog"
)

type contextKey string

const loggerContextKey contextKey = "request_logger"

// LoggerFromContext returns the request-scoped logger, or the default one
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(loggerContextKey).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return logger
}

// ContextWithLogger adds a request-scoped logger to context
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}
