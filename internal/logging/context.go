package logging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type requestIDKey struct{}

type tierKey struct{}

type loggerKey struct{}

// NewRequestID returns a fresh UUID v4 request ID.
func NewRequestID() string {
	return uuid.New().String()
}

// RequestIDFromContext extracts the request ID from the context.
// Returns an empty string if no request ID is present.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns a new context with the given request ID stored.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// TierFromContext returns the subscription tier stored by ContextWithTier.
func TierFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(tierKey{}).(string); ok {
		return t
	}
	return ""
}

// ContextWithTier stores the caller's subscription tier for log enrichment.
func ContextWithTier(ctx context.Context, tier string) context.Context {
	return context.WithValue(ctx, tierKey{}, tier)
}

// ContextWithLogger stores a request-scoped logger in the context.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext retrieves the request-scoped slog.Logger from the context.
// Falls back to slog.Default() if no logger is present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
