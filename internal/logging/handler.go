// Package logging holds the slog plumbing shared by the CLI and the
// recommendation core: a handler that copies request-scoped values from the
// context onto every record, and the helpers that put them there.
//
// Usage in main.go:
//
//	base := slog.NewJSONHandler(os.Stderr, nil)
//	slog.SetDefault(slog.New(logging.NewContextHandler(base)))
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// ContextHandler is an slog.Handler that enriches log records with the
// request ID and subscription tier stored in the context. Callers log with
// slog.InfoContext/WarnContext and never pass request_id explicitly.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler creates a new ContextHandler wrapping the given handler.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enriches the record with context values before delegating.
func (h *ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		record.AddAttrs(slog.String("request_id", reqID))
	}
	if tier := TierFromContext(ctx); tier != "" {
		record.AddAttrs(slog.String("tier", tier))
	}
	return h.inner.Handle(ctx, record)
}

// WithAttrs returns a new ContextHandler wrapping the inner handler with additional attributes.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup returns a new ContextHandler wrapping the inner handler with a group prefix.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}

// New builds a logger writing to w. format is "json" (default) or "text";
// level is one of debug, info, warn, error (default info).
func New(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var base slog.Handler
	if strings.EqualFold(format, "text") {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}
	return slog.New(NewContextHandler(base))
}

// ParseLevel maps a level name onto slog.Level. Unknown names yield Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
