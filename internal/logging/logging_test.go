package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verdance/verdance/platform/internal/logging"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestContextHandler_IncludesRequestIDAndTier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := logging.ContextWithRequestID(context.Background(), "req-123")
	ctx = logging.ContextWithTier(ctx, "premium")
	logger.InfoContext(ctx, "test message")

	entry := decode(t, &buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "premium", entry["tier"])
	assert.Equal(t, "test message", entry["msg"])
}

func TestContextHandler_NoRequestID_OmitsField(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "no request id")

	entry := decode(t, &buf)
	assert.Nil(t, entry["request_id"])
	assert.Nil(t, entry["tier"])
}

func TestContextHandler_WithAttrs_Preserves(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewContextHandler(slog.NewJSONHandler(&buf, nil))).With("service", "verdance")

	ctx := logging.ContextWithRequestID(context.Background(), "req-456")
	logger.InfoContext(ctx, "with attrs")

	entry := decode(t, &buf)
	assert.Equal(t, "req-456", entry["request_id"])
	assert.Equal(t, "verdance", entry["service"])
}

func TestNew_TextFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, "text", "warn")

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logging.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logging.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("verbose"))
}

func TestNewRequestID_IsUUID(t *testing.T) {
	id := logging.NewRequestID()
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, id, logging.NewRequestID())
}

func TestLoggerFromContext_FallsBackToDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), logging.LoggerFromContext(context.Background()))

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := logging.ContextWithLogger(context.Background(), custom)
	assert.Same(t, custom, logging.LoggerFromContext(ctx))
}
