package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackrx/backend/internal/middleware"
)

func TestContextHandler_Handle(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)

	ctx := middleware.WithCorrelationID(context.Background(), "test-correlation-id")
	logger.InfoContext(ctx, "test message")

	var logMap map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logMap))
	assert.Equal(t, "test-correlation-id", logMap["correlation_id"])
}

func TestContextHandler_WithAttrsKeepsCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo).With("component", "indexer")

	ctx := middleware.WithCorrelationID(context.Background(), "cid")
	logger.InfoContext(ctx, "built")

	var logMap map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logMap))
	assert.Equal(t, "cid", logMap["correlation_id"])
	assert.Equal(t, "indexer", logMap["component"])
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}
