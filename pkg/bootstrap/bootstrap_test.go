package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_toLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, toLevel(tc.input))
		})
	}
}

func Test_newLogger_AddsRequestID(t *testing.T) {
	// given
	var buf bytes.Buffer
	logger := newLogger(&buf, "info")
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")

	// when
	logger.InfoContext(ctx, "stock sold", "id", 7)
	logger.DebugContext(ctx, "filtered out")

	// then
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record), "exactly one JSON record is expected")
	assert.Equal(t, "stock sold", record["msg"])
	assert.Equal(t, "req-42", record["request_id"])
	assert.NotContains(t, record, "trace_id")
}
