package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forward-elements/internal/infra/config"
)

func TestNewTextLogger(t *testing.T) {
	log, closer, err := New(config.LoggerConfig{Level: "debug", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	defer closer()

	require.NotNil(t, log)
	assert.True(t, log.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewJSONFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, closer, err := New(config.LoggerConfig{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	log.Warn("frame host started", "addr", ":8081")
	assert.False(t, log.Enabled(context.Background(), slog.LevelInfo))
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"frame host started"`))
}

func TestDebugLevelRecordsSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	log, closer, err := New(config.LoggerConfig{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	log.Debug("pending request settled")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"source"`))
	assert.True(t, strings.Contains(string(data), "logger_test.go"))
}

func TestDiscardOutput(t *testing.T) {
	log, closer, err := New(config.LoggerConfig{Level: "info", Output: "discard"})
	require.NoError(t, err)
	defer closer()

	require.NotNil(t, log)
	log.Info("dropped on the floor")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
