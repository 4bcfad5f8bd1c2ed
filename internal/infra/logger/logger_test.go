package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qidu/webot/internal/infra/config"
)

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webot.log")

	log, closer, err := New(config.LoggerConfig{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	log.Debug("hello", "k", "v")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestNewLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webot.log")

	log, closer, err := New(config.LoggerConfig{Level: "warn", Output: path})
	require.NoError(t, err)

	log.Info("quiet")
	log.Warn("loud")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "quiet")
	assert.Contains(t, string(data), "loud")
}

func TestNewStdoutNeverFails(t *testing.T) {
	log, closer, err := New(config.LoggerConfig{Output: "stdout"})
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.NoError(t, closer())
}

func TestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, level("debug"))
	assert.Equal(t, slog.LevelWarn, level("WARNING"))
	assert.Equal(t, slog.LevelError, level("error"))
	assert.Equal(t, slog.LevelInfo, level("anything-else"))
}

func TestComponentTagsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webot.log")

	root, closer, err := New(config.LoggerConfig{Format: "json", Output: path})
	require.NoError(t, err)

	Component(root, "gateway").Info("connected")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"gateway"`)
}
