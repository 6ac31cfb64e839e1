package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/programme-lv/disttester/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	l, err := logging.ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	_, err = logging.ParseLevel("chatty")
	assert.Error(t, err)
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelInfo, true)
	logger.Debug("hidden")
	logger.Info("started container", "container", "replica0")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "started container", line["msg"])
	assert.Equal(t, "replica0", line["container"])
}

func TestTextLoggerWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	logging.New(&buf, slog.LevelInfo, false).Warn("command failed", "command", "make")
	assert.Contains(t, buf.String(), "command failed")
	assert.Contains(t, buf.String(), "command=make")
	assert.NotContains(t, buf.String(), "\x1b[")
}
