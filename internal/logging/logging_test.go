// ABOUTME: Tests for logger construction and the colorized text handler
// ABOUTME: Colors are disabled so output can be compared as plain text

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", "json", &buf)

	logger.Debug("hidden")
	logger.Info("refresh complete", "turns", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "refresh complete", rec["msg"])
	assert.Equal(t, float64(3), rec["turns"])
}

func TestColorHandler_FormatsLine(t *testing.T) {
	noColor(t)
	var buf bytes.Buffer
	logger := New("debug", "text", &buf).With("component", "engine")

	logger.Warn("send failed", "conversation_id", "c1")

	line := buf.String()
	assert.Contains(t, line, "WRN send failed component=engine conversation_id=c1\n")
}

func TestColorHandler_LevelFilter(t *testing.T) {
	noColor(t)
	var buf bytes.Buffer
	logger := New("warn", "", &buf)

	logger.Info("quiet")
	logger.Error("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "ERR loud")
}

func TestColorHandler_Groups(t *testing.T) {
	noColor(t)
	var buf bytes.Buffer
	logger := New("info", "", &buf).WithGroup("http").With("method", "GET")

	logger.Info("request", "status", 200, slog.Group("timing", "ms", 12))

	assert.Contains(t, buf.String(), "request http.method=GET http.status=200 http.timing.ms=12")
}
