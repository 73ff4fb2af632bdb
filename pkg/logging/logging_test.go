package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"DEBUG", LevelDebug},
		{"Warning", LevelWarn},
		{"dEbUg", LevelDebug},

		// Empty and unknown default to Info
		{"", LevelInfo},
		{"trace", LevelInfo},
		{"fatal", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
	}{
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"text", FormatText},
		{"", FormatText},
		{"yaml", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseFormat(tt.input))
		})
	}
}

func TestValidLevel(t *testing.T) {
	assert.True(t, ValidLevel("WARN"))
	assert.True(t, ValidLevel(" warning "))
	assert.True(t, ValidLevel(""))
	assert.False(t, ValidLevel("verbose"))
	assert.False(t, ValidLevel("INFO+2"))
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelDebug, Format: FormatJSON, Output: &buf})

	log.Debug("connection accepted", KeyConnID, "c1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "connection accepted", entry["msg"])
	assert.Equal(t, "c1", entry["conn_id"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelWarn, Output: &buf})

	log.Info("dropped")
	log.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestMultiHandler(t *testing.T) {
	var text, js bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&text, &slog.HandlerOptions{Level: LevelInfo}),
		slog.NewJSONHandler(&js, &slog.HandlerOptions{Level: LevelError}),
	)
	log := slog.New(h).With(KeyListener, "l1")

	log.Info("info only")
	log.Error("both")

	assert.Equal(t, 2, strings.Count(text.String(), "listener=l1"))
	assert.Equal(t, 1, strings.Count(js.String(), `"listener":"l1"`))
	assert.NotContains(t, js.String(), "info only")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	log := slog.Default()
	assert.Same(t, log, OrNop(log))
}

func TestOpen_MirrorsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logwire.log")
	require.NoError(t, os.WriteFile(path, []byte("{\"msg\":\"earlier\"}\n"), 0o644))

	var stderr bytes.Buffer
	log, closer, err := Open(Config{Level: LevelInfo, Output: &stderr, File: path})
	require.NoError(t, err)

	log.With(KeyInput, "syslog").Info("listening", "port", 5170)
	log.Debug("hidden")
	require.NoError(t, closer.Close())

	assert.Contains(t, stderr.String(), "input=syslog")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "earlier")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "listening", entry["msg"])
	assert.Equal(t, "syslog", entry[KeyInput])
	assert.EqualValues(t, 5170, entry["port"])
}

func TestOpen_WithoutFile(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := Open(Config{Format: FormatJSON, Output: &buf})
	require.NoError(t, err)
	log.Info("plain")
	assert.NoError(t, closer.Close())
	assert.Contains(t, buf.String(), `"msg":"plain"`)
}

func TestOpen_BadPath(t *testing.T) {
	_, _, err := Open(Config{File: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.ErrorContains(t, err, "open log file")
}

func TestNop(t *testing.T) {
	log := Nop()
	assert.False(t, log.Enabled(t.Context(), LevelError))
}
