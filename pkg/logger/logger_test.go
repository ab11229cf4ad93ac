package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsAreEncoded(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf).With(String("component", "pipeline"))

	l.Warn("detection failed",
		String("kind", "persist"),
		Int("points", 12),
		Duration("duration_ms", 1500*time.Millisecond),
		Float64("c", 3),
		Bool("aggregated", true),
		Error(errors.New("boom")),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "detection failed", entry["message"])
	assert.Equal(t, "pipeline", entry["component"])
	assert.Equal(t, "persist", entry["kind"])
	assert.Equal(t, float64(12), entry["points"])
	assert.Equal(t, float64(1500), entry["duration_ms"])
	assert.Equal(t, float64(3), entry["c"])
	assert.Equal(t, true, entry["aggregated"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Format: "json", Output: "stdout"})
	assert.Error(t, err)
}

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path, File: FileConfig{MaxSizeMB: 1}})
	require.NoError(t, err)
	l.Info("hello")
	assert.FileExists(t, path)
}

func TestNewFiltersBelowLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	l.Info("dropped")
	l.Warn("kept", Error(nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "dropped")
	assert.Contains(t, string(raw), `"message":"kept"`)
	assert.Contains(t, string(raw), `"error":null`)
}

func TestCallerPointsAtCallSite(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf).Info("here")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry["caller"], "logger_test.go")
}
