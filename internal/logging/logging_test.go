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
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a file-only config in a temp dir
	path := filepath.Join(t.TempDir(), "logs", "test.log")
	cfg := Config{Level: "debug", FilePath: path, MaxSizeMB: 1, MaxFiles: 2}

	// When: logging a message
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Debug("indexed file", slog.String("file_path", "main.go"))
	cleanup()

	// Then: the file holds one JSON line with our attribute
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "indexed file", entry["msg"])
	assert.Equal(t, "main.go", entry["file_path"])
}

func TestSetup_RespectsLevel(t *testing.T) {
	// Given: a warn-level logger
	path := filepath.Join(t.TempDir(), "warn.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	require.NoError(t, err)

	// When: logging below and at the level
	logger.Info("skipped")
	logger.Warn("kept")
	cleanup()

	// Then: only the warn line is written
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "skipped")
	assert.Contains(t, string(data), "kept")
}

func TestRotatingWriter_RotatesAndCapsFiles(t *testing.T) {
	// Given: a 1MB writer keeping 2 rotated files
	path := filepath.Join(t.TempDir(), "rot.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	chunk := []byte(strings.Repeat("x", 600*1024))

	// When: writing enough to rotate several times
	for i := 0; i < 5; i++ {
		_, err := w.Write(chunk)
		require.NoError(t, err)
	}

	// Then: at most path, path.1, path.2 exist
	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "c.log"), 1, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestOrDefault(t *testing.T) {
	l := Discard()
	assert.Same(t, l, OrDefault(l))
	assert.Same(t, slog.Default(), OrDefault(nil))
}
