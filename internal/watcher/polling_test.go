package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPolling(t *testing.T, dir string, ignore func(string, bool) bool) *PollingWatcher {
	t.Helper()
	w := NewPollingWatcher(20*time.Millisecond, ignore)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() { _ = w.Start(ctx, dir) }()
	// Let the baseline walk finish.
	time.Sleep(60 * time.Millisecond)
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func waitForEvent(t *testing.T, w *PollingWatcher, match func(FileEvent) bool) FileEvent {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case event, ok := <-w.Events():
			require.True(t, ok, "events channel closed")
			if match(event) {
				return event
			}
		case <-deadline:
			t.Fatal("timeout waiting for event")
			return FileEvent{}
		}
	}
}

func TestPollingWatcher_DetectsAdd(t *testing.T) {
	// Given: a polled directory
	dir := t.TempDir()
	w := startPolling(t, dir, nil)

	// When: a file is created
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.go"), []byte("package main"), 0o644))

	// Then: an ADD is reported
	event := waitForEvent(t, w, func(e FileEvent) bool { return e.Path == "new.go" })
	assert.Equal(t, OpAdd, event.Operation)
}

func TestPollingWatcher_DetectsChange(t *testing.T) {
	// Given: a polled directory with a file
	dir := t.TempDir()
	path := filepath.Join(dir, "existing.go")
	require.NoError(t, os.WriteFile(path, []byte("package main"), 0o644))
	w := startPolling(t, dir, nil)

	// When: the file grows
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644))

	// Then: a CHANGE is reported
	event := waitForEvent(t, w, func(e FileEvent) bool { return e.Path == "existing.go" })
	assert.Equal(t, OpChange, event.Operation)
}

func TestPollingWatcher_DetectsUnlink(t *testing.T) {
	// Given: a polled directory with a file
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.go")
	require.NoError(t, os.WriteFile(path, []byte("package main"), 0o644))
	w := startPolling(t, dir, nil)

	// When: the file is removed
	require.NoError(t, os.Remove(path))

	// Then: an UNLINK is reported
	event := waitForEvent(t, w, func(e FileEvent) bool { return e.Path == "gone.go" })
	assert.Equal(t, OpUnlink, event.Operation)
}

func TestPollingWatcher_NestedPathsAreSlashSeparated(t *testing.T) {
	// Given: a polled directory
	dir := t.TempDir()
	w := startPolling(t, dir, nil)

	// When: a nested file is created
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "sub", "a.go"), []byte("package sub"), 0o644))

	// Then: the file event uses a slash path
	event := waitForEvent(t, w, func(e FileEvent) bool { return !e.IsDir })
	assert.Equal(t, "pkg/sub/a.go", event.Path)
	assert.Equal(t, OpAdd, event.Operation)
}

func TestPollingWatcher_IgnoredDirectoriesSkipped(t *testing.T) {
	// Given: a watcher ignoring node_modules
	dir := t.TempDir()
	w := startPolling(t, dir, func(rel string, isDir bool) bool {
		return rel == "node_modules" || strings.HasPrefix(rel, "node_modules/")
	})

	// When: files appear in and outside the ignored directory
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "x.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))

	// Then: only the visible file is reported
	event := waitForEvent(t, w, func(e FileEvent) bool { return !e.IsDir })
	assert.Equal(t, "main.go", event.Path)
}

func TestPollingWatcher_Start_MissingRoot(t *testing.T) {
	// Given: a root that does not exist
	w := NewPollingWatcher(10*time.Millisecond, nil)
	defer func() { _ = w.Stop() }()

	// When: starting
	err := w.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))

	// Then: the baseline walk fails
	require.Error(t, err)
}

func TestPollingWatcher_ContextCancellation(t *testing.T) {
	// Given: a running watcher
	dir := t.TempDir()
	w := NewPollingWatcher(10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, dir) }()
	time.Sleep(30 * time.Millisecond)

	// When: the context is cancelled
	cancel()

	// Then: Start returns and the channels are closed
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Start did not return")
	}
	_, ok := <-w.Events()
	assert.False(t, ok)
}
