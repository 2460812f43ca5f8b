package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/hybridindex/internal/gitignore"
	"github.com/Aman-CERP/hybridindex/internal/scanner"
)

// FSWatcher watches a tree with fsnotify, or by polling when fsnotify is
// unavailable. Events are filtered against .gitignore files, the scanner's
// default excludes and Options.IgnorePatterns, then debounced.
type FSWatcher struct {
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	debouncer   *Debouncer
	opts        Options
	logger      *slog.Logger

	events chan []FileEvent
	errors chan error
	stopCh chan struct{}

	mu       sync.RWMutex
	ignore   *gitignore.Matcher
	rootPath string
	stopped  bool

	droppedBatches atomic.Uint64
}

var _ Watcher = (*FSWatcher)(nil)

// NewFSWatcher creates a watcher. It never fails on fsnotify errors; those
// select the polling fallback.
func NewFSWatcher(opts Options) (*FSWatcher, error) {
	opts = opts.WithDefaults()

	w := &FSWatcher{
		debouncer: NewDebouncer(opts.DebounceWindow),
		opts:      opts,
		logger:    slog.Default(),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		ignore:    baseMatcher(opts.IgnorePatterns),
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("fsnotify unavailable, falling back to polling", slog.String("error", err.Error()))
		w.pollWatcher = NewPollingWatcher(opts.PollInterval, w.shouldIgnore)
	} else {
		w.fsWatcher = fsw
	}
	return w, nil
}

func baseMatcher(patterns []string) *gitignore.Matcher {
	m := gitignore.NewFromPatterns(scanner.DefaultExcludePatterns...)
	for _, p := range patterns {
		m.AddPattern(p)
	}
	return m
}

// Start watches path until ctx is done or Stop is called. It blocks.
func (w *FSWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", absPath)
	}

	w.mu.Lock()
	w.rootPath = absPath
	w.mu.Unlock()
	w.loadGitignore()

	go w.forwardDebounced(ctx)

	if w.fsWatcher != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *FSWatcher) runFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.rootPath); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotify(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *FSWatcher) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case event, ok := <-w.pollWatcher.Events():
				if !ok {
					return
				}
				if !event.IsDir {
					w.handle(event.Path, event.Operation, false)
				}
			case err, ok := <-w.pollWatcher.Errors():
				if !ok {
					return
				}
				w.emitError(err)
			}
		}
	}()

	return w.pollWatcher.Start(ctx, w.rootPath)
}

func (w *FSWatcher) handleFsnotify(event fsnotify.Event) {
	rel, err := filepath.Rel(w.rootPath, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpAdd
		if isDir && !w.shouldIgnore(rel, true) {
			// Files created together with the directory produce no events
			// of their own.
			_ = w.addRecursive(event.Name)
			w.addExisting(event.Name)
			return
		}
	case event.Op&fsnotify.Write != 0:
		op = OpChange
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpUnlink
	default:
		return
	}

	if isDir && op != OpUnlink {
		return
	}
	w.handle(rel, op, isDir)
}

// handle filters one event and passes it to the debouncer.
func (w *FSWatcher) handle(rel string, op Operation, isDir bool) {
	if w.shouldIgnore(rel, isDir) {
		return
	}

	base := filepath.Base(rel)
	if base == ".gitignore" {
		w.loadGitignore()
		op = OpGitignoreChange
	} else if w.isConfigFile(base) {
		op = OpConfigChange
	}

	w.debouncer.Add(FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// addExisting reports the files already present under a new directory.
func (w *FSWatcher) addExisting(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.rootPath, path)
		if err != nil {
			return nil
		}
		w.handle(filepath.ToSlash(rel), OpAdd, false)
		return nil
	})
}

func (w *FSWatcher) isConfigFile(base string) bool {
	for _, name := range w.opts.ConfigFiles {
		if base == name {
			return true
		}
	}
	return false
}

func (w *FSWatcher) forwardDebounced(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(events) > 0 {
				w.emitEvents(events)
			}
		}
	}
}

// addRecursive adds root and every non-ignored directory below it.
func (w *FSWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		rel, _ := filepath.Rel(w.rootPath, path)
		rel = filepath.ToSlash(rel)
		if rel != "." && w.shouldIgnore(rel, true) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *FSWatcher) shouldIgnore(rel string, isDir bool) bool {
	if rel == "." || rel == "" || strings.HasPrefix(rel, "../") {
		return true
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ignore.Match(rel, isDir)
}

// loadGitignore rebuilds the matcher from the root and nested .gitignore
// files.
func (w *FSWatcher) loadGitignore() {
	w.mu.RLock()
	root := w.rootPath
	w.mu.RUnlock()

	m := baseMatcher(w.opts.IgnorePatterns)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping directory in gitignore scan",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ".gitignore" {
			return nil
		}
		base, _ := filepath.Rel(root, filepath.Dir(path))
		if base == "." {
			base = ""
		}
		if err := m.AddFromFile(path, filepath.ToSlash(base)); err != nil {
			w.logger.Warn("failed to read .gitignore",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil
	})

	w.mu.Lock()
	w.ignore = m
	w.mu.Unlock()
}

func (w *FSWatcher) emitEvents(events []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}
	select {
	case w.events <- events:
	default:
		count := w.droppedBatches.Add(1)
		w.logger.Warn("event buffer full, dropping batch",
			slog.Int("batch_size", len(events)),
			slog.Uint64("total_dropped_batches", count))
	}
}

func (w *FSWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// DroppedBatches returns the number of batches dropped on a full buffer.
func (w *FSWatcher) DroppedBatches() uint64 {
	return w.droppedBatches.Load()
}

// Stop stops watching and closes Events and Errors.
func (w *FSWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	close(w.events)
	close(w.errors)
	w.mu.Unlock()

	// The polling walk calls shouldIgnore under its own lock, so the
	// backends are stopped without holding ours.
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	if w.pollWatcher != nil {
		_ = w.pollWatcher.Stop()
	}
	return nil
}

// Events returns the channel of debounced batches.
func (w *FSWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns the channel of non-fatal errors.
func (w *FSWatcher) Errors() <-chan error {
	return w.errors
}

// WatcherType returns "fsnotify" or "polling".
func (w *FSWatcher) WatcherType() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}
