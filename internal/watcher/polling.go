package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by walking the tree on an interval and
// comparing size and modification time with the previous walk.
type PollingWatcher struct {
	interval time.Duration
	ignore   func(rel string, isDir bool) bool

	mu       sync.Mutex
	state    map[string]fileSnapshot
	events   chan FileEvent
	errors   chan error
	stopCh   chan struct{}
	stopped  bool
	rootPath string
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher. ignore may be nil.
func NewPollingWatcher(interval time.Duration, ignore func(rel string, isDir bool) bool) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		ignore:   ignore,
		state:    make(map[string]fileSnapshot),
		events:   make(chan FileEvent, 100),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start records a baseline and then polls until ctx is done or Stop is
// called.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	p.mu.Lock()
	p.rootPath = absPath
	baseline, err := p.walk()
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("perform initial scan: %w", err)
	}
	p.state = baseline
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.detectChanges(); err != nil {
				select {
				case p.errors <- err:
				default:
				}
			}
		}
	}
}

// Stop stops polling and closes both channels.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of raw, undebounced events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// walk snapshots the tree. Must be called with the lock held.
func (p *PollingWatcher) walk() (map[string]fileSnapshot, error) {
	snapshots := make(map[string]fileSnapshot)
	err := filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == p.rootPath {
				return err
			}
			return nil
		}
		rel, err := filepath.Rel(p.rootPath, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if p.ignore != nil && p.ignore(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		snapshots[rel] = fileSnapshot{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return snapshots, err
}

// detectChanges diffs a fresh walk against the previous one.
func (p *PollingWatcher) detectChanges() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.walk()
	if err != nil {
		return fmt.Errorf("walk directory for changes: %w", err)
	}

	now := time.Now()
	for rel, snap := range current {
		prev, ok := p.state[rel]
		switch {
		case !ok:
			p.emit(FileEvent{Path: rel, Operation: OpAdd, IsDir: snap.isDir, Timestamp: now})
		case !snap.isDir && (!prev.modTime.Equal(snap.modTime) || prev.size != snap.size):
			p.emit(FileEvent{Path: rel, Operation: OpChange, Timestamp: now})
		}
	}
	for rel, snap := range p.state {
		if _, ok := current[rel]; !ok {
			p.emit(FileEvent{Path: rel, Operation: OpUnlink, IsDir: snap.isDir, Timestamp: now})
		}
	}

	p.state = current
	return nil
}

// emit sends without blocking. Must be called with the lock held.
func (p *PollingWatcher) emit(event FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
		slog.Warn("polling watcher buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()))
	}
}
