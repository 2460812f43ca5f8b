package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
)

// Enqueuer schedules a file for re-indexing. *async.UpdateQueue implements it.
type Enqueuer interface {
	Enqueue(filePath, projectID string)
}

// IndexLister lists the files a project has indexed. *index.Indexer
// implements it.
type IndexLister interface {
	IndexedFiles(projectID string) ([]string, error)
}

// PathFilter reports whether a path is indexable. *scanner.Filter
// implements it.
type PathFilter interface {
	Accepts(path string) (string, bool)
}

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	ProjectID string
	RootPath  string

	// OnReconcile runs once per batch that carried a .gitignore or config
	// change. Nil disables it.
	OnReconcile func(ctx context.Context) error

	Logger *slog.Logger
}

// Bridge turns watcher batches into queued updates. Every change goes
// through the queue, so a file has one writer at a time; an unlinked file
// is removed when its update finds it gone.
type Bridge struct {
	queue  Enqueuer
	lister IndexLister
	filter PathFilter
	cfg    BridgeConfig
	logger *slog.Logger
}

// NewBridge creates a bridge for one project. filter may be nil to accept
// every path.
func NewBridge(queue Enqueuer, lister IndexLister, filter PathFilter, cfg BridgeConfig) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		queue:  queue,
		lister: lister,
		filter: filter,
		cfg:    cfg,
		logger: logger,
	}
}

// Run handles batches until events is closed or ctx is done.
func (b *Bridge) Run(ctx context.Context, events <-chan []FileEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-events:
			if !ok {
				return
			}
			b.Handle(ctx, batch)
		}
	}
}

// Handle applies one batch.
func (b *Bridge) Handle(ctx context.Context, batch []FileEvent) {
	reconcile := false
	var indexed []string
	indexedLoaded := false

	for _, ev := range batch {
		abs := filepath.Join(b.cfg.RootPath, filepath.FromSlash(ev.Path))

		if ev.Operation.Reconciles() {
			reconcile = true
			continue
		}

		switch ev.Operation {
		case OpAdd, OpChange:
			if ev.IsDir || !b.accepts(abs) {
				continue
			}
			b.queue.Enqueue(abs, b.cfg.ProjectID)
			b.logger.Debug("file queued",
				slog.String("file_path", abs),
				slog.String("op", ev.Operation.String()))

		case OpUnlink:
			if !indexedLoaded {
				indexed = b.indexedFiles()
				indexedLoaded = true
			}
			b.unlink(abs, indexed)
		}
	}

	if reconcile && b.cfg.OnReconcile != nil {
		if err := b.cfg.OnReconcile(ctx); err != nil {
			b.logger.Warn("reconcile failed",
				slog.String("project_id", b.cfg.ProjectID),
				slog.String("error", err.Error()))
		}
	}
}

func (b *Bridge) accepts(abs string) bool {
	if b.filter == nil {
		return true
	}
	_, ok := b.filter.Accepts(abs)
	return ok
}

func (b *Bridge) indexedFiles() []string {
	files, err := b.lister.IndexedFiles(b.cfg.ProjectID)
	if err != nil {
		b.logger.Warn("failed to list indexed files",
			slog.String("project_id", b.cfg.ProjectID),
			slog.String("error", err.Error()))
		return nil
	}
	return files
}

// unlink enqueues abs and, when abs was a directory, every indexed file
// below it. Paths that were never indexed and would not be are skipped.
func (b *Bridge) unlink(abs string, indexed []string) {
	known := indexed == nil || b.accepts(abs)
	prefix := abs + string(filepath.Separator)
	var below []string
	for _, p := range indexed {
		switch {
		case p == abs:
			known = true
		case strings.HasPrefix(p, prefix):
			below = append(below, p)
		}
	}

	if known {
		b.queue.Enqueue(abs, b.cfg.ProjectID)
	}
	for _, p := range below {
		b.queue.Enqueue(p, b.cfg.ProjectID)
	}
	b.logger.Debug("unlink queued",
		slog.String("file_path", abs),
		slog.Int("files_below", len(below)))
}
