package async

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// IncompleteLockName is the marker file a project run keeps in the data
// dir until it finishes. Finding it on start means the last run was
// interrupted.
const IncompleteLockName = "indexing.lock"

// IndexFunc does the work of one project run.
type IndexFunc func(ctx context.Context, progress *IndexProgress) error

// IndexerConfig configures a BackgroundIndexer.
type IndexerConfig struct {
	DataDir   string
	ProjectID string
}

// RunMarker is the content of the marker file.
type RunMarker struct {
	ProjectID string    `json:"project_id"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// BackgroundIndexer runs one project run on its own goroutine and tracks
// its progress. A BackgroundIndexer is single-use.
type BackgroundIndexer struct {
	cfg      IndexerConfig
	fn       IndexFunc
	progress *IndexProgress
	done     chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	running bool
	err     error
}

// NewBackgroundIndexer prepares a run of fn. Nothing happens until Start.
func NewBackgroundIndexer(cfg IndexerConfig, fn IndexFunc) *BackgroundIndexer {
	return &BackgroundIndexer{
		cfg:      cfg,
		fn:       fn,
		progress: NewIndexProgress(cfg.ProjectID),
		done:     make(chan struct{}),
	}
}

// Progress is fed by the run and may be read at any time.
func (b *BackgroundIndexer) Progress() *IndexProgress {
	return b.progress
}

func (b *BackgroundIndexer) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start launches the run under ctx. Calls after the first are ignored.
func (b *BackgroundIndexer) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}

	ctx, b.cancel = context.WithCancel(ctx)
	b.started = true
	b.running = true
	go b.run(ctx)
}

func (b *BackgroundIndexer) run(ctx context.Context) {
	err := b.runMarked(ctx)

	if err != nil {
		b.progress.SetError(err.Error())
	} else {
		b.progress.SetReady()
	}

	b.mu.Lock()
	b.err = err
	b.running = false
	b.cancel()
	b.mu.Unlock()
	close(b.done)
}

// runMarked calls fn while the marker file exists.
func (b *BackgroundIndexer) runMarked(ctx context.Context) error {
	if err := writeMarker(b.cfg.DataDir, RunMarker{
		ProjectID: b.cfg.ProjectID,
		PID:       os.Getpid(),
		StartedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	defer func() { _ = os.Remove(markerPath(b.cfg.DataDir)) }()

	if b.fn == nil {
		return nil
	}
	return b.fn(ctx, b.progress)
}

// Stop cancels a running run and waits for it to return.
func (b *BackgroundIndexer) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.cancel()
	b.mu.Unlock()

	<-b.done
}

// Wait blocks until the run ends and returns its error.
func (b *BackgroundIndexer) Wait() error {
	<-b.done
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func markerPath(dataDir string) string {
	return filepath.Join(dataDir, IncompleteLockName)
}

func writeMarker(dataDir string, m RunMarker) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(markerPath(dataDir), data, 0o644); err != nil {
		return fmt.Errorf("failed to write run marker: %w", err)
	}
	return nil
}

// HasIncompleteLock reports whether a run in dataDir did not finish.
func HasIncompleteLock(dataDir string) bool {
	_, err := os.Stat(markerPath(dataDir))
	return err == nil
}

// ReadIncompleteLock returns the marker left by an unfinished run, or nil
// when there is none. Markers that are not JSON yield a zero RunMarker.
func ReadIncompleteLock(dataDir string) (*RunMarker, error) {
	data, err := os.ReadFile(markerPath(dataDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m RunMarker
	if json.Unmarshal(data, &m) != nil {
		return &RunMarker{}, nil
	}
	return &m, nil
}
