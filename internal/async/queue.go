package async

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Aman-CERP/hybridindex/internal/index"
)

// DefaultProcessingInterval is the pause between queue iterations.
const DefaultProcessingInterval = 100 * time.Millisecond

// FileUpdater re-indexes a single file. *index.Indexer implements it.
type FileUpdater interface {
	UpdateFile(ctx context.Context, filePath, projectID string) (*index.FileIndexResult, error)
}

// QueueItem is a pending update. There is at most one per FilePath.
type QueueItem struct {
	FilePath  string `json:"file_path"`
	ProjectID string `json:"project_id"`
	Priority  int64  `json:"priority"`
	Timestamp int64  `json:"timestamp"` // ms

	seq uint64
}

// QueueOptions configures an UpdateQueue.
type QueueOptions struct {
	// ProcessingInterval is slept when the queue is empty and after every
	// item (default: 100ms).
	ProcessingInterval time.Duration

	Logger *slog.Logger
}

// QueueStats is a snapshot of queue state.
type QueueStats struct {
	QueueSize      int  `json:"queue_size"`
	IsProcessing   bool `json:"is_processing"`
	ProcessedCount int  `json:"processed_count"`
	FailedCount    int  `json:"failed_count"`
}

// UpdateQueue coalesces file updates by path and feeds them one at a time
// to a FileUpdater, highest priority first, pausing between items.
type UpdateQueue struct {
	updater  FileUpdater
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	items     map[string]*QueueItem
	seq       uint64
	processed int
	failed    int

	// Lifecycle management
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewUpdateQueue creates a stopped queue.
func NewUpdateQueue(updater FileUpdater, opts QueueOptions) *UpdateQueue {
	if opts.ProcessingInterval <= 0 {
		opts.ProcessingInterval = DefaultProcessingInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &UpdateQueue{
		updater:  updater,
		interval: opts.ProcessingInterval,
		logger:   opts.Logger,
		now:      time.Now,
		items:    make(map[string]*QueueItem),
	}
}

// Enqueue schedules filePath with the current time in ms as priority, so
// recent edits go first.
func (q *UpdateQueue) Enqueue(filePath, projectID string) {
	q.EnqueueWithPriority(filePath, projectID, q.now().UnixMilli())
}

// EnqueueWithPriority schedules filePath, replacing any pending entry for it.
func (q *UpdateQueue) EnqueueWithPriority(filePath, projectID string, priority int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	q.items[filePath] = &QueueItem{
		FilePath:  filePath,
		ProjectID: projectID,
		Priority:  priority,
		Timestamp: q.now().UnixMilli(),
		seq:       q.seq,
	}
}

// Pending returns a copy of the queued items in processing order.
func (q *UpdateQueue) Pending() []QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]QueueItem, 0, len(q.items))
	for _, it := range q.items {
		items = append(items, *it)
	}
	sortItems(items)
	return items
}

// Clear drops every pending item. A running loop keeps running.
func (q *UpdateQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make(map[string]*QueueItem)
}

// Stats returns a snapshot of the queue.
func (q *UpdateQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return QueueStats{
		QueueSize:      len(q.items),
		IsProcessing:   q.running,
		ProcessedCount: q.processed,
		FailedCount:    q.failed,
	}
}

// Start begins the processing loop in a background goroutine. Calling
// Start on a running queue does nothing.
func (q *UpdateQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})

	go q.run(ctx, q.stopCh, q.doneCh)
}

// Stop halts the loop after the item in flight, if any, and waits for it.
// Pending items are kept. Calling Stop on a stopped queue does nothing.
func (q *UpdateQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	stopCh, doneCh := q.stopCh, q.doneCh
	q.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (q *UpdateQueue) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	timer := time.NewTimer(q.interval)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			q.mu.Lock()
			q.running = false
			q.mu.Unlock()
			return
		default:
		}

		if item, ok := q.next(); ok {
			q.process(ctx, item)
		}

		timer.Reset(q.interval)
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			q.mu.Lock()
			q.running = false
			q.mu.Unlock()
			return
		case <-timer.C:
		}
	}
}

// next removes and returns the highest priority item; newer items win ties.
func (q *UpdateQueue) next() (QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var best *QueueItem
	for _, it := range q.items {
		if best == nil || before(it, best) {
			best = it
		}
	}
	if best == nil {
		return QueueItem{}, false
	}
	delete(q.items, best.FilePath)
	return *best, true
}

// before reports whether a is processed before b.
func before(a, b *QueueItem) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return a.seq > b.seq
}

func sortItems(items []QueueItem) {
	sort.Slice(items, func(i, j int) bool { return before(&items[i], &items[j]) })
}

func (q *UpdateQueue) update(ctx context.Context, item QueueItem) (res *index.FileIndexResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic updating %s: %v", item.FilePath, r)
		}
	}()
	return q.updater.UpdateFile(ctx, item.FilePath, item.ProjectID)
}

// process runs one update. Failures are logged and never stop the loop.
func (q *UpdateQueue) process(ctx context.Context, item QueueItem) {
	start := time.Now()
	res, err := q.update(ctx, item)

	failed := err != nil || res == nil || !res.Success
	q.mu.Lock()
	q.processed++
	if failed {
		q.failed++
	}
	q.mu.Unlock()

	switch {
	case err != nil:
		q.logger.Warn("queued update failed",
			slog.String("file_path", item.FilePath),
			slog.String("project_id", item.ProjectID),
			slog.String("error", err.Error()))
	case failed:
		attrs := []any{slog.String("file_path", item.FilePath), slog.String("project_id", item.ProjectID)}
		if res != nil && res.Error != nil {
			attrs = append(attrs, slog.String("error", res.Error.Error()))
		}
		q.logger.Warn("queued update skipped", attrs...)
	default:
		q.logger.Debug("queued update done",
			slog.String("file_path", item.FilePath),
			slog.Int("symbols", res.Symbols),
			slog.Duration("duration", time.Since(start)))
	}
}
