// Package async provides background processing: the update queue that
// re-indexes changed files, and a background runner for whole-project
// indexing with progress tracking.
package async

import (
	"sync"
	"time"

	"github.com/Aman-CERP/hybridindex/internal/index"
)

// IndexingStatus represents the overall indexing state.
type IndexingStatus string

const (
	// StatusIndexing indicates indexing is in progress.
	StatusIndexing IndexingStatus = "indexing"
	// StatusReady indicates indexing is complete and search is available.
	StatusReady IndexingStatus = "ready"
	// StatusError indicates indexing failed with an error.
	StatusError IndexingStatus = "error"
)

// IndexingStage represents the current stage of a project run.
type IndexingStage string

const (
	StageScanning IndexingStage = "scanning"
	StageIndexing IndexingStage = "indexing"
	StageDone     IndexingStage = "done"
)

// IndexProgressSnapshot is an immutable snapshot of indexing progress.
type IndexProgressSnapshot struct {
	ProjectID      string  `json:"project_id"`
	Status         string  `json:"status"`
	Stage          string  `json:"stage"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	FilesFailed    int     `json:"files_failed"`
	Symbols        int     `json:"symbols"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// IndexProgress provides thread-safe tracking of a project run. It is fed
// by indexer events through Observe.
type IndexProgress struct {
	mu sync.RWMutex

	projectID      string
	status         IndexingStatus
	stage          IndexingStage
	filesTotal     int
	filesProcessed int
	filesFailed    int
	symbols        int
	startTime      time.Time
	errorMessage   string
}

// NewIndexProgress creates a progress tracker for projectID, scanning.
func NewIndexProgress(projectID string) *IndexProgress {
	return &IndexProgress{
		projectID: projectID,
		status:    StatusIndexing,
		stage:     StageScanning,
		startTime: time.Now(),
	}
}

// Observe applies an indexer event. Events of other projects are ignored.
func (p *IndexProgress) Observe(e index.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e.ProjectID != p.projectID {
		return
	}
	switch e.Kind {
	case index.EventScanCompleted:
		p.stage = StageIndexing
		p.filesTotal = e.Files
	case index.EventFileCompleted:
		p.filesProcessed++
		p.symbols += e.Symbols
	case index.EventFileError:
		p.filesProcessed++
		p.filesFailed++
	}
}

// SetError marks the run as failed with an error message.
func (p *IndexProgress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
}

// SetReady marks the run as complete.
func (p *IndexProgress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
	p.stage = StageDone
}

// IsIndexing returns true if the run is still in progress.
func (p *IndexProgress) IsIndexing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusIndexing
}

// Snapshot returns an immutable copy of the current progress state.
func (p *IndexProgress) Snapshot() IndexProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var progressPct float64
	if p.filesTotal > 0 {
		progressPct = float64(p.filesProcessed) / float64(p.filesTotal) * 100.0
	}

	return IndexProgressSnapshot{
		ProjectID:      p.projectID,
		Status:         string(p.status),
		Stage:          string(p.stage),
		FilesTotal:     p.filesTotal,
		FilesProcessed: p.filesProcessed,
		FilesFailed:    p.filesFailed,
		Symbols:        p.symbols,
		ProgressPct:    progressPct,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
