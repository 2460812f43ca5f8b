package async

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridindex/internal/index"
)

func TestNewIndexProgress(t *testing.T) {
	// Given/When: creating a new progress tracker
	p := NewIndexProgress("p1")

	// Then: should be initialized with indexing status
	require.NotNil(t, p)
	snap := p.Snapshot()
	assert.Equal(t, "p1", snap.ProjectID)
	assert.Equal(t, string(StatusIndexing), snap.Status)
	assert.Equal(t, string(StageScanning), snap.Stage)
	assert.Equal(t, 0, snap.FilesTotal)
	assert.Equal(t, 0, snap.FilesProcessed)
	assert.True(t, p.IsIndexing())
}

func TestIndexProgress_Observe(t *testing.T) {
	tests := []struct {
		name          string
		events        []index.Event
		wantStage     string
		wantTotal     int
		wantProcessed int
		wantFailed    int
		wantSymbols   int
	}{
		{
			name:      "scan completed",
			events:    []index.Event{{Kind: index.EventScanCompleted, ProjectID: "p1", Files: 10}},
			wantStage: "indexing",
			wantTotal: 10,
		},
		{
			name: "files completed",
			events: []index.Event{
				{Kind: index.EventScanCompleted, ProjectID: "p1", Files: 3},
				{Kind: index.EventFileStarted, ProjectID: "p1", FilePath: "a.go"},
				{Kind: index.EventFileCompleted, ProjectID: "p1", FilePath: "a.go", Symbols: 4},
				{Kind: index.EventFileCompleted, ProjectID: "p1", FilePath: "b.go", Symbols: 2},
			},
			wantStage:     "indexing",
			wantTotal:     3,
			wantProcessed: 2,
			wantSymbols:   6,
		},
		{
			name: "file error",
			events: []index.Event{
				{Kind: index.EventScanCompleted, ProjectID: "p1", Files: 2},
				{Kind: index.EventFileError, ProjectID: "p1", FilePath: "a.go", Err: errors.New("boom")},
			},
			wantStage:     "indexing",
			wantTotal:     2,
			wantProcessed: 1,
			wantFailed:    1,
		},
		{
			name: "other project ignored",
			events: []index.Event{
				{Kind: index.EventScanCompleted, ProjectID: "p2", Files: 9},
				{Kind: index.EventFileCompleted, ProjectID: "p2", Symbols: 5},
			},
			wantStage: "scanning",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewIndexProgress("p1")
			for _, e := range tt.events {
				p.Observe(e)
			}

			snap := p.Snapshot()
			assert.Equal(t, tt.wantStage, snap.Stage)
			assert.Equal(t, tt.wantTotal, snap.FilesTotal)
			assert.Equal(t, tt.wantProcessed, snap.FilesProcessed)
			assert.Equal(t, tt.wantFailed, snap.FilesFailed)
			assert.Equal(t, tt.wantSymbols, snap.Symbols)
		})
	}
}

func TestIndexProgress_SetError(t *testing.T) {
	// Given: a progress tracker
	p := NewIndexProgress("p1")

	// When: setting an error
	p.SetError("embedder unavailable")

	// Then: status should be error with message
	snap := p.Snapshot()
	assert.Equal(t, string(StatusError), snap.Status)
	assert.Equal(t, "embedder unavailable", snap.ErrorMessage)
	assert.False(t, p.IsIndexing())
}

func TestIndexProgress_SetReady(t *testing.T) {
	// Given: a progress tracker mid-run
	p := NewIndexProgress("p1")
	p.Observe(index.Event{Kind: index.EventScanCompleted, ProjectID: "p1", Files: 1})

	// When: marking as ready
	p.SetReady()

	// Then: status should be ready and stage done
	snap := p.Snapshot()
	assert.Equal(t, string(StatusReady), snap.Status)
	assert.Equal(t, string(StageDone), snap.Stage)
	assert.False(t, p.IsIndexing())
}

func TestIndexProgress_ProgressPct(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		processed int
		wantPct   float64
	}{
		{name: "no files", total: 0, processed: 0, wantPct: 0},
		{name: "quarter", total: 4, processed: 1, wantPct: 25},
		{name: "all", total: 2, processed: 2, wantPct: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewIndexProgress("p1")
			p.Observe(index.Event{Kind: index.EventScanCompleted, ProjectID: "p1", Files: tt.total})
			for i := 0; i < tt.processed; i++ {
				p.Observe(index.Event{Kind: index.EventFileCompleted, ProjectID: "p1"})
			}

			assert.InDelta(t, tt.wantPct, p.Snapshot().ProgressPct, 1e-9)
		})
	}
}

func TestIndexProgress_ThreadSafe(t *testing.T) {
	// Given: a progress tracker
	p := NewIndexProgress("p1")
	p.Observe(index.Event{Kind: index.EventScanCompleted, ProjectID: "p1", Files: 100})

	// When: observing and reading concurrently
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Observe(index.Event{Kind: index.EventFileCompleted, ProjectID: "p1", Symbols: 1})
		}()
		go func() {
			defer wg.Done()
			_ = p.Snapshot()
		}()
	}
	wg.Wait()

	// Then: every event was counted
	snap := p.Snapshot()
	assert.Equal(t, 100, snap.FilesProcessed)
	assert.Equal(t, 100, snap.Symbols)
}
