package ui

import (
	"errors"
	"sync"

	"github.com/Aman-CERP/hybridindex/internal/index"
)

// errIndexFailed stands in for file errors emitted without a cause.
var errIndexFailed = errors.New("indexing failed")

// EventSink turns indexer events into renderer calls. Observe may be
// called from parallel workers.
type EventSink struct {
	r Renderer

	mu    sync.Mutex
	total int
	done  int
}

// NewEventSink forwards to r.
func NewEventSink(r Renderer) *EventSink {
	return &EventSink{r: r}
}

// Observe handles one indexer event.
func (s *EventSink) Observe(e index.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Kind {
	case index.EventScanCompleted:
		s.total, s.done = e.Files, 0
		s.r.Progress(FileUpdate{Phase: PhaseIndex, Total: s.total, Note: "scan complete"})
		return
	case index.EventFileStarted:
	case index.EventFileError:
		s.done++
		err := e.Err
		if err == nil {
			err = errIndexFailed
		}
		s.r.Problem(FileProblem{Path: e.FilePath, Err: err})
	case index.EventFileCompleted:
		s.done++
	default:
		return
	}
	s.r.Progress(FileUpdate{Phase: PhaseIndex, Done: s.done, Total: s.total, Path: e.FilePath})
}

// SummaryFromResult converts a project result for Finish. Files that
// were indexed with errors count as partial.
func SummaryFromResult(res *index.ProjectIndexResult) Summary {
	if res == nil {
		return Summary{}
	}
	return Summary{
		Files:    res.IndexedFiles,
		Failed:   res.FailedFiles,
		Partial:  max(len(res.Errors)-res.FailedFiles, 0),
		Removed:  res.RemovedFiles,
		Symbols:  res.TotalSymbols,
		Vectors:  res.TotalVectors,
		Duration: res.Duration,
	}
}
