package watcher

import (
	"context"
	"time"
)

// Operation is the kind of change reported for a path.
type Operation int

const (
	// OpAdd reports a new file.
	OpAdd Operation = iota
	// OpChange reports a modified or replaced file.
	OpChange
	// OpUnlink reports a removed file. Renames surface as OpUnlink for the
	// old path and OpAdd for the new one.
	OpUnlink
	// OpGitignoreChange reports an edited .gitignore; ignore rules have
	// been reloaded and the project should be reconciled.
	OpGitignoreChange
	// OpConfigChange reports an edited project config file.
	OpConfigChange
)

// Reconciles reports whether op invalidates the set of indexable files,
// so the whole project has to be indexed again.
func (op Operation) Reconciles() bool {
	return op == OpGitignoreChange || op == OpConfigChange
}

func (op Operation) String() string {
	switch op {
	case OpAdd:
		return "ADD"
	case OpChange:
		return "CHANGE"
	case OpUnlink:
		return "UNLINK"
	case OpGitignoreChange:
		return "GITIGNORE_CHANGE"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change.
type FileEvent struct {
	// Path is relative to the watched root, slash separated.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Watcher reports debounced file events for a directory tree.
type Watcher interface {
	// Start watches path recursively until Stop is called or ctx is done.
	Start(ctx context.Context, path string) error

	// Stop releases resources and closes both channels. Safe to call
	// multiple times.
	Stop() error

	// Events delivers batches of coalesced events.
	Events() <-chan []FileEvent

	// Errors delivers non-fatal errors; watching continues.
	Errors() <-chan error
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the time to wait before emitting coalesced events.
	// Default: 200ms
	DebounceWindow time.Duration

	// PollInterval is used by the polling fallback.
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the number of batches buffered for Events.
	// Default: 1000
	EventBufferSize int

	// IgnorePatterns use gitignore syntax and apply on top of .gitignore.
	IgnorePatterns []string

	// ConfigFiles are base names reported as OpConfigChange.
	ConfigFiles []string
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
