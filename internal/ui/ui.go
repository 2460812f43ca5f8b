// Package ui renders project indexing runs and index status in the
// terminal: a bubbletea view on interactive terminals, one line per
// update elsewhere.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Phase is the part of a project run being shown.
type Phase int

const (
	PhaseScan Phase = iota
	PhaseIndex
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseScan:
		return "Scanning"
	case PhaseIndex:
		return "Indexing"
	case PhaseDone:
		return "Complete"
	}
	return "Unknown"
}

// Tag is the bracketed prefix used by plain output.
func (p Phase) Tag() string {
	switch p {
	case PhaseScan:
		return "SCAN"
	case PhaseIndex:
		return "INDEX"
	case PhaseDone:
		return "DONE"
	}
	return "???"
}

// FileUpdate reports how far a run has come. Path is the file being
// worked on, Note replaces it when set.
type FileUpdate struct {
	Phase Phase
	Done  int
	Total int
	Path  string
	Note  string
}

// label is what plain output prints after the counters.
func (u FileUpdate) label() string {
	if u.Note != "" {
		return u.Note
	}
	return u.Path
}

// FileProblem is a file that failed, or that was indexed with parse
// errors when Partial is set.
type FileProblem struct {
	Path    string
	Err     error
	Partial bool
}

// Summary closes a run.
type Summary struct {
	Files    int
	Failed   int
	Partial  int
	Removed  int
	Symbols  int
	Vectors  int
	Duration time.Duration
}

// Renderer shows one project run.
type Renderer interface {
	Start(ctx context.Context) error
	Progress(u FileUpdate)
	Problem(p FileProblem)
	Finish(s Summary)
	Stop() error
}

// Config selects and configures a Renderer.
type Config struct {
	Output     io.Writer
	ProjectDir string
	Plain      bool
	NoColor    bool
}

// NewRenderer returns the TUI when Output is an interactive terminal
// outside CI, and the plain renderer otherwise.
func NewRenderer(cfg Config) Renderer {
	if cfg.Plain || !Interactive(cfg.Output) {
		return NewPlainRenderer(cfg.Output)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg.Output)
	}
	return tui
}

// ciVars mark a CI run; their value does not matter.
var ciVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "BUILDKITE", "JENKINS_URL"}

// Interactive reports whether w is a terminal and the process is not
// running under CI.
func Interactive(w io.Writer) bool {
	if !IsTTY(w) {
		return false
	}
	for _, v := range ciVars {
		if _, ok := os.LookupEnv(v); ok {
			return false
		}
	}
	return true
}

// IsTTY reports whether w is a terminal file.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}
