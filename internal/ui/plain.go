package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// PlainRenderer prints one line per update. Updates within the same
// file count are collapsed so parallel workers do not repeat lines.
type PlainRenderer struct {
	mu       sync.Mutex
	w        io.Writer
	lastDone int
}

var _ Renderer = (*PlainRenderer)(nil)

// NewPlainRenderer writes to w.
func NewPlainRenderer(w io.Writer) *PlainRenderer {
	return &PlainRenderer{w: w, lastDone: -1}
}

func (r *PlainRenderer) Start(context.Context) error { return nil }

func (r *PlainRenderer) Progress(u FileUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	label := u.label()
	switch {
	case u.Total > 0:
		if u.Done == r.lastDone && u.Note == "" {
			return
		}
		r.lastDone = u.Done
		r.printf("[%s] %d/%d %s\n", u.Phase.Tag(), u.Done, u.Total, label)
	case label != "":
		r.printf("[%s] %s\n", u.Phase.Tag(), label)
	}
}

func (r *PlainRenderer) Problem(p FileProblem) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := "failed"
	if p.Partial {
		kind = "partial"
	}
	if p.Path == "" {
		r.printf("%s: %v\n", kind, p.Err)
		return
	}
	r.printf("%s: %s: %v\n", kind, p.Path, p.Err)
}

func (r *PlainRenderer) Finish(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printf("%s\n", summaryLine(s))
}

func (r *PlainRenderer) Stop() error { return nil }

func (r *PlainRenderer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.w, format, args...)
}

// summaryLine renders s as "Complete: 3 files, 12 symbols in 1.5s" with
// the non-zero problem counts appended.
func summaryLine(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Complete: %d files, %d symbols in %s",
		s.Files, s.Symbols, s.Duration.Round(100*time.Millisecond))

	var extra []string
	if s.Failed > 0 {
		extra = append(extra, fmt.Sprintf("%d failed", s.Failed))
	}
	if s.Partial > 0 {
		extra = append(extra, fmt.Sprintf("%d partial", s.Partial))
	}
	if s.Removed > 0 {
		extra = append(extra, fmt.Sprintf("%d removed", s.Removed))
	}
	if len(extra) > 0 {
		b.WriteString(" (" + strings.Join(extra, ", ") + ")")
	}
	return b.String()
}
