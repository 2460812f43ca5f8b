package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced by hand.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRunState_RateAndRemaining(t *testing.T) {
	// Given: an indexing phase of four files
	clk := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	s := newRunState(clk.now)
	s.apply(FileUpdate{Phase: PhaseIndex, Total: 4})

	// When: two files finish in two seconds
	clk.advance(2 * time.Second)
	s.apply(FileUpdate{Phase: PhaseIndex, Done: 2, Total: 4, Path: "cart/cart.go"})

	// Then: one file per second leaves two seconds
	snap := s.snapshot()
	assert.InDelta(t, 0.5, snap.Fraction(), 1e-9)
	assert.InDelta(t, 1.0, snap.Rate, 1e-9)
	assert.Equal(t, 2*time.Second, snap.Remaining)
	assert.Equal(t, "cart/cart.go", snap.Path)
	assert.Equal(t, 2*time.Second, snap.Elapsed)
}

func TestRunState_DoneNeverGoesBack(t *testing.T) {
	// Given: a state at two of four files
	s := newRunState(nil)
	s.apply(FileUpdate{Phase: PhaseIndex, Done: 2, Total: 4})

	// When: a late update from another worker arrives
	s.apply(FileUpdate{Phase: PhaseIndex, Done: 1, Total: 4})

	// Then: the count stays
	assert.Equal(t, 2, s.snapshot().Done)
}

func TestRunState_ProblemsAndFinish(t *testing.T) {
	// Given: a state with a failure and a partial file
	s := newRunState(nil)
	s.apply(FileUpdate{Phase: PhaseIndex, Done: 1, Total: 2, Path: "a.go"})
	s.problem(FileProblem{Path: "b.txt", Err: errors.New("unsupported")})
	s.problem(FileProblem{Path: "c.py", Partial: true})

	// When: the run finishes
	s.finish()

	// Then: counts survive and the current path is cleared
	snap := s.snapshot()
	assert.Equal(t, PhaseDone, snap.Phase)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 1, snap.Partial)
	assert.Empty(t, snap.Path)
}

func TestRunSnapshot_FractionClamped(t *testing.T) {
	assert.InDelta(t, 1.0, runSnapshot{Done: 5, Total: 2}.Fraction(), 1e-9)
	assert.Zero(t, runSnapshot{Done: 5}.Fraction())
}

func TestRunModel_View(t *testing.T) {
	// Given: a model halfway through indexing
	clk := &fakeClock{t: time.Now()}
	s := newRunState(clk.now)
	s.apply(FileUpdate{Phase: PhaseIndex, Done: 5, Total: 10, Path: "internal/store/sqlite_bm25.go"})
	m := newRunModel(s, "/repo")
	m.styles = NoColorStyles()

	// When: rendering
	view := m.View()

	// Then: header, finished phase, counts and file are shown
	assert.Contains(t, view, "hybridindex · /repo")
	assert.Contains(t, view, "● Scanning")
	assert.Contains(t, view, "5 / 10 files")
	assert.Contains(t, view, "internal/store/sqlite_bm25.go")
	assert.Contains(t, view, "q to quit")
}

func TestRunModel_Finished(t *testing.T) {
	// Given: a model
	m := newRunModel(newRunState(nil), "")
	m.styles = NoColorStyles()

	// When: the summary arrives
	_, cmd := m.Update(finishedMsg(Summary{Files: 3, Symbols: 12, Vectors: 12, Failed: 1, Duration: 2 * time.Second}))

	// Then: the program quits showing the summary
	require.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Index up to date")
	assert.Contains(t, view, "12")
	assert.Contains(t, view, "1 failed")
}

func TestRunModel_QuitKey(t *testing.T) {
	m := newRunModel(newRunState(nil), "")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	require.NotNil(t, cmd)
	assert.Equal(t, "Cancelled.\n", m.View())
}

func TestHumanDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{400 * time.Millisecond, "0s"},
		{42 * time.Second, "42s"},
		{3 * time.Minute, "3m"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{time.Hour + 2*time.Minute + 9*time.Second, "1h 2m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, humanDuration(tt.d))
	}
}

func TestShortenPath(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"fits", "a/b.go"},
		{"keeps file name", "internal/store/very/deep/path/file.go"},
		{"long file name", "dir/" + strings.Repeat("x", 40) + ".go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := shortenPath(tt.path, 20)
			assert.LessOrEqual(t, len(got), 20)
			assert.True(t, strings.HasSuffix(got, ".go"))
		})
	}
	assert.Equal(t, "...", shortenPath("abcdefgh", 3))
}
