package ui

import (
	"sync"
	"time"
)

// runState accumulates what the TUI shows about a run. It is updated from
// the renderer and read by the bubbletea model.
type runState struct {
	mu      sync.Mutex
	now     func() time.Time
	phase   Phase
	done    int
	total   int
	path    string
	failed  int
	partial int
	started time.Time
	phaseAt time.Time
}

// runSnapshot is a consistent copy of runState.
type runSnapshot struct {
	Phase     Phase
	Done      int
	Total     int
	Path      string
	Failed    int
	Partial   int
	Elapsed   time.Duration
	Rate      float64
	Remaining time.Duration
}

// Fraction is Done/Total clamped to [0,1].
func (s runSnapshot) Fraction() float64 {
	if s.Total <= 0 {
		return 0
	}
	return min(float64(s.Done)/float64(s.Total), 1)
}

func newRunState(now func() time.Time) *runState {
	if now == nil {
		now = time.Now
	}
	t := now()
	return &runState{now: now, started: t, phaseAt: t}
}

// apply records u. A phase change or a new total restarts the counters
// used for the rate.
func (r *runState) apply(u FileUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u.Phase != r.phase || u.Total != r.total {
		r.phase = u.Phase
		r.total = u.Total
		r.done = 0
		r.path = ""
		r.phaseAt = r.now()
	}
	r.done = max(r.done, u.Done)
	if u.Path != "" {
		r.path = u.Path
	}
}

func (r *runState) problem(p FileProblem) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Partial {
		r.partial++
	} else {
		r.failed++
	}
}

func (r *runState) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.phase = PhaseDone
	r.path = ""
}

func (r *runState) snapshot() runSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	s := runSnapshot{
		Phase:   r.phase,
		Done:    r.done,
		Total:   r.total,
		Path:    r.path,
		Failed:  r.failed,
		Partial: r.partial,
		Elapsed: now.Sub(r.started),
	}

	inPhase := now.Sub(r.phaseAt).Seconds()
	if r.done > 0 && inPhase > 0 {
		s.Rate = float64(r.done) / inPhase
		if left := r.total - r.done; left > 0 {
			s.Remaining = time.Duration(float64(left) / s.Rate * float64(time.Second))
		}
	}
	return s
}
