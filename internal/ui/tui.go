package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// stopTimeout bounds how long Stop waits for the program to exit.
const stopTimeout = 2 * time.Second

// TUIRenderer draws a run with bubbletea.
type TUIRenderer struct {
	cfg   Config
	state *runState
	model *runModel

	mu      sync.Mutex
	program *tea.Program
	exited  chan struct{}
}

var _ Renderer = (*TUIRenderer)(nil)

// NewTUIRenderer fails unless cfg.Output is a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.New("output is not a terminal")
	}

	state := newRunState(nil)
	model := newRunModel(state, cfg.ProjectDir)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}
	return &TUIRenderer{cfg: cfg, state: state, model: model, exited: make(chan struct{})}, nil
}

func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		return nil
	}
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)

	go func(p *tea.Program) {
		defer close(r.exited)
		_, _ = p.Run()
	}(r.program)
	return nil
}

func (r *TUIRenderer) Progress(u FileUpdate) {
	r.state.apply(u)
	r.send(redrawMsg{})
}

func (r *TUIRenderer) Problem(p FileProblem) {
	r.state.problem(p)
	r.send(redrawMsg{})
}

func (r *TUIRenderer) Finish(s Summary) {
	r.state.finish()
	r.send(finishedMsg(s))
}

func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		return nil
	}

	p.Quit()
	select {
	case <-r.exited:
	case <-time.After(stopTimeout):
	}
	return nil
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

type (
	redrawMsg   struct{}
	finishedMsg Summary
	clockMsg    time.Time
)

// runModel is the bubbletea model of a project run.
type runModel struct {
	state      *runState
	projectDir string
	styles     Styles
	spin       spinner.Model
	bar        progress.Model
	width      int

	cancelled bool
	summary   *Summary
}

func newRunModel(state *runState, projectDir string) *runModel {
	spin := spinner.New(spinner.WithSpinner(spinner.MiniDot))
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	return &runModel{
		state:      state,
		projectDir: projectDir,
		styles:     DefaultStyles(),
		spin:       spin,
		bar:        progress.New(progress.WithSolidFill(ColorLime), progress.WithoutPercentage(), progress.WithWidth(48)),
		width:      80,
	}
}

func (m *runModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, clock())
}

func clock() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return clockMsg(t) })
}

func (m *runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if k := msg.String(); k == "ctrl+c" || k == "q" {
			m.cancelled = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-24, 20)
	case finishedMsg:
		s := Summary(msg)
		m.summary = &s
		return m, tea.Quit
	case clockMsg:
		return m, clock()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *runModel) View() string {
	switch {
	case m.cancelled:
		return "Cancelled.\n"
	case m.summary != nil:
		return m.summaryView(*m.summary)
	}

	snap := m.state.snapshot()
	width := max(m.width-4, 40)

	title := "hybridindex"
	if m.projectDir != "" {
		title += " · " + m.projectDir
	}
	lines := []string{
		m.styles.Header.Render(title),
		m.phaseLine(snap.Phase),
		m.styles.Border.Render(strings.Repeat("─", width)),
	}
	lines = append(lines, m.counterLines(snap)...)
	if snap.Path != "" {
		lines = append(lines, m.styles.Dim.Render(shortenPath(snap.Path, width-2)))
	}
	lines = append(lines, m.footer(snap))
	return strings.Join(lines, "\n") + "\n"
}

func (m *runModel) phaseLine(current Phase) string {
	var parts []string
	for _, p := range []Phase{PhaseScan, PhaseIndex} {
		switch {
		case p < current:
			parts = append(parts, m.styles.Success.Render("● "+p.String()))
		case p == current:
			parts = append(parts, m.styles.Active.Render(m.spin.View()+" "+p.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+p.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *runModel) counterLines(s runSnapshot) []string {
	if s.Total == 0 {
		return []string{m.spin.View() + " " + s.Phase.String() + "..."}
	}
	head := m.bar.ViewAs(s.Fraction()) + "  " + m.styles.Active.Render(fmt.Sprintf("%3.0f%%", s.Fraction()*100))

	detail := fmt.Sprintf("%d / %d files", s.Done, s.Total)
	if s.Rate > 0 {
		detail += fmt.Sprintf("  ·  %.1f files/s", s.Rate)
	}
	if s.Remaining > 0 {
		detail += "  ·  ~" + humanDuration(s.Remaining) + " left"
	}
	return []string{head, m.styles.Label.Render(detail)}
}

func (m *runModel) footer(s runSnapshot) string {
	var parts []string
	if s.Partial > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d partial", s.Partial)))
	}
	if s.Failed > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d failed", s.Failed)))
	}
	parts = append(parts, m.styles.Dim.Render(humanDuration(s.Elapsed)+" elapsed"), m.styles.Dim.Render("q to quit"))
	return strings.Join(parts, m.styles.Dim.Render("  │  "))
}

func (m *runModel) summaryView(s Summary) string {
	row := func(label string, v any) string {
		return fmt.Sprintf("%-10s %s", m.styles.Label.Render(label), m.styles.Active.Render(fmt.Sprint(v)))
	}

	lines := []string{
		m.styles.Success.Render("✓ Index up to date"),
		"",
		row("Files:", s.Files),
		row("Symbols:", s.Symbols),
		row("Vectors:", s.Vectors),
		row("Duration:", humanDuration(s.Duration)),
	}
	if s.Removed > 0 {
		lines = append(lines, row("Removed:", s.Removed))
	}
	if s.Failed > 0 {
		lines = append(lines, "", m.styles.Error.Render(fmt.Sprintf("✗ %d failed", s.Failed)))
	}
	if s.Partial > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d indexed with parse errors", s.Partial)))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorLime)).
		Padding(1, 2).
		Width(max(m.width-4, 40)).
		Render(strings.Join(lines, "\n")) + "\n"
}

// humanDuration prints whole seconds below a minute and drops seconds
// above an hour.
func humanDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h, mins, secs := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, mins)
	case mins > 0 && secs == 0:
		return fmt.Sprintf("%dm", mins)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

// shortenPath fits path into maxLen runes of output, keeping the file
// name and as much of its directory as fits.
func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen < 4 {
		return "..."
	}

	slash := strings.LastIndexByte(path, '/')
	name := path[slash+1:]
	if slash < 0 || len(name)+4 > maxLen {
		return "..." + path[len(path)-(maxLen-3):]
	}
	dir := path[:slash]
	keep := maxLen - len(name) - 4
	return "..." + dir[len(dir)-keep:] + "/" + name
}
