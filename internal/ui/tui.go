package ui

import (
	"context"
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

// TUIRenderer is the live indexing dashboard, built on bubbletea. It
// renders inline rather than on the alternate screen, so the final
// summary stays in the scrollback after the run.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *dashboardModel
	tracker *ProgressTracker
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates the dashboard renderer. It fails when the
// output is not a terminal; NewRenderer falls back to plain output.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a terminal")
	}

	tracker := NewProgressTracker()
	model := newDashboardModel(tracker, cfg.SourceDir)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer. The bubbletea program runs in its own
// goroutine until Complete or Stop.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	opts = append(opts, tea.WithContext(ctx))

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
		if r.model.interrupted() && r.cfg.OnInterrupt != nil {
			r.cfg.OnInterrupt()
		}
	}()

	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.tracker.Stats().Stage {
		r.tracker.SetStage(event.Stage, event.Total)
	}
	r.tracker.Update(event.Current, event.CurrentFile)

	if r.program != nil {
		r.program.Send(progressUpdateMsg(event))
	}
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.AddError(event)

	if r.program != nil {
		r.program.Send(errorMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.SetStage(StageComplete, 0)

	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer. Safe to call more than once.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return nil
	}

	r.program.Quit()

	// Do not hang the process on an unresponsive terminal.
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}

	return nil
}

// bubbletea message types
type progressUpdateMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats
type tickMsg time.Time

// dashboardModel is the bubbletea model behind the dashboard.
type dashboardModel struct {
	mu        sync.Mutex
	tracker   *ProgressTracker
	sourceDir string
	styles    Styles

	width    int
	quitting bool
	complete bool
	stats    CompletionStats

	spinner spinner.Model
	bar     progress.Model
}

func newDashboardModel(tracker *ProgressTracker, sourceDir string) *dashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAmber))

	bar := progress.New(
		progress.WithSolidFill(ColorAmber),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &dashboardModel{
		tracker:   tracker,
		sourceDir: sourceDir,
		styles:    DefaultStyles(),
		width:     80,
		spinner:   s,
		bar:       bar,
	}
}

// interrupted reports whether the user quit the dashboard mid-run.
func (m *dashboardModel) interrupted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quitting && !m.complete
}

// Init implements tea.Model.
func (m *dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// tickCmd redraws the dashboard every 100ms so the ETA, speed, and
// sparkline stay live between progress events.
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.mu.Lock()
			m.quitting = true
			m.mu.Unlock()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 24
		if m.bar.Width < 20 {
			m.bar.Width = 20
		}

	case progressUpdateMsg, errorMsg:
		// State lives in the tracker; the message only forces a redraw.
		return m, nil

	case completeMsg:
		m.mu.Lock()
		m.complete = true
		m.stats = CompletionStats(msg)
		m.mu.Unlock()
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *dashboardModel) View() string {
	m.mu.Lock()
	quitting, complete := m.quitting, m.complete
	m.mu.Unlock()

	if quitting && !complete {
		return m.styles.Warning.Render("Cancelled, cleaning up...") + "\n"
	}
	if complete {
		return m.renderComplete()
	}

	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	sections := []string{
		m.renderStages(),
		m.renderDivider(contentWidth),
		m.renderProgress(),
		m.renderSpeed(),
		m.renderDivider(contentWidth),
		m.renderSparkline(contentWidth),
	}
	if file := m.tracker.Stats().CurrentFile; file != "" {
		sections = append(sections,
			m.renderDivider(contentWidth),
			m.styles.Dim.Render(truncatePath(file, contentWidth-2)))
	}

	title := "hindex"
	if m.sourceDir != "" {
		title = "hindex · " + m.sourceDir
	}

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(contentWidth)

	body := lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(strings.Join(sections, "\n")),
	)

	return body + "\n" + m.renderStatusBar()
}

// renderStages draws the pipeline indicator: done, active, pending.
func (m *dashboardModel) renderStages() string {
	current := m.tracker.Stats().Stage

	var parts []string
	for _, s := range []Stage{StageScanning, StageIndexing} {
		var icon string
		var style lipgloss.Style
		switch {
		case s < current:
			icon = "●"
			style = m.styles.Success
		case s == current:
			icon = m.spinner.View()
			style = m.styles.Active
		default:
			icon = "○"
			style = m.styles.Dim
		}
		parts = append(parts, style.Render(icon+" "+s.String()))
	}

	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *dashboardModel) renderProgress() string {
	stats := m.tracker.Stats()

	if stats.Total == 0 {
		return fmt.Sprintf("%s %s", m.spinner.View(), m.styles.Dim.Render("Preparing..."))
	}

	bar := m.bar.ViewAs(stats.Progress)
	pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100))
	count := m.styles.Label.Render(fmt.Sprintf("%d / %d files", stats.Current, stats.Total))

	return fmt.Sprintf("%s  %s\n%s", bar, pct, count)
}

func (m *dashboardModel) renderSpeed() string {
	stats := m.tracker.Stats()

	speed := fmt.Sprintf("Speed: %.1f files/s", stats.Speed.Current)
	if stats.Speed.Avg > 0 {
		speed += fmt.Sprintf(" (avg %.1f, peak %.1f)", stats.Speed.Avg, stats.Speed.Peak)
	}
	parts := []string{m.styles.Speed.Render(speed)}

	if eta := stats.ETA; eta > 0 {
		parts = append(parts, m.styles.Label.Render("ETA: "+formatDuration(eta)))
	}

	return strings.Join(parts, m.styles.Dim.Render("  ·  "))
}

func (m *dashboardModel) renderSparkline(width int) string {
	sparkWidth := width - 14
	if sparkWidth < 10 {
		sparkWidth = 10
	}
	spark := m.tracker.RenderSparkline(sparkWidth)
	return m.styles.Spark.Render(spark) + " " + m.styles.Dim.Render("throughput")
}

func (m *dashboardModel) renderDivider(width int) string {
	return m.styles.Border.Render(strings.Repeat("─", width))
}

func (m *dashboardModel) renderStatusBar() string {
	stats := m.tracker.Stats()

	var parts []string
	if stats.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", stats.WarnCount)))
	}
	if stats.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d failed", stats.ErrorCount)))
	}
	if len(parts) == 0 {
		return m.styles.Dim.Render("q to cancel")
	}

	sep := m.styles.Dim.Render("  │  ")
	return strings.Join(parts, sep) + sep + m.styles.Dim.Render("q to cancel")
}

// renderComplete draws the final summary panel. It is the last frame the
// program leaves on screen.
func (m *dashboardModel) renderComplete() string {
	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	lines := []string{
		m.styles.Success.Render("✓ Indexing complete"),
		"",
		m.statLine("Files:", fmt.Sprintf("%d", m.stats.Files)),
		m.statLine("Chunks:", fmt.Sprintf("%d", m.stats.Chunks)),
		m.statLine("Duration:", formatDuration(m.stats.Duration)),
	}
	if m.stats.Skipped > 0 {
		lines = append(lines, m.statLine("Skipped:", fmt.Sprintf("%d unchanged", m.stats.Skipped)))
	}
	if m.stats.PointsDeleted > 0 {
		lines = append(lines, m.statLine("Pruned:", fmt.Sprintf("%d stale points", m.stats.PointsDeleted)))
	}
	if m.stats.Duration > 0 && m.stats.Files > 0 {
		avg := float64(m.stats.Files) / m.stats.Duration.Seconds()
		lines = append(lines, m.statLine("Speed:", fmt.Sprintf("%.1f files/s", avg)))
	}
	if m.stats.Model != "" {
		lines = append(lines, m.statLine("Model:", fmt.Sprintf("%s (%d dims)", m.stats.Model, m.stats.Dimensions)))
		lines = append(lines, m.statLine("Collection:", m.stats.Collection))
	}

	if m.stats.Failed > 0 || m.stats.Oversized > 0 {
		lines = append(lines, "")
		if m.stats.Failed > 0 {
			lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d files failed", m.stats.Failed)))
		}
		if m.stats.Oversized > 0 {
			lines = append(lines, m.styles.Warning.Render(
				fmt.Sprintf("⚠ %d chunks over the token budget, kept whole", m.stats.Oversized)))
		}
	}

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorAmber)).
		Padding(1, 2).
		Width(contentWidth)

	return panel.Render(strings.Join(lines, "\n")) + "\n"
}

func (m *dashboardModel) statLine(label, value string) string {
	return m.styles.Label.Render(fmt.Sprintf("%-12s", label)) + " " + m.styles.Active.Render(value)
}

// formatDuration renders a duration the way a human reads it.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// truncatePath shortens a path to maxLen, keeping the filename and as
// much of the trailing directory part as fits.
func truncatePath(path string, maxLen int) string {
	if path == "" || len(path) <= maxLen {
		return path
	}

	parts := strings.Split(path, "/")
	if len(parts) == 1 {
		if maxLen < 4 {
			return "..."
		}
		return "..." + path[len(path)-maxLen+3:]
	}

	filename := parts[len(parts)-1]
	if len(filename)+4 > maxLen {
		return "..." + filename[len(filename)-maxLen+3:]
	}

	remaining := maxLen - len(filename) - 4
	prefix := strings.Join(parts[:len(parts)-1], "/")
	if len(prefix) <= remaining {
		return path
	}
	return "..." + prefix[len(prefix)-remaining:] + "/" + filename
}

var _ Renderer = (*TUIRenderer)(nil)
