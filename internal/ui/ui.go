// Package ui renders indexing progress in the terminal. Interactive runs
// get a live dashboard, CI and piped runs get one plain line per update.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage identifies a phase of an indexing run.
type Stage int

const (
	// StageScanning is the source tree walk.
	StageScanning Stage = iota
	// StageIndexing is the per-file chunk, embed, and upsert work.
	StageIndexing
	// StageComplete means the run has finished.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageIndexing:
		return "Indexing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag used in plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageIndexing:
		return "INDEX"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is one progress update. Total 0 means the total is not
// known yet for the stage.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent is a per-file problem surfaced during the run.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// CompletionStats is the final summary of an indexing run.
type CompletionStats struct {
	Files         int // files indexed this run
	Skipped       int // unchanged files left alone
	Failed        int // files that could not be indexed
	Chunks        int // chunks written
	PointsDeleted int // stale points removed
	Oversized     int // chunks over the token budget, kept whole
	Duration      time.Duration

	Model      string
	Dimensions int
	Collection string
}

// Renderer displays indexing progress. Implementations are safe for
// concurrent use; runner workers report from their own goroutines.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates the progress display.
	UpdateProgress(event ProgressEvent)

	// AddError surfaces a per-file error or warning.
	AddError(event ErrorEvent)

	// Complete shows the final run summary.
	Complete(stats CompletionStats)

	// Stop shuts the renderer down. Safe to call more than once.
	Stop() error
}

// Config configures renderer selection and display.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool

	// SourceDir is shown in the dashboard header.
	SourceDir string

	// OnInterrupt is called when the user quits the dashboard mid-run,
	// so the caller can cancel the run. Optional.
	OnInterrupt func()
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain line output even on a terminal.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables colored output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithSourceDir sets the source directory shown in the header.
func WithSourceDir(dir string) ConfigOption {
	return func(c *Config) { c.SourceDir = dir }
}

// WithInterrupt sets the callback invoked when the dashboard is quit
// before the run completes.
func WithInterrupt(fn func()) ConfigOption {
	return func(c *Config) { c.OnInterrupt = fn }
}

// NewConfig creates a Config writing to output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer picks a renderer for the environment: the live dashboard on
// an interactive terminal, plain line output for CI, pipes, and --no-tui.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain {
		return NewPlainRenderer(cfg)
	}
	if !IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}
	if DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether the process runs under a CI system.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
