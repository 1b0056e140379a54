package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per update. It is the renderer for CI,
// piped output, and --no-tui runs.
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPlainRenderer creates a plain line renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}

	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	case msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}

	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d files, %d chunks in %s",
		stats.Files, stats.Chunks, stats.Duration.Round(100*time.Millisecond))
	if stats.Skipped > 0 || stats.Failed > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d skipped, %d failed)", stats.Skipped, stats.Failed)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.PointsDeleted > 0 {
		_, _ = fmt.Fprintf(r.out, "Removed %d stale points\n", stats.PointsDeleted)
	}
	if stats.Oversized > 0 {
		_, _ = fmt.Fprintf(r.out, "WARN: %d chunks exceed the token budget, kept whole\n", stats.Oversized)
	}
	if stats.Model != "" {
		_, _ = fmt.Fprintf(r.out, "Model: %s (%d dims) -> collection %q\n",
			stats.Model, stats.Dimensions, stats.Collection)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
