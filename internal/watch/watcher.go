package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher tails a source root with fsnotify and emits debounced batches of
// file events.
type Watcher struct {
	opts      Options
	fsw       *fsnotify.Watcher
	debouncer *debouncer
	root      string
}

// NewWatcher creates a Watcher. Call Run to start it.
func NewWatcher(opts Options) (*Watcher, error) {
	opts = opts.withDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	return &Watcher{
		opts:      opts,
		fsw:       fsw,
		debouncer: newDebouncer(opts.Window, opts.BufferSize),
	}, nil
}

// Events returns the channel of coalesced batches. It closes when Run
// returns.
func (w *Watcher) Events() <-chan []Event {
	return w.debouncer.output()
}

// Run watches root until ctx is cancelled, returning ctx.Err(). New
// directories are added to the watch as they appear; watch errors are
// logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}
	w.root = absRoot

	if err := w.addRecursive(absRoot); err != nil {
		return fmt.Errorf("watch source tree: %w", err)
	}

	defer w.debouncer.stop()
	defer func() { _ = w.fsw.Close() }()

	slog.Info("watch_started",
		slog.String("root", absRoot),
		slog.Duration("window", w.opts.Window))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// handle converts one fsnotify event into a debounced Event.
func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." {
		return
	}
	relSlash := filepath.ToSlash(rel)

	// A removed or renamed-away path cannot be stat'd, so isDir stays
	// false for those and the delete flows through as a file event.
	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	if w.opts.Ignore != nil && w.opts.Ignore(relSlash, isDir) {
		return
	}

	var op Op
	switch {
	case ev.Op&fsnotify.Create != 0:
		if isDir {
			// Files created inside a brand-new directory need a watch on
			// that directory before their own events can arrive.
			if err := w.addRecursive(ev.Name); err != nil {
				slog.Warn("watch_add_failed",
					slog.String("path", relSlash),
					slog.String("error", err.Error()))
			}
			return
		}
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// chmod only
		return
	}

	if isDir {
		return
	}

	w.debouncer.add(Event{Path: relSlash, Op: op, Time: time.Now()})
}

// addRecursive watches every non-ignored directory under root.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if !d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		if rel == "." {
			return w.fsw.Add(path)
		}

		if w.opts.Ignore != nil && w.opts.Ignore(filepath.ToSlash(rel), true) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}
