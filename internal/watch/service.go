package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	hxerrors "github.com/reelpipe/hindex/internal/errors"
	"github.com/reelpipe/hindex/internal/index"
	"github.com/reelpipe/hindex/internal/source"
)

// Service connects a Watcher to the index runner. Each debounced batch is
// applied in place: changed files go back through the runner, deleted
// paths are dropped from the collection and the manifest.
type Service struct {
	runner   *index.Runner
	scanner  *source.Scanner
	scanOpts *source.ScanOptions
	opts     Options
}

// NewService wires a watch loop over the given runner. The runner should
// have skip-unchanged enabled so editors that rewrite files without
// changing them do not cause re-embedding. When opts.Ignore is nil the
// scan options' exclude patterns are used.
func NewService(runner *index.Runner, scanner *source.Scanner, scanOpts *source.ScanOptions, opts Options) (*Service, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if scanOpts == nil {
		return nil, fmt.Errorf("scan options are required")
	}

	if opts.Ignore == nil {
		patterns := scanOpts.ExcludePatterns
		opts.Ignore = func(relPath string, isDir bool) bool {
			return source.Excluded(relPath, isDir, patterns)
		}
	}

	return &Service{
		runner:   runner,
		scanner:  scanner,
		scanOpts: scanOpts,
		opts:     opts,
	}, nil
}

// Run watches the source root until ctx is cancelled, returning ctx.Err()
// after a clean cancel. Per-file indexing failures are logged and the loop
// keeps running; fatal errors end it.
func (s *Service) Run(ctx context.Context) error {
	w, err := NewWatcher(s.opts)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, s.scanOpts.RootDir) }()

	for {
		select {
		case err := <-done:
			return err
		case batch, ok := <-w.Events():
			if !ok {
				return <-done
			}
			if err := s.apply(ctx, batch); err != nil {
				return err
			}
		}
	}
}

// apply turns one batch into runner calls. Deletes and renames drop
// indexed state; everything else is re-stat'd and re-indexed.
func (s *Service) apply(ctx context.Context, batch []Event) error {
	var files []*source.FileInfo
	for _, ev := range batch {
		switch ev.Op {
		case OpDelete, OpRename:
			if err := s.remove(ctx, ev.Path); err != nil {
				return err
			}
		default:
			info, err := s.scanner.StatFile(s.scanOpts, ev.Path)
			if err != nil {
				if os.IsNotExist(err) {
					// Gone again before the window closed.
					if err := s.remove(ctx, ev.Path); err != nil {
						return err
					}
					continue
				}
				slog.Warn("watch_stat_failed",
					slog.String("path", ev.Path),
					slog.String("error", err.Error()))
				continue
			}
			if info == nil {
				continue // not an indexable file
			}
			files = append(files, info)
		}
	}

	if len(files) == 0 {
		return nil
	}

	report, err := s.runner.Run(ctx, files)
	if err != nil {
		// The runner only fails the whole run on fatal errors or
		// cancellation; per-file failures land in the report.
		return err
	}

	slog.Info("watch_reindexed",
		slog.Int("files", report.FilesIndexed),
		slog.Int("skipped", report.FilesSkipped),
		slog.Int("failed", report.FilesFailed),
		slog.Int("chunks", report.ChunksWritten))
	return nil
}

// remove drops indexed state for a deleted path. Transient store errors
// are logged so the loop survives them; fatal ones propagate.
func (s *Service) remove(ctx context.Context, relPath string) error {
	removed, err := s.runner.RemoveTree(ctx, relPath)
	if err != nil {
		if hxerrors.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		slog.Warn("watch_remove_failed",
			slog.String("path", relPath),
			slog.String("error", err.Error()))
		return nil
	}
	if removed > 0 {
		slog.Info("watch_removed",
			slog.String("path", relPath),
			slog.Int("files", removed))
	}
	return nil
}
