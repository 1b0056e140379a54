package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reelpipe/hindex/internal/chunk"
	"github.com/reelpipe/hindex/internal/embed"
	hxerrors "github.com/reelpipe/hindex/internal/errors"
	"github.com/reelpipe/hindex/internal/source"
	"github.com/reelpipe/hindex/internal/vector"
)

const (
	// DefaultWorkers is the file-level concurrency when none is configured.
	DefaultWorkers = 4

	// DefaultBatchSize is the number of chunks embedded and upserted per call.
	DefaultBatchSize = 64
)

// Dependencies contains the injected collaborators for Runner.
type Dependencies struct {
	// Embedder produces vectors for chunk text (required).
	Embedder embed.Embedder

	// Store holds the indexed points (required).
	Store vector.Store

	// Chunker splits loaded documents (required).
	Chunker chunk.Chunker

	// Manifest tracks per-file content hashes and chunk counts (required).
	Manifest *Manifest
}

// Options configures one indexing run.
type Options struct {
	// Workers is the number of files processed concurrently.
	Workers int

	// BatchSize is the number of chunks per embed + upsert call.
	BatchSize int

	// SkipUnchanged leaves files alone when their content hash matches the
	// manifest entry from the previous run.
	SkipUnchanged bool

	// PruneMissing deletes points for files the manifest knows but the scan
	// no longer found. Only full-directory runs should set it; incremental
	// runs over a subset of files would prune everything else.
	PruneMissing bool

	// Retry shapes the backoff around embedding and store calls.
	// Zero value means a single attempt.
	Retry hxerrors.RetryPolicy

	// OnProgress is called after each file completes, from worker
	// goroutines. Optional.
	OnProgress func(done, total int, path string)

	// OnFileError is called when a file fails and is recorded in the
	// report, from worker goroutines. Fatal errors abort the run and do
	// not pass through here. Optional.
	OnFileError func(path string, err error)
}

// Runner drives a full indexing pass: load, chunk, embed, upsert, and
// manifest bookkeeping, with per-file failure isolation.
type Runner struct {
	deps Dependencies
	opts Options

	embedBreaker *hxerrors.CircuitBreaker
	storeBreaker *hxerrors.CircuitBreaker
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps Dependencies, opts Options) (*Runner, error) {
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if deps.Manifest == nil {
		return nil, fmt.Errorf("manifest is required")
	}

	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	return &Runner{
		deps:         deps,
		opts:         opts,
		embedBreaker: hxerrors.NewCircuitBreaker("embeddings"),
		storeBreaker: hxerrors.NewCircuitBreaker("qdrant"),
	}, nil
}

// Run indexes the given files. The collection is created or verified before
// any write happens, so a dimension mismatch aborts with the store untouched.
// Per-file failures are recorded in the report and do not stop the run; fatal
// errors and context cancellation abort it.
func (r *Runner) Run(ctx context.Context, files []*source.FileInfo) (*Report, error) {
	if err := r.deps.Store.EnsureCollection(ctx, r.deps.Embedder.Dimensions()); err != nil {
		return nil, err
	}

	slog.Info("index_run_started",
		slog.Int("files", len(files)),
		slog.Int("workers", r.opts.Workers),
		slog.Int("batch_size", r.opts.BatchSize),
		slog.String("model", r.deps.Embedder.ModelName()),
		slog.Int("dimensions", r.deps.Embedder.Dimensions()))

	rb := newReportBuilder(len(files))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, info := range files {
		g.Go(func() error {
			err := r.processFile(gctx, info, rb)
			if r.opts.OnProgress != nil {
				r.opts.OnProgress(int(done.Add(1)), len(files), info.Path)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if r.opts.PruneMissing {
		if err := r.pruneMissing(ctx, files, rb); err != nil {
			return nil, err
		}
	}

	report := rb.build()
	slog.Info("index_complete",
		slog.Int("files_indexed", report.FilesIndexed),
		slog.Int("files_skipped", report.FilesSkipped),
		slog.Int("files_failed", report.FilesFailed),
		slog.Int("chunks", report.ChunksWritten),
		slog.Int("points_deleted", report.PointsDeleted),
		slog.Int64("duration_ms", report.DurationMS))
	return report, nil
}

// processFile runs the full pipeline for one file. Non-fatal errors are
// recorded and swallowed so one bad file cannot sink the run.
func (r *Runner) processFile(ctx context.Context, info *source.FileInfo, rb *reportBuilder) error {
	doc, err := source.Load(info)
	if err != nil {
		return r.fileFailed(rb, info.Path, err)
	}
	hash := HashContent(doc.Content)

	prev, err := r.deps.Manifest.Get(ctx, doc.RelPath)
	if err != nil {
		return r.fileFailed(rb, info.Path, err)
	}
	if r.opts.SkipUnchanged && prev != nil && prev.Hash == hash {
		rb.addSkipped(doc.RelPath, "unchanged", prev.ChunkCount)
		slog.Debug("file_unchanged", slog.String("path", doc.RelPath))
		return nil
	}

	chunks, err := r.deps.Chunker.Chunk(ctx, doc)
	if err != nil {
		return r.fileFailed(rb, info.Path, err)
	}

	for start := 0; start < len(chunks); start += r.opts.BatchSize {
		end := start + r.opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := r.indexBatch(ctx, chunks[start:end]); err != nil {
			return r.fileFailed(rb, info.Path, err)
		}
	}

	// A shrinking file leaves points at ordinals past the new chunk count.
	if prev != nil && prev.ChunkCount > len(chunks) {
		stale := pointIDs(doc.RelPath, len(chunks), prev.ChunkCount)
		if err := r.deletePoints(ctx, stale); err != nil {
			return r.fileFailed(rb, info.Path, err)
		}
		rb.addDeleted(len(stale))
	}

	if err := r.deps.Manifest.Put(ctx, Entry{
		Path:       doc.RelPath,
		Hash:       hash,
		ChunkCount: len(chunks),
		IndexedAt:  time.Now().UTC(),
	}); err != nil {
		return r.fileFailed(rb, info.Path, err)
	}

	rb.addIndexed(doc.RelPath, chunks)
	slog.Debug("file_indexed",
		slog.String("path", doc.RelPath),
		slog.Int("chunks", len(chunks)))
	return nil
}

// indexBatch embeds one batch of chunks and upserts the resulting points.
// Both calls go through a circuit breaker and the configured retry policy.
func (r *Runner) indexBatch(ctx context.Context, batch []*chunk.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := hxerrors.RetryWithResult(ctx, r.opts.Retry, func() ([][]float32, error) {
		return hxerrors.Do(r.embedBreaker, func() ([][]float32, error) {
			return r.deps.Embedder.EmbedBatch(ctx, texts)
		})
	})
	if err != nil {
		return err
	}
	if len(vectors) != len(batch) {
		return hxerrors.EmbeddingError(fmt.Sprintf(
			"embedder returned %d vectors for %d chunks", len(vectors), len(batch)), nil)
	}

	points := make([]vector.Point, len(batch))
	for i, c := range batch {
		points[i] = vector.ChunkPoint(c, vectors[i])
	}
	return r.storeOp(ctx, func() error {
		return r.deps.Store.Upsert(ctx, points)
	})
}

// deletePoints removes points by ID through the store breaker.
func (r *Runner) deletePoints(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.storeOp(ctx, func() error {
		return r.deps.Store.Delete(ctx, ids)
	})
}

// storeOp runs a write against the vector store with breaker and retry.
func (r *Runner) storeOp(ctx context.Context, fn func() error) error {
	return hxerrors.Retry(ctx, r.opts.Retry, func() error {
		if !r.storeBreaker.Allow() {
			return hxerrors.ErrCircuitOpen
		}
		if err := fn(); err != nil {
			r.storeBreaker.RecordFailure()
			return err
		}
		r.storeBreaker.RecordSuccess()
		return nil
	})
}

// fileFailed classifies an error: context cancellation and fatal errors
// propagate and abort the run, everything else is recorded as a per-file
// failure and swallowed.
func (r *Runner) fileFailed(rb *reportBuilder, path string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if hxerrors.IsFatal(err) {
		slog.Error("index_aborted",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return err
	}
	rb.addFailed(path, err)
	slog.Warn("file_failed",
		slog.String("path", path),
		slog.String("error", err.Error()))
	if r.opts.OnFileError != nil {
		r.opts.OnFileError(path, err)
	}
	return nil
}

// pruneMissing deletes points and manifest rows for files that vanished from
// the source directory since the previous run.
func (r *Runner) pruneMissing(ctx context.Context, files []*source.FileInfo, rb *reportBuilder) error {
	entries, err := r.deps.Manifest.All(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		seen[f.Path] = struct{}{}
	}

	for _, e := range entries {
		if _, ok := seen[e.Path]; ok {
			continue
		}
		ids := pointIDs(e.Path, 0, e.ChunkCount)
		if err := r.deletePoints(ctx, ids); err != nil {
			if err := r.fileFailed(rb, e.Path, err); err != nil {
				return err
			}
			continue
		}
		if err := r.deps.Manifest.Delete(ctx, e.Path); err != nil {
			if err := r.fileFailed(rb, e.Path, err); err != nil {
				return err
			}
			continue
		}
		rb.addDeleted(len(ids))
		slog.Info("file_pruned",
			slog.String("path", e.Path),
			slog.Int("points", len(ids)))
	}
	return nil
}

// RemoveFile deletes a single file's points and manifest entry. The watcher
// calls it when a source file is deleted.
func (r *Runner) RemoveFile(ctx context.Context, relPath string) error {
	prev, err := r.deps.Manifest.Get(ctx, relPath)
	if err != nil {
		return err
	}
	if prev == nil {
		return nil
	}
	if err := r.deletePoints(ctx, pointIDs(relPath, 0, prev.ChunkCount)); err != nil {
		return err
	}
	if err := r.deps.Manifest.Delete(ctx, relPath); err != nil {
		return err
	}
	slog.Info("file_removed",
		slog.String("path", relPath),
		slog.Int("points", prev.ChunkCount))
	return nil
}

// RemoveTree deletes indexed state for relPath and everything under it,
// returning the number of files removed. Watch mode uses it for deletions
// because a deleted path cannot be told apart from a deleted directory.
func (r *Runner) RemoveTree(ctx context.Context, relPath string) (int, error) {
	entries, err := r.deps.Manifest.All(ctx)
	if err != nil {
		return 0, err
	}

	prefix := relPath + "/"
	removed := 0
	for _, e := range entries {
		if e.Path != relPath && !strings.HasPrefix(e.Path, prefix) {
			continue
		}
		if err := r.RemoveFile(ctx, e.Path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// pointIDs returns the deterministic point IDs for ordinals in [from, to).
func pointIDs(relPath string, from, to int) []string {
	if to <= from {
		return nil
	}
	ids := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		ids = append(ids, chunk.ID(relPath, i))
	}
	return ids
}
