package indexer

import (
	"context"
	"fmt"

	"github.com/reelpipe/hindex/internal/chunk"
	"github.com/reelpipe/hindex/internal/config"
	"github.com/reelpipe/hindex/internal/embed"
	hxerrors "github.com/reelpipe/hindex/internal/errors"
	"github.com/reelpipe/hindex/internal/index"
	"github.com/reelpipe/hindex/internal/source"
	"github.com/reelpipe/hindex/internal/token"
	"github.com/reelpipe/hindex/internal/vector"
	"github.com/reelpipe/hindex/internal/watch"
)

// Indexer bundles the write path: scanner, chunker, embedder, vector store,
// and the state directory's manifest and run lock.
type Indexer struct {
	cfg      *config.Config
	store    vector.Store
	embedder embed.Embedder
	chunker  chunk.Chunker
	scanner  *source.Scanner
	scanOpts *source.ScanOptions

	ownStore    bool
	ownEmbedder bool
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithStore injects an already-built vector store. Close leaves it open.
func WithStore(s vector.Store) Option {
	return func(ix *Indexer) { ix.store = s }
}

// WithEmbedder injects an already-built embedder. Close leaves it open.
func WithEmbedder(e embed.Embedder) Option {
	return func(ix *Indexer) { ix.embedder = e }
}

// New builds an Indexer from cfg. Backends not injected through options are
// constructed from the config and owned by the Indexer.
func New(cfg *config.Config, opts ...Option) (*Indexer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ix := &Indexer{cfg: cfg}
	for _, opt := range opts {
		opt(ix)
	}

	if ix.store == nil {
		store, err := vector.NewQdrant(qdrantConfig(cfg))
		if err != nil {
			return nil, err
		}
		ix.store = store
		ix.ownStore = true
	}
	if ix.embedder == nil {
		embedder, err := embed.NewEmbedder(embedConfig(cfg), cfg.Embeddings.CacheSize)
		if err != nil {
			if ix.ownStore {
				_ = ix.store.Close()
			}
			return nil, err
		}
		ix.embedder = embedder
		ix.ownEmbedder = true
	}

	ix.chunker = chunk.NewDispatcher(token.NewEstimator(), cfg.Chunking.MaxTokens, cfg.Chunking.OverlapTokens)
	ix.scanner = source.NewScanner()
	ix.scanOpts = &source.ScanOptions{
		RootDir:         cfg.Source.Dir,
		ExcludePatterns: cfg.Source.Exclude,
	}
	return ix, nil
}

// RunOptions shapes one indexing pass.
type RunOptions struct {
	// SkipUnchanged leaves files alone when their content hash matches the
	// manifest entry from the previous run.
	SkipUnchanged bool

	// PruneMissing deletes points for files the manifest knows but files
	// does not contain. Set it only for full-directory lists; a partial
	// list would prune everything outside it.
	PruneMissing bool

	// OnProgress is called after each file completes, from worker
	// goroutines. Optional.
	OnProgress func(done, total int, path string)

	// OnFileError is called for failures recorded in the report, from
	// worker goroutines. Optional.
	OnFileError func(path string, err error)
}

// Scan lists the indexable files under the configured source directory.
func (ix *Indexer) Scan(ctx context.Context) ([]*source.FileInfo, error) {
	return ix.scanner.Collect(ctx, ix.scanOpts)
}

// Run executes one locked indexing pass over files. The run lock and the
// manifest are acquired per call and released before Run returns, so one
// Indexer can serve repeated runs with other processes getting their turn
// in between.
//
// An empty files list is a no-op returning an empty report: handed to a
// pruning run it would read as every file having been deleted.
func (ix *Indexer) Run(ctx context.Context, files []*source.FileInfo, opts RunOptions) (*index.Report, error) {
	if len(files) == 0 {
		return &index.Report{ByFile: map[string]int{}}, nil
	}

	lock, err := index.AcquireRunLock(ix.cfg.LockPath())
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	manifest, err := index.OpenManifest(ix.cfg.ManifestPath())
	if err != nil {
		return nil, err
	}
	defer func() { _ = manifest.Close() }()

	runner, err := ix.runner(manifest, opts)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, files)
}

// Watch holds the run lock and the manifest for the whole session and
// follows the source directory, re-indexing files as they change on disk.
// Unchanged-skip is forced on and pruning forced off: per-event batches
// carry no full-scan visibility. Returns ctx.Err() after a clean cancel.
func (ix *Indexer) Watch(ctx context.Context, opts RunOptions) error {
	opts.SkipUnchanged = true
	opts.PruneMissing = false

	lock, err := index.AcquireRunLock(ix.cfg.LockPath())
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	manifest, err := index.OpenManifest(ix.cfg.ManifestPath())
	if err != nil {
		return err
	}
	defer func() { _ = manifest.Close() }()

	runner, err := ix.runner(manifest, opts)
	if err != nil {
		return err
	}

	svc, err := watch.NewService(runner, ix.scanner, ix.scanOpts, watch.Options{
		Window: ix.cfg.DebounceWindow(),
	})
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}

// runner binds a run to manifest with the config's worker and batch
// settings.
func (ix *Indexer) runner(manifest *index.Manifest, opts RunOptions) (*index.Runner, error) {
	return index.NewRunner(index.Dependencies{
		Embedder: ix.embedder,
		Store:    ix.store,
		Chunker:  ix.chunker,
		Manifest: manifest,
	}, index.Options{
		Workers:       ix.cfg.Index.Workers,
		BatchSize:     ix.cfg.Embeddings.BatchSize,
		SkipUnchanged: opts.SkipUnchanged,
		PruneMissing:  opts.PruneMissing,
		Retry:         hxerrors.DefaultRetryPolicy(),
		OnProgress:    opts.OnProgress,
		OnFileError:   opts.OnFileError,
	})
}

// Store returns the vector store backing this Indexer.
func (ix *Indexer) Store() vector.Store { return ix.store }

// Embedder returns the embedder backing this Indexer.
func (ix *Indexer) Embedder() embed.Embedder { return ix.embedder }

// Close releases the backends the Indexer built itself. Injected backends
// are the caller's to close.
func (ix *Indexer) Close() error {
	var firstErr error
	if ix.ownEmbedder {
		if err := ix.embedder.Close(); err != nil {
			firstErr = err
		}
	}
	if ix.ownStore {
		if err := ix.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// embedConfig maps the loaded config onto the embeddings client config.
func embedConfig(cfg *config.Config) embed.Config {
	return embed.Config{
		Model:      cfg.Embeddings.Model,
		BaseURL:    cfg.Embeddings.BaseURL,
		APIKey:     cfg.Embeddings.APIKey,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
	}
}

// qdrantConfig maps the loaded config onto the vector store config.
func qdrantConfig(cfg *config.Config) vector.Config {
	return vector.Config{
		URL:        cfg.Qdrant.URL,
		Collection: cfg.Qdrant.Collection,
		APIKey:     cfg.Qdrant.APIKey,
	}
}
