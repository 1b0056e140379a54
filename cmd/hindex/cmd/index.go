package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/reelpipe/hindex/internal/chunk"
	"github.com/reelpipe/hindex/internal/config"
	"github.com/reelpipe/hindex/internal/embed"
	hxerrors "github.com/reelpipe/hindex/internal/errors"
	"github.com/reelpipe/hindex/internal/index"
	"github.com/reelpipe/hindex/internal/output"
	"github.com/reelpipe/hindex/internal/preflight"
	"github.com/reelpipe/hindex/internal/source"
	"github.com/reelpipe/hindex/internal/token"
	"github.com/reelpipe/hindex/internal/ui"
	"github.com/reelpipe/hindex/internal/vector"
	"github.com/reelpipe/hindex/internal/watch"
)

// indexOptions holds the CLI flags for index.
type indexOptions struct {
	sourceDir     string
	collection    string
	model         string
	qdrantURL     string
	maxTokens     int
	overlapTokens int
	workers       int
	batchSize     int
	skipUnchanged bool
	watchMode     bool
	noTUI         bool
	reportPath    string
	stateDir      string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Chunk, embed, and upsert the source directory",
		Long: `Index the source directory into the Qdrant collection.

Every indexable file (.md, .mdx, .txt, .csv, .json) is chunked into
token-bounded windows, embedded, and upserted under deterministic point
ids. Re-running against unchanged sources overwrites the same points, so
indexing is always safe to repeat.

Per-file problems (unreadable file, malformed CSV, a persistently failing
embeddings call) are reported in the final summary and do not stop the
run. Configuration errors and an unreachable Qdrant abort immediately.

Interactive terminals get a live progress dashboard; pipes, CI, and
--no-tui runs get one plain line per update.

Use --watch to keep running after the initial pass and re-index files as
they change on disk.`,
		Example: `  # Index with config/env defaults
  hindex index

  # Index a specific tree into a named collection
  hindex index --source-dir data/source --collection travel_reels

  # Re-index only what changed, then follow the directory
  hindex index --skip-unchanged --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.sourceDir, "source-dir", "", "Source directory to index (default from config)")
	cmd.Flags().StringVar(&opts.collection, "collection", "", "Qdrant collection name")
	cmd.Flags().StringVar(&opts.model, "embeddings-model", "", "Embeddings model, e.g. text-embedding-3-large")
	cmd.Flags().StringVar(&opts.qdrantURL, "qdrant-url", "", "Qdrant HTTP URL, e.g. http://localhost:6333")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens-per-chunk", 0, "Token budget per chunk")
	cmd.Flags().IntVar(&opts.overlapTokens, "overlap-tokens", 0, "Token overlap between consecutive chunks")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Files processed concurrently")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Chunks per embeddings request")
	cmd.Flags().BoolVar(&opts.skipUnchanged, "skip-unchanged", false, "Skip files whose content hash matches the previous run")
	cmd.Flags().BoolVar(&opts.watchMode, "watch", false, "Keep running and re-index files as they change")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Plain line output instead of the progress dashboard")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "Write the run report as JSON to this path")
	cmd.Flags().StringVar(&opts.stateDir, "state-dir", "", "Directory for the manifest and run lock")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyIndexFlags(cfg, cmd.Flags()); err != nil {
		return err
	}

	store, err := vector.NewQdrant(qdrantConfig(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	embedder, err := embed.NewEmbedder(embedConfig(cfg), cfg.Embeddings.CacheSize)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	// Gate on the cheap required checks before acquiring the lock or
	// writing anything: an unreachable store or a misconfigured model
	// must fail here, not mid-run.
	checker, err := preflight.New(cfg,
		preflight.WithStore(store),
		preflight.WithEmbedder(embedder),
		preflight.WithOutput(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	results := checker.RunRequired(ctx)
	if preflight.CriticalFailure(results) {
		checker.Print(results)
		return fmt.Errorf("preflight failed; run 'hindex check' for details")
	}

	lock, err := index.AcquireRunLock(cfg.LockPath())
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	manifest, err := index.OpenManifest(cfg.ManifestPath())
	if err != nil {
		return err
	}
	defer func() { _ = manifest.Close() }()

	// Quitting the dashboard mid-run cancels the run. In raw terminal
	// mode Ctrl+C arrives as a key event, not a signal.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithSourceDir(cfg.Source.Dir),
		ui.WithInterrupt(cancelRun)))

	chunker := chunk.NewDispatcher(token.NewEstimator(), cfg.Chunking.MaxTokens, cfg.Chunking.OverlapTokens)
	deps := index.Dependencies{
		Embedder: embedder,
		Store:    store,
		Chunker:  chunker,
		Manifest: manifest,
	}

	runner, err := index.NewRunner(deps, index.Options{
		Workers:       cfg.Index.Workers,
		BatchSize:     cfg.Embeddings.BatchSize,
		SkipUnchanged: cfg.Index.SkipUnchanged,
		PruneMissing:  true,
		Retry:         hxerrors.DefaultRetryPolicy(),
		OnProgress: func(done, total int, path string) {
			renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageIndexing,
				Current:     done,
				Total:       total,
				CurrentFile: path,
			})
		},
		OnFileError: func(path string, err error) {
			renderer.AddError(ui.ErrorEvent{File: path, Err: err})
		},
	})
	if err != nil {
		return err
	}

	if err := renderer.Start(runCtx); err != nil {
		slog.Warn("renderer_start_failed", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: "Scanning " + cfg.Source.Dir,
	})

	scanner := source.NewScanner()
	scanOpts := &source.ScanOptions{
		RootDir:         cfg.Source.Dir,
		ExcludePatterns: cfg.Source.Exclude,
	}
	files, err := scanner.Collect(runCtx, scanOpts)
	if err != nil {
		return err
	}

	// An empty scan never reaches the runner: prune would read it as
	// "every file was deleted" and empty the collection.
	var report *index.Report
	if len(files) > 0 {
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage: ui.StageIndexing,
			Total: len(files),
			Message: fmt.Sprintf("Indexing %d files into %q (%s, %d dims)",
				len(files), cfg.Qdrant.Collection, embedder.ModelName(), embedder.Dimensions()),
		})

		report, err = runner.Run(runCtx, files)
		if err != nil {
			return err
		}
		renderer.Complete(completionStats(report, cfg, embedder))
	}
	_ = renderer.Stop()

	out := output.New(cmd.OutOrStdout())
	if report == nil {
		out.Warningf("No indexable files under %s", cfg.Source.Dir)
	}
	if report != nil && opts.reportPath != "" {
		if err := report.Write(opts.reportPath); err != nil {
			return err
		}
		out.Statusf("📄", "Report written to %s", opts.reportPath)
	}

	if !opts.watchMode {
		return nil
	}
	return runWatch(runCtx, out, cfg, deps)
}

// applyIndexFlags overlays explicitly set flags onto the loaded config and
// re-validates. Only flags the user changed are applied, so a zero flag
// value cannot clobber a configured one.
func applyIndexFlags(cfg *config.Config, flags *pflag.FlagSet) error {
	if flags.Changed("source-dir") {
		cfg.Source.Dir, _ = flags.GetString("source-dir")
	}
	if flags.Changed("collection") {
		cfg.Qdrant.Collection, _ = flags.GetString("collection")
	}
	if flags.Changed("embeddings-model") {
		cfg.Embeddings.Model, _ = flags.GetString("embeddings-model")
	}
	if flags.Changed("qdrant-url") {
		cfg.Qdrant.URL, _ = flags.GetString("qdrant-url")
	}
	if flags.Changed("max-tokens-per-chunk") {
		cfg.Chunking.MaxTokens, _ = flags.GetInt("max-tokens-per-chunk")
	}
	if flags.Changed("overlap-tokens") {
		cfg.Chunking.OverlapTokens, _ = flags.GetInt("overlap-tokens")
	}
	if flags.Changed("workers") {
		cfg.Index.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("batch-size") {
		cfg.Embeddings.BatchSize, _ = flags.GetInt("batch-size")
	}
	if flags.Changed("skip-unchanged") {
		cfg.Index.SkipUnchanged, _ = flags.GetBool("skip-unchanged")
	}
	if flags.Changed("state-dir") {
		cfg.Index.StateDir, _ = flags.GetString("state-dir")
	}
	return cfg.Validate()
}

// completionStats maps the run report onto the renderer's summary.
func completionStats(report *index.Report, cfg *config.Config, embedder embed.Embedder) ui.CompletionStats {
	return ui.CompletionStats{
		Files:         report.FilesIndexed,
		Skipped:       report.FilesSkipped,
		Failed:        report.FilesFailed,
		Chunks:        report.ChunksWritten,
		PointsDeleted: report.PointsDeleted,
		Oversized:     report.Oversized,
		Duration:      time.Duration(report.DurationMS) * time.Millisecond,
		Model:         embedder.ModelName(),
		Dimensions:    embedder.Dimensions(),
		Collection:    cfg.Qdrant.Collection,
	}
}

// runWatch follows the source directory after the initial pass. The watch
// runner always skips unchanged files and never prunes: pruning keys off
// full-scan visibility that per-event batches do not have.
func runWatch(ctx context.Context, out *output.Writer, cfg *config.Config, deps index.Dependencies) error {
	runner, err := index.NewRunner(deps, index.Options{
		Workers:       cfg.Index.Workers,
		BatchSize:     cfg.Embeddings.BatchSize,
		SkipUnchanged: true,
		Retry:         hxerrors.DefaultRetryPolicy(),
		OnProgress:    out.Progress,
		OnFileError: func(path string, err error) {
			out.Warningf("%s: %v", path, err)
		},
	})
	if err != nil {
		return err
	}

	scanner := source.NewScanner()
	scanOpts := &source.ScanOptions{
		RootDir:         cfg.Source.Dir,
		ExcludePatterns: cfg.Source.Exclude,
	}

	svc, err := watch.NewService(runner, scanner, scanOpts, watch.Options{
		Window: cfg.DebounceWindow(),
	})
	if err != nil {
		return err
	}

	out.Statusf("👀", "Watching %s (Ctrl+C to stop)", cfg.Source.Dir)
	slog.Info("watch_started",
		slog.String("root", cfg.Source.Dir),
		slog.Duration("debounce", cfg.DebounceWindow()))

	if err := svc.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			out.Status("👋", "Watch stopped")
			return nil
		}
		return err
	}
	return nil
}
