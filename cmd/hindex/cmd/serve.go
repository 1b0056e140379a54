package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reelpipe/hindex/internal/async"
	"github.com/reelpipe/hindex/internal/output"
	"github.com/reelpipe/hindex/internal/server"
	"github.com/reelpipe/hindex/pkg/indexer"
	"github.com/reelpipe/hindex/pkg/searcher"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve retrieval over HTTP",
		Long: `Run the HTTP retrieval API backing the chat application.

Endpoints:
  POST /v1/query     {"query": "...", "top_k": 8, "filters": {...}}
  GET  /v1/stats     collection point count and status
  POST /v1/reindex   start a background re-index of the source directory
  GET  /v1/reindex   progress of the running or last re-index
  GET  /healthz      store reachability

The server runs until interrupted, then drains in-flight requests.`,
		Example: `  hindex serve
  hindex serve --addr :9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, addr string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Server.Addr
	}

	sr, err := searcher.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = sr.Close() }()

	// A collection built with a different model would serve garbage
	// rankings on every request, so the mismatch is fatal at startup.
	if err := sr.CheckDimensions(ctx); err != nil {
		return err
	}

	// The indexer behind POST /v1/reindex shares the searcher's store and
	// embedder connections rather than opening its own.
	ix, err := indexer.New(cfg,
		indexer.WithStore(sr.Store()),
		indexer.WithEmbedder(sr.Embedder()))
	if err != nil {
		return err
	}

	reindex := func(ctx context.Context, p *async.Progress) error {
		files, err := ix.Scan(ctx)
		if err != nil {
			return err
		}
		p.SetTotal(len(files))
		_, err = ix.Run(ctx, files, indexer.RunOptions{
			SkipUnchanged: true,
			PruneMissing:  true,
			OnProgress:    p.Update,
			OnFileError:   p.FileFailed,
		})
		return err
	}

	srv, err := server.New(sr.Engine(), sr.Store(), server.Config{
		Addr:       addr,
		Collection: cfg.Qdrant.Collection,
		Reindex:    reindex,
	})
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("🌐", "Serving retrieval on %s (collection %q, model %s)",
		addr, cfg.Qdrant.Collection, sr.Embedder().ModelName())

	if err := srv.ListenAndServe(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			out.Status("👋", "Server stopped")
			return nil
		}
		return err
	}
	return nil
}
