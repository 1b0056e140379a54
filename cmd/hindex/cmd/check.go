package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reelpipe/hindex/internal/embed"
	"github.com/reelpipe/hindex/internal/preflight"
	"github.com/reelpipe/hindex/internal/vector"
)

func newCheckCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and connectivity",
		Long: `Run the preflight checks an index run depends on and print one
PASS/WARN/FAIL line per check.

Checks:
  - source directory exists and is readable
  - state directory is writable
  - disk space and file descriptor limits
  - OPENAI_API_KEY is set (or a keyless local endpoint is configured)
  - embeddings model has known dimensions
  - embeddings endpoint responds
  - Qdrant is reachable and the collection's vector width matches the model

Exit status is non-zero when a required check fails.`,
		Example: `  # Validate the current configuration
  hindex check

  # Machine-readable output for CI
  hindex check --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCheck(ctx, cmd, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runCheck(ctx context.Context, cmd *cobra.Command, verbose, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := []preflight.Option{
		preflight.WithOutput(cmd.OutOrStdout()),
		preflight.WithVerbose(verbose),
	}

	// Connectivity checks ride real clients. Construction failures are
	// themselves findings, not reasons to stop checking.
	store, storeErr := vector.NewQdrant(qdrantConfig(cfg))
	if storeErr == nil {
		defer func() { _ = store.Close() }()
		opts = append(opts, preflight.WithStore(store))
	}
	embedder, embedErr := embed.NewEmbedder(embedConfig(cfg), 0)
	if embedErr == nil {
		defer func() { _ = embedder.Close() }()
		opts = append(opts, preflight.WithEmbedder(embedder))
	}

	checker, err := preflight.New(cfg, opts...)
	if err != nil {
		return err
	}

	results := checker.RunAll(ctx)
	if storeErr != nil {
		results = append(results, preflight.Result{
			Name:     "qdrant",
			Status:   preflight.StatusFail,
			Message:  storeErr.Error(),
			Required: true,
		})
	}
	if embedErr != nil {
		results = append(results, preflight.Result{
			Name:     "embeddings",
			Status:   preflight.StatusFail,
			Message:  embedErr.Error(),
			Required: true,
		})
	}

	if jsonOutput {
		if err := printCheckJSON(cmd, results); err != nil {
			return err
		}
	} else {
		checker.Print(results)
	}

	if preflight.CriticalFailure(results) {
		return fmt.Errorf("preflight failed")
	}
	return nil
}

// printCheckJSON writes results with string statuses so scripts do not
// depend on enum ordering.
func printCheckJSON(cmd *cobra.Command, results []preflight.Result) error {
	type jsonResult struct {
		Name     string `json:"name"`
		Status   string `json:"status"`
		Message  string `json:"message"`
		Details  string `json:"details,omitempty"`
		Required bool   `json:"required"`
	}

	body := struct {
		Summary string       `json:"summary"`
		Checks  []jsonResult `json:"checks"`
	}{
		Summary: preflight.Summary(results),
	}
	for _, r := range results {
		body.Checks = append(body.Checks, jsonResult{
			Name:     r.Name,
			Status:   r.Status.String(),
			Message:  r.Message,
			Details:  r.Details,
			Required: r.Required,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(body)
}
