package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reelpipe/hindex/internal/output"
	"github.com/reelpipe/hindex/internal/search"
	"github.com/reelpipe/hindex/internal/vector"
	"github.com/reelpipe/hindex/pkg/searcher"
)

// queryOptions holds the CLI flags for query.
type queryOptions struct {
	topK       int
	filters    []string
	jsonOutput bool
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Retrieve the chunks most similar to a query",
		Long: `Embed the query text and return the top-k most similar chunks
from the collection, with their provenance payloads.

Filters restrict matches to points whose payload holds exactly the given
value. Useful keys are source_name, kind, and the row_<field> keys of
tabular sources.`,
		Example: `  hindex query "hook ideas for a street food reel"
  hindex query "cost per day in Lisbon" --filter source_name=costs.csv
  hindex query "b-roll checklist" --top-k 4 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runQuery(ctx, cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of results (default from config)")
	cmd.Flags().StringArrayVar(&opts.filters, "filter", nil, "Payload filter key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runQuery(ctx context.Context, cmd *cobra.Command, text string, opts queryOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	filter, err := parseFilters(opts.filters)
	if err != nil {
		return err
	}

	sr, err := searcher.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = sr.Close() }()

	// Querying with a different model than the collection was built with
	// returns garbage rankings, so it is rejected up front.
	if err := sr.CheckDimensions(ctx); err != nil {
		return err
	}

	results, err := sr.Search(ctx, text, searcher.SearchOptions{
		TopK:   opts.topK,
		Filter: filter,
	})
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	printResults(output.New(cmd.OutOrStdout()), text, results)
	return nil
}

// parseFilters converts repeated key=value flags into a store filter.
func parseFilters(pairs []string) (vector.Filter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(vector.Filter, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --filter %q, expected key=value", pair)
		}
		filter[key] = value
	}
	return filter, nil
}

// printResults renders results as numbered entries with a short snippet.
func printResults(out *output.Writer, query string, results []search.Result) {
	if len(results) == 0 {
		out.Statusf("", "No results for %q", query)
		return
	}

	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()

	for i, r := range results {
		location := fmt.Sprintf("%s#%d", r.SourcePath, r.ChunkIndex)
		if r.DocTitle != "" {
			location = fmt.Sprintf("%s (%s)", location, r.DocTitle)
		}
		out.Statusf("", "%d. %s (score: %.3f)", i+1, location, r.Score)

		for _, line := range snippet(r.Text, 3) {
			out.Status("", "   "+line)
		}
		out.Newline()
	}
}

// snippet returns the first n non-empty-tail lines of text.
func snippet(text string, n int) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
