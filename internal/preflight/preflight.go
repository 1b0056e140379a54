// Package preflight validates the environment before an index run or on
// demand through the check command: source and state directories, API
// credentials, the embedding model, and the Qdrant collection. Results
// print as PASS/WARN/FAIL lines; a failed required check blocks indexing.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/reelpipe/hindex/internal/config"
	"github.com/reelpipe/hindex/internal/embed"
	"github.com/reelpipe/hindex/internal/vector"
)

// Status is the outcome of one check.
type Status int

const (
	// StatusPass means the check succeeded.
	StatusPass Status = iota
	// StatusWarn means the check found something degraded but workable.
	StatusWarn
	// StatusFail means the check failed.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "????"
	}
}

// Result is the outcome of a single check.
type Result struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Required bool   `json:"required"`
}

// Critical reports whether this is a required check that failed.
func (r Result) Critical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs the validations. Store and embedder are optional; their
// checks are skipped when nil so config-only validation still works.
type Checker struct {
	cfg      *config.Config
	store    vector.Store
	embedder embed.Embedder
	output   io.Writer
	verbose  bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithStore attaches the vector store for connectivity checks.
func WithStore(store vector.Store) Option {
	return func(c *Checker) { c.store = store }
}

// WithEmbedder attaches the embedder for endpoint checks.
func WithEmbedder(e embed.Embedder) Option {
	return func(c *Checker) { c.embedder = e }
}

// WithOutput sets where Print writes. Default is stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

// WithVerbose includes check details in the printed output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

// New creates a Checker for the given configuration.
func New(cfg *config.Config, opts ...Option) (*Checker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	c := &Checker{
		cfg:    cfg,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RunAll runs every check, required and advisory.
func (c *Checker) RunAll(ctx context.Context) []Result {
	results := []Result{
		c.CheckSourceDir(),
		c.CheckStateDir(),
		c.CheckDiskSpace(),
		c.CheckFileDescriptors(),
		c.CheckAPIKey(),
		c.CheckModel(),
	}
	if c.embedder != nil {
		results = append(results, c.CheckEmbeddings(ctx))
	}
	if c.store != nil {
		results = append(results, c.CheckStore(ctx)...)
	}
	return results
}

// RunRequired runs only the checks that gate an index run. The index
// command calls this before acquiring the lock or touching the store.
func (c *Checker) RunRequired(ctx context.Context) []Result {
	results := []Result{
		c.CheckSourceDir(),
		c.CheckStateDir(),
		c.CheckAPIKey(),
		c.CheckModel(),
	}
	if c.store != nil {
		results = append(results, c.CheckStore(ctx)...)
	}
	return results
}

// CriticalFailure reports whether any required check failed.
func CriticalFailure(results []Result) bool {
	for _, r := range results {
		if r.Critical() {
			return true
		}
	}
	return false
}

// Summary returns "ready", "ready_with_warnings", or "failed".
func Summary(results []Result) string {
	warnings := false
	for _, r := range results {
		if r.Critical() {
			return "failed"
		}
		if r.Status == StatusWarn || r.Status == StatusFail {
			warnings = true
		}
	}
	if warnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// Print writes the results as PASS/WARN/FAIL lines followed by a summary.
func (c *Checker) Print(results []Result) {
	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "       %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)

	var failures, warnings int
	for _, r := range results {
		switch {
		case r.Critical():
			failures++
		case r.Status == StatusWarn || r.Status == StatusFail:
			warnings++
		}
	}
	switch {
	case failures > 0:
		_, _ = fmt.Fprintf(c.output, "%d check(s) failed\n", failures)
	case warnings > 0:
		_, _ = fmt.Fprintf(c.output, "ready (%d warning(s))\n", warnings)
	default:
		_, _ = fmt.Fprintln(c.output, "all checks passed")
	}
}
