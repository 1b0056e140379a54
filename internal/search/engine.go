// Package search answers similarity queries against the indexed collection.
// The engine embeds the query text with the same model configuration used at
// index time and maps store matches back into presentable results.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/reelpipe/hindex/internal/embed"
	hxerrors "github.com/reelpipe/hindex/internal/errors"
	"github.com/reelpipe/hindex/internal/vector"
)

// DefaultTopK is the result count when the caller does not specify one.
const DefaultTopK = 8

// Result is one retrieved chunk with its similarity score.
type Result struct {
	ID         string            `json:"id"`
	Score      float32           `json:"score"`
	Text       string            `json:"text"`
	SourcePath string            `json:"source_path"`
	SourceName string            `json:"source_name"`
	ChunkIndex int               `json:"chunk_index"`
	Kind       string            `json:"kind"`
	DocTitle   string            `json:"doc_title,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Engine runs the retrieval path: embed the query, search the store,
// decode payloads.
type Engine struct {
	embedder embed.Embedder
	store    vector.Store
	retry    hxerrors.RetryPolicy
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithRetryPolicy sets the backoff used around embed and store calls.
func WithRetryPolicy(policy hxerrors.RetryPolicy) EngineOption {
	return func(e *Engine) {
		e.retry = policy
	}
}

// NewEngine creates a search engine. Both dependencies are required.
func NewEngine(embedder embed.Embedder, store vector.Store, opts ...EngineOption) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	e := &Engine{
		embedder: embedder,
		store:    store,
		retry:    hxerrors.RetryPolicy{MaxAttempts: 1},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Query returns the topK most similar chunks, descending by score. An empty
// filter matches everything; filter entries restrict matches to points whose
// payload holds exactly the given values.
func (e *Engine) Query(ctx context.Context, text string, topK int, filter vector.Filter) ([]Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, hxerrors.New(hxerrors.ErrCodeInvalidQuery, "query text is empty", nil).
			WithSuggestion("provide a non-empty query string")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	start := time.Now()
	queryVector, err := hxerrors.RetryWithResult(ctx, e.retry, func() ([]float32, error) {
		return e.embedder.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}

	points, err := hxerrors.RetryWithResult(ctx, e.retry, func() ([]vector.ScoredPoint, error) {
		return e.store.Query(ctx, queryVector, topK, filter)
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		doc := vector.DecodePayload(p.Payload)
		results = append(results, Result{
			ID:         p.ID,
			Score:      p.Score,
			Text:       doc.Text,
			SourcePath: doc.FilePath,
			SourceName: doc.SourceName,
			ChunkIndex: doc.ChunkIndex,
			Kind:       doc.Kind,
			DocTitle:   doc.DocTitle,
			Fields:     doc.RowFields,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	slog.Debug("query_complete",
		slog.Int("top_k", topK),
		slog.Int("results", len(results)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return results, nil
}

// CheckDimensions verifies the collection's vector width matches what the
// configured embedder produces. A mismatch means the collection was built
// with a different model and every query would miss.
func (e *Engine) CheckDimensions(ctx context.Context) error {
	info, err := e.store.Info(ctx)
	if err != nil {
		return err
	}
	if info.VectorSize != 0 && info.VectorSize != e.embedder.Dimensions() {
		return hxerrors.DimensionError(
			fmt.Sprintf("collection has %d-dimensional vectors but model %s produces %d",
				info.VectorSize, e.embedder.ModelName(), e.embedder.Dimensions())).
			WithSuggestion("re-index with this model or switch embeddings.model back")
	}
	return nil
}
