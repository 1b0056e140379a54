package searcher

import (
	"context"
	"fmt"

	"github.com/reelpipe/hindex/internal/config"
	"github.com/reelpipe/hindex/internal/embed"
	hxerrors "github.com/reelpipe/hindex/internal/errors"
	"github.com/reelpipe/hindex/internal/search"
	"github.com/reelpipe/hindex/internal/vector"
)

// Searcher bundles the read path: embedder, vector store, and the search
// engine wired between them.
type Searcher struct {
	cfg      *config.Config
	store    vector.Store
	embedder embed.Embedder
	engine   *search.Engine

	ownStore    bool
	ownEmbedder bool
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithStore injects an already-built vector store. Close leaves it open.
func WithStore(s vector.Store) Option {
	return func(sr *Searcher) { sr.store = s }
}

// WithEmbedder injects an already-built embedder. Close leaves it open.
func WithEmbedder(e embed.Embedder) Option {
	return func(sr *Searcher) { sr.embedder = e }
}

// New builds a Searcher from cfg. Backends not injected through options are
// constructed from the config and owned by the Searcher.
func New(cfg *config.Config, opts ...Option) (*Searcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sr := &Searcher{cfg: cfg}
	for _, opt := range opts {
		opt(sr)
	}

	if sr.store == nil {
		store, err := vector.NewQdrant(qdrantConfig(cfg))
		if err != nil {
			return nil, err
		}
		sr.store = store
		sr.ownStore = true
	}
	if sr.embedder == nil {
		embedder, err := embed.NewEmbedder(embedConfig(cfg), cfg.Embeddings.CacheSize)
		if err != nil {
			if sr.ownStore {
				_ = sr.store.Close()
			}
			return nil, err
		}
		sr.embedder = embedder
		sr.ownEmbedder = true
	}

	engine, err := search.NewEngine(sr.embedder, sr.store,
		search.WithRetryPolicy(hxerrors.DefaultRetryPolicy()))
	if err != nil {
		_ = sr.Close()
		return nil, err
	}
	sr.engine = engine
	return sr, nil
}

// SearchOptions shapes one query.
type SearchOptions struct {
	// TopK caps the result count. Zero means the config's query.top_k.
	TopK int

	// Filter restricts matches to points whose payload holds exactly the
	// given values. Nil matches everything.
	Filter vector.Filter
}

// Search returns the most similar chunks for text, descending by score.
func (sr *Searcher) Search(ctx context.Context, text string, opts SearchOptions) ([]search.Result, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = sr.cfg.Query.TopK
	}
	return sr.engine.Query(ctx, text, topK, opts.Filter)
}

// CheckDimensions verifies the collection's vector width matches what the
// configured embedder produces.
func (sr *Searcher) CheckDimensions(ctx context.Context) error {
	return sr.engine.CheckDimensions(ctx)
}

// Engine returns the assembled search engine.
func (sr *Searcher) Engine() *search.Engine { return sr.engine }

// Store returns the vector store backing this Searcher.
func (sr *Searcher) Store() vector.Store { return sr.store }

// Embedder returns the embedder backing this Searcher.
func (sr *Searcher) Embedder() embed.Embedder { return sr.embedder }

// Close releases the backends the Searcher built itself. Injected backends
// are the caller's to close.
func (sr *Searcher) Close() error {
	var firstErr error
	if sr.ownEmbedder {
		if err := sr.embedder.Close(); err != nil {
			firstErr = err
		}
	}
	if sr.ownStore {
		if err := sr.store.Close(); err != nil && firstErr == nil {
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
