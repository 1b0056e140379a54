package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	hxerrors "github.com/reelpipe/hindex/internal/errors"
)

// Client talks to an OpenAI-compatible /v1/embeddings endpoint.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport
	cfg        Config
	dims       int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*Client)(nil)

// NewClient creates an embeddings client. The vector width is resolved up
// front from the model table and the configured dimensions, so a dimension
// misconfiguration fails here instead of after the first network call.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	dims, err := ResolveDimensions(cfg.Model, cfg.Dimensions)
	if err != nil {
		return nil, err
	}

	// IdleConnTimeout is short because indexing runs are bursty: the pool
	// matters during a run and should drain quickly after one.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// No client-level timeout: each request gets its own context deadline,
	// which keeps Ctrl+C responsive and lets callers shorten the budget.
	return &Client{
		httpClient: &http.Client{Transport: transport},
		transport:  transport,
		cfg:        cfg,
		dims:       dims,
	}, nil
}

// Embed generates an embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for texts, preserving input order.
// Whitespace-only inputs get zero vectors without a network call; the API
// rejects empty strings and a zero vector matches nothing under cosine.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, hxerrors.EmbeddingError("embedder is closed", nil)
	}
	c.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	results := make([][]float32, len(texts))
	var pending []indexedText
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, c.dims)
			continue
		}
		pending = append(pending, indexedText{i, text})
	}

	for start := 0; start < len(pending); start += c.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + c.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		vecs, err := c.doEmbed(ctx, batchTexts)
		if err != nil {
			return nil, err
		}
		for i, vec := range vecs {
			results[batch[i].idx] = vec
		}
	}

	return results, nil
}

// doEmbed performs one embeddings request and validates the response
// against the input count and the resolved vector width.
func (c *Client) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingsRequest{Model: c.cfg.Model, Input: texts})
	if err != nil {
		return nil, hxerrors.InternalError("marshal embeddings request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint("/embeddings"), bytes.NewReader(body))
	if err != nil {
		return nil, hxerrors.InternalError("build embeddings request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, hxerrors.EmbeddingError(
			fmt.Sprintf("embeddings request to %s failed", c.cfg.BaseURL), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, hxerrors.EmbeddingError("decode embeddings response", err)
	}

	if len(parsed.Data) != len(texts) {
		return nil, hxerrors.EmbeddingError(
			fmt.Sprintf("embeddings response has %d vectors for %d inputs", len(parsed.Data), len(texts)), nil)
	}

	vecs := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(vecs) {
			return nil, hxerrors.EmbeddingError(
				fmt.Sprintf("embeddings response index %d out of range", item.Index), nil)
		}
		if len(item.Embedding) != c.dims {
			return nil, hxerrors.DimensionError(
				fmt.Sprintf("model %s returned %d-dimensional vectors, expected %d",
					c.cfg.Model, len(item.Embedding), c.dims))
		}
		vecs[item.Index] = item.Embedding
	}
	for i, vec := range vecs {
		if vec == nil {
			return nil, hxerrors.EmbeddingError(
				fmt.Sprintf("embeddings response missing vector for input %d", i), nil)
		}
	}

	slog.Debug("embeddings_request",
		slog.Int("texts", len(texts)),
		slog.Int("prompt_tokens", parsed.Usage.PromptTokens),
		slog.Duration("elapsed", time.Since(started)))

	return vecs, nil
}

// statusError maps a non-200 response to a coded error. Rate limits and
// server-side failures are retryable; auth and request problems are not.
func (c *Client) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := strings.TrimSpace(string(raw))
	var apiErr apiErrorResponse
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return hxerrors.ConfigError(
			fmt.Sprintf("embeddings API rejected credentials (%d): %s", resp.StatusCode, message), nil).
			WithSuggestion("check OPENAI_API_KEY, or unset it for a local server")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return hxerrors.EmbeddingError(
			fmt.Sprintf("embeddings API returned %d: %s", resp.StatusCode, message), nil)
	default:
		return hxerrors.New(hxerrors.ErrCodeInvalidInput,
			fmt.Sprintf("embeddings API returned %d: %s", resp.StatusCode, message), nil)
	}
}

// Dimensions returns the resolved vector width.
func (c *Client) Dimensions() int {
	return c.dims
}

// ModelName returns the configured model.
func (c *Client) ModelName() string {
	return c.cfg.Model
}

// Available reports whether the endpoint answers. It probes GET /models,
// which every OpenAI-compatible server implements and which costs nothing.
func (c *Client) Available(ctx context.Context) bool {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	c.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/models"), nil)
	if err != nil {
		return false
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// Close releases pooled connections. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.transport.CloseIdleConnections()
	return nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + path
}
