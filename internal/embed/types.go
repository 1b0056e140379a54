// Package embed turns chunk text into vectors through an OpenAI-compatible
// embeddings endpoint. The Client speaks the /v1/embeddings wire format, so
// it works against api.openai.com as well as local servers (LM Studio,
// llama.cpp, vLLM) that implement the same contract. CachedEmbedder adds an
// LRU layer keyed by model and text so repeated queries and re-indexed
// unchanged chunks skip the network.
package embed

import (
	"context"
	"time"
)

const (
	// MinBatchSize is the smallest allowed request batch.
	MinBatchSize = 1

	// MaxBatchSize caps a single embeddings request. OpenAI accepts up to
	// 2048 inputs per call; 512 keeps request bodies comfortably small.
	MaxBatchSize = 512

	// DefaultBatchSize is used when the config does not set one.
	DefaultBatchSize = 64

	// DefaultBaseURL is the hosted OpenAI endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "text-embedding-3-large"

	// DefaultRequestTimeout bounds a single embeddings call.
	DefaultRequestTimeout = 60 * time.Second

	// DefaultPoolSize is the HTTP connection pool size.
	DefaultPoolSize = 4
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result has
	// one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector width this embedder produces.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the backing service is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Config configures the OpenAI-compatible client.
type Config struct {
	// Model is the embedding model name.
	Model string

	// BaseURL is the API root, e.g. https://api.openai.com/v1 or a local
	// server like http://localhost:1234/v1.
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Dimensions declares the vector width. Required for models the client
	// does not know; for known models it must match the model's width.
	Dimensions int

	// BatchSize is the number of texts per embeddings request.
	BatchSize int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// PoolSize is the HTTP connection pool size.
	PoolSize int
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.BatchSize < MinBatchSize {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultRequestTimeout
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	return c
}

// embeddingsRequest is the POST /v1/embeddings request body.
type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingsResponse is the POST /v1/embeddings response body.
type embeddingsResponse struct {
	Data  []embeddingData `json:"data"`
	Model string          `json:"model"`
	Usage embeddingsUsage `json:"usage"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingsUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// apiErrorResponse is the error envelope OpenAI-compatible servers return.
type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}
