package embed

// NewEmbedder builds the OpenAI-compatible client and, when cacheSize is
// positive, wraps it with the LRU cache. This is the constructor the CLI
// and server wiring use.
func NewEmbedder(cfg Config, cacheSize int) (Embedder, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if cacheSize > 0 {
		return NewCachedEmbedder(client, cacheSize), nil
	}
	return client, nil
}
