package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/reelpipe/hindex/internal/embed"
)

// CheckSourceDir verifies the source root exists and is readable.
func (c *Checker) CheckSourceDir() Result {
	result := Result{Name: "source_dir", Required: true}

	dir := c.cfg.Source.Dir
	info, err := os.Stat(dir)
	if err != nil {
		result.Status = StatusFail
		if os.IsNotExist(err) {
			result.Message = fmt.Sprintf("%s does not exist", dir)
			result.Details = "create the directory or set source.dir / SOURCE_DIR"
		} else {
			result.Message = fmt.Sprintf("cannot stat %s", dir)
			result.Details = err.Error()
		}
		return result
	}
	if !info.IsDir() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not a directory", dir)
		return result
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not readable", dir)
		result.Details = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d entries)", dir, len(entries))
	return result
}

// CheckStateDir verifies the state directory can be created and written.
func (c *Checker) CheckStateDir() Result {
	result := Result{Name: "state_dir", Required: true}

	dir := c.cfg.Index.StateDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s", dir)
		result.Details = err.Error()
		return result
	}

	probe := filepath.Join(dir, ".preflight-probe")
	f, err := os.Create(probe)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot write to %s", dir)
		result.Details = err.Error()
		return result
	}
	_ = f.Close()
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = dir
	return result
}

// CheckAPIKey verifies embedding credentials. A missing key against the
// hosted OpenAI endpoint is fatal; against a custom endpoint it is only a
// warning, since local servers usually run without auth.
func (c *Checker) CheckAPIKey() Result {
	result := Result{Name: "api_key", Required: true}

	if c.cfg.Embeddings.APIKey != "" {
		result.Status = StatusPass
		result.Message = "OPENAI_API_KEY is set"
		return result
	}

	base := c.cfg.Embeddings.BaseURL
	if base == "" || base == embed.DefaultBaseURL {
		result.Status = StatusFail
		result.Message = "OPENAI_API_KEY is not set"
		result.Details = "export OPENAI_API_KEY, or point embeddings.base_url at a server that needs no key"
		return result
	}

	result.Status = StatusWarn
	result.Message = fmt.Sprintf("no API key; assuming %s accepts unauthenticated requests", base)
	return result
}

// CheckModel verifies the embedding model's vector width is known, either
// from the built-in table or from a declared dimensions override.
func (c *Checker) CheckModel() Result {
	result := Result{Name: "embeddings_model", Required: true}

	dims, err := embed.ResolveDimensions(c.cfg.Embeddings.Model, c.cfg.Embeddings.Dimensions)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		result.Details = "set embeddings.dimensions for models outside the built-in table"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dimensions)", c.cfg.Embeddings.Model, dims)
	return result
}

// CheckEmbeddings probes the embeddings endpoint.
func (c *Checker) CheckEmbeddings(ctx context.Context) Result {
	result := Result{Name: "embeddings_endpoint", Required: false}

	base := c.cfg.Embeddings.BaseURL
	if base == "" {
		base = embed.DefaultBaseURL
	}

	if c.embedder.Available(ctx) {
		result.Status = StatusPass
		result.Message = fmt.Sprintf("responding at %s", base)
		return result
	}

	result.Status = StatusWarn
	result.Message = fmt.Sprintf("not responding at %s", base)
	result.Details = "embedding calls will be retried during indexing"
	return result
}

// CheckStore verifies Qdrant is reachable and the collection's vector
// width matches the model. Returns one result for connectivity and, when
// reachable, one for the collection.
func (c *Checker) CheckStore(ctx context.Context) []Result {
	qdrant := Result{Name: "qdrant", Required: true}

	exists, err := c.store.Exists(ctx)
	if err != nil {
		qdrant.Status = StatusFail
		qdrant.Message = fmt.Sprintf("unreachable at %s", c.cfg.Qdrant.URL)
		qdrant.Details = err.Error()
		return []Result{qdrant}
	}
	qdrant.Status = StatusPass
	qdrant.Message = fmt.Sprintf("reachable at %s", c.cfg.Qdrant.URL)

	collection := Result{Name: "collection", Required: true}
	dims, dimsErr := c.modelDimensions()

	if !exists {
		collection.Status = StatusPass
		if dimsErr == nil {
			collection.Message = fmt.Sprintf("%q will be created with %d dimensions",
				c.cfg.Qdrant.Collection, dims)
		} else {
			collection.Message = fmt.Sprintf("%q will be created", c.cfg.Qdrant.Collection)
		}
		return []Result{qdrant, collection}
	}

	info, err := c.store.Info(ctx)
	switch {
	case err != nil:
		collection.Status = StatusFail
		collection.Message = fmt.Sprintf("cannot inspect collection %q", c.cfg.Qdrant.Collection)
		collection.Details = err.Error()
	case dimsErr == nil && info.VectorSize != 0 && info.VectorSize != dims:
		collection.Status = StatusFail
		collection.Message = fmt.Sprintf("%q holds %d-dimensional vectors, model %s produces %d",
			c.cfg.Qdrant.Collection, info.VectorSize, c.cfg.Embeddings.Model, dims)
		collection.Details = "re-index into a fresh collection or switch back to the original model"
	default:
		collection.Status = StatusPass
		collection.Message = fmt.Sprintf("%q: %d points, %d dimensions",
			c.cfg.Qdrant.Collection, info.PointsCount, info.VectorSize)
	}
	return []Result{qdrant, collection}
}

// modelDimensions prefers the live embedder's width, falling back to the
// model table for config-only checks.
func (c *Checker) modelDimensions() (int, error) {
	if c.embedder != nil {
		return c.embedder.Dimensions(), nil
	}
	return embed.ResolveDimensions(c.cfg.Embeddings.Model, c.cfg.Embeddings.Dimensions)
}
