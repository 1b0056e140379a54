package embed

import (
	"fmt"

	hxerrors "github.com/reelpipe/hindex/internal/errors"
)

// modelDimensions maps known embedding models to their native vector width.
// The client never asks the server to truncate vectors, so for these models
// a configured width must agree with the table.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// KnownModelDimensions returns the native width for a known model.
func KnownModelDimensions(model string) (int, bool) {
	dims, ok := modelDimensions[model]
	return dims, ok
}

// ResolveDimensions determines the vector width for a model. Known models
// use the table; unknown models (local servers, fine-tunes) require a
// declared width. A declared width that disagrees with the table is a
// configuration error, not a silent override.
func ResolveDimensions(model string, declared int) (int, error) {
	native, known := modelDimensions[model]

	if !known {
		if declared <= 0 {
			return 0, hxerrors.New(hxerrors.ErrCodeModelUnknown,
				fmt.Sprintf("unknown embedding model %q and no dimensions configured", model), nil).
				WithSuggestion("set embeddings.dimensions (or EMBEDDINGS_DIMENSIONS) to the model's vector width")
		}
		return declared, nil
	}

	if declared > 0 && declared != native {
		return 0, hxerrors.ConfigError(
			fmt.Sprintf("model %s produces %d-dimensional vectors, but %d were configured", model, native, declared), nil).
			WithSuggestion("remove embeddings.dimensions or switch to a model with the configured width")
	}
	return native, nil
}
