package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hxerrors "github.com/reelpipe/hindex/internal/errors"
)

func TestResolveDimensions(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		declared int
		want     int
		wantCode string
	}{
		{"known model", "text-embedding-3-large", 0, 3072, ""},
		{"known small model", "text-embedding-3-small", 0, 1536, ""},
		{"ada legacy", "text-embedding-ada-002", 0, 1536, ""},
		{"known model matching declaration", "text-embedding-3-small", 1536, 1536, ""},
		{"known model conflicting declaration", "text-embedding-3-large", 768, 0, hxerrors.ErrCodeConfigInvalid},
		{"unknown model with declaration", "nomic-embed-text-v1.5", 768, 768, ""},
		{"unknown model without declaration", "mystery-model", 0, 0, hxerrors.ErrCodeModelUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDimensions(tt.model, tt.declared)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, hxerrors.GetCode(err))
				assert.True(t, hxerrors.IsFatal(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKnownModelDimensions(t *testing.T) {
	dims, ok := KnownModelDimensions("text-embedding-3-large")
	assert.True(t, ok)
	assert.Equal(t, 3072, dims)

	_, ok = KnownModelDimensions("not-a-model")
	assert.False(t, ok)
}
