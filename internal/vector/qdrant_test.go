package vector

import (
	"context"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hxerrors "github.com/reelpipe/hindex/internal/errors"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPort int
		wantTLS  bool
		wantErr  bool
	}{
		{"standard local", "http://localhost:6333", "localhost", 6334, false, false},
		{"custom port", "http://localhost:9000", "localhost", 9001, false, false},
		{"no port", "http://qdrant.internal", "qdrant.internal", 6334, false, false},
		{"https", "https://qdrant.example.com:6333", "qdrant.example.com", 6334, true, false},
		{"no host", "http://:6333", "localhost", 6334, false, false},
		{"invalid", "://invalid", "", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, useTLS, err := parseEndpoint(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, hxerrors.ErrCodeConfigInvalid, hxerrors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
			assert.Equal(t, tt.wantTLS, useTLS)
		})
	}
}

func TestNewQdrantRejectsInvalidURL(t *testing.T) {
	_, err := NewQdrant(Config{URL: "://invalid", Collection: "c"})
	require.Error(t, err)
	assert.Equal(t, hxerrors.ErrCodeConfigInvalid, hxerrors.GetCode(err))
}

func TestUpsertEmptyPointsIsNoop(t *testing.T) {
	s := &Qdrant{collection: "c"}
	require.NoError(t, s.Upsert(context.Background(), nil))
}

func TestDeleteEmptyIDsIsNoop(t *testing.T) {
	s := &Qdrant{collection: "c"}
	require.NoError(t, s.Delete(context.Background(), nil))
}

func TestQueryRejectsNonPositiveTopK(t *testing.T) {
	s := &Qdrant{collection: "c"}

	for _, k := range []int{0, -1} {
		_, err := s.Query(context.Background(), []float32{1, 2}, k, nil)
		require.Error(t, err)
		assert.Equal(t, hxerrors.ErrCodeInvalidQuery, hxerrors.GetCode(err))
	}
}

func TestBuildFilter(t *testing.T) {
	assert.Nil(t, buildFilter(nil))
	assert.Nil(t, buildFilter(Filter{}))

	f := buildFilter(Filter{"source_name": "costs.csv", "kind": "row"})
	require.NotNil(t, f)
	require.Len(t, f.Must, 2)

	// Conditions come out in sorted key order.
	assert.Equal(t, "kind", f.Must[0].GetField().GetKey())
	assert.Equal(t, "source_name", f.Must[1].GetField().GetKey())
	assert.Equal(t, "row", f.Must[0].GetField().GetMatch().GetKeyword())
}

func TestFromQdrantPayloadRoundTrip(t *testing.T) {
	payload := qdrant.NewValueMap(map[string]any{
		"text":        "hello",
		"chunk_index": int64(4),
		"score_bias":  1.5,
		"oversized":   true,
		"tags":        []any{"a", "b"},
		"nested":      map[string]any{"k": "v"},
	})

	got := fromQdrantPayload(payload)
	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, int64(4), got["chunk_index"])
	assert.Equal(t, 1.5, got["score_bias"])
	assert.Equal(t, true, got["oversized"])
	assert.Equal(t, []any{"a", "b"}, got["tags"])
	assert.Equal(t, map[string]any{"k": "v"}, got["nested"])
}

func TestFromQdrantPayloadSkipsNilValues(t *testing.T) {
	got := fromQdrantPayload(map[string]*qdrant.Value{"gone": nil})
	assert.Empty(t, got)
}
