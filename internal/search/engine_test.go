package search

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hxerrors "github.com/reelpipe/hindex/internal/errors"
	"github.com/reelpipe/hindex/internal/vector"
)

type fakeQueryEmbedder struct {
	mu       sync.Mutex
	vector   []float32
	calls    int
	err      error
	failures int
}

func (f *fakeQueryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeQueryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeQueryEmbedder) Dimensions() int { return len(f.vector) }

func (f *fakeQueryEmbedder) ModelName() string { return "fake-model" }

func (f *fakeQueryEmbedder) Available(ctx context.Context) bool { return true }

func (f *fakeQueryEmbedder) Close() error { return nil }

type fakeQueryStore struct {
	points   []vector.ScoredPoint
	info     *vector.CollectionInfo
	err      error
	infoErr  error
	gotQuery []float32
	gotTopK  int
	gotFilt  vector.Filter
	queries  int
}

func (s *fakeQueryStore) Exists(ctx context.Context) (bool, error) { return true, nil }

func (s *fakeQueryStore) EnsureCollection(ctx context.Context, dims int) error { return nil }

func (s *fakeQueryStore) Upsert(ctx context.Context, points []vector.Point) error { return nil }

func (s *fakeQueryStore) Delete(ctx context.Context, ids []string) error { return nil }

func (s *fakeQueryStore) Query(ctx context.Context, vec []float32, topK int, filter vector.Filter) ([]vector.ScoredPoint, error) {
	s.queries++
	s.gotQuery = vec
	s.gotTopK = topK
	s.gotFilt = filter
	if s.err != nil {
		return nil, s.err
	}
	return s.points, nil
}

func (s *fakeQueryStore) Info(ctx context.Context) (*vector.CollectionInfo, error) {
	if s.infoErr != nil {
		return nil, s.infoErr
	}
	return s.info, nil
}

func (s *fakeQueryStore) Close() error { return nil }

func newTestEngine(t *testing.T, embedder *fakeQueryEmbedder, store *fakeQueryStore, opts ...EngineOption) *Engine {
	t.Helper()
	engine, err := NewEngine(embedder, store, opts...)
	require.NoError(t, err)
	return engine
}

func TestNewEngineValidatesDependencies(t *testing.T) {
	_, err := NewEngine(nil, &fakeQueryStore{})
	require.Error(t, err)

	_, err = NewEngine(&fakeQueryEmbedder{}, nil)
	require.Error(t, err)
}

func TestQueryRejectsEmptyText(t *testing.T) {
	embedder := &fakeQueryEmbedder{vector: []float32{1, 0}}
	engine := newTestEngine(t, embedder, &fakeQueryStore{})

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := engine.Query(context.Background(), text, 5, nil)
		require.Error(t, err)
		assert.Equal(t, hxerrors.ErrCodeInvalidQuery, hxerrors.GetCode(err))
	}
	assert.Zero(t, embedder.calls, "empty queries must not reach the embedder")
}

func TestQueryMapsPayloads(t *testing.T) {
	rowPayload := map[string]any{
		vector.KeyText:       "trip: vietnam\ncost: 30",
		vector.KeyFilePath:   "trips.csv",
		vector.KeySourceName: "trips.csv",
		vector.KeyKind:       "row",
		vector.KeyChunkIndex: 3,
		vector.KeyTokens:     8,
	}
	rowPayload[vector.RowKeyPrefix+"trip"] = "vietnam"
	rowPayload[vector.RowKeyPrefix+"cost"] = "30"

	embedder := &fakeQueryEmbedder{vector: []float32{0.5, 0.5}}
	store := &fakeQueryStore{
		points: []vector.ScoredPoint{
			{
				ID:    "id-prose",
				Score: 0.92,
				Payload: map[string]any{
					vector.KeyText:       "The trip starts in Hanoi.",
					vector.KeyFilePath:   "notes/vietnam.md",
					vector.KeySourceName: "vietnam.md",
					vector.KeyKind:       "prose",
					vector.KeyChunkIndex: 0,
					vector.KeyTokens:     7,
					vector.KeyDocTitle:   "Vietnam Trip",
				},
			},
			{ID: "id-row", Score: 0.81, Payload: rowPayload},
		},
	}
	engine := newTestEngine(t, embedder, store)

	filter := vector.Filter{"kind": "row"}
	results, err := engine.Query(context.Background(), "street food", 5, filter)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, []float32{0.5, 0.5}, store.gotQuery)
	assert.Equal(t, 5, store.gotTopK)
	assert.Equal(t, filter, store.gotFilt)

	prose := results[0]
	assert.Equal(t, "id-prose", prose.ID)
	assert.InDelta(t, 0.92, prose.Score, 1e-6)
	assert.Equal(t, "The trip starts in Hanoi.", prose.Text)
	assert.Equal(t, "notes/vietnam.md", prose.SourcePath)
	assert.Equal(t, "vietnam.md", prose.SourceName)
	assert.Equal(t, "prose", prose.Kind)
	assert.Equal(t, "Vietnam Trip", prose.DocTitle)
	assert.Empty(t, prose.Fields)

	row := results[1]
	assert.Equal(t, "id-row", row.ID)
	assert.Equal(t, 3, row.ChunkIndex)
	assert.Equal(t, "row", row.Kind)
	assert.Equal(t, map[string]string{"trip": "vietnam", "cost": "30"}, row.Fields)
}

func TestQueryDefaultsTopK(t *testing.T) {
	embedder := &fakeQueryEmbedder{vector: []float32{1}}
	store := &fakeQueryStore{}
	engine := newTestEngine(t, embedder, store)

	_, err := engine.Query(context.Background(), "anything", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, store.gotTopK)
}

func TestQueryOrdersByDescendingScore(t *testing.T) {
	embedder := &fakeQueryEmbedder{vector: []float32{1}}
	store := &fakeQueryStore{
		points: []vector.ScoredPoint{
			{ID: "low", Score: 0.2, Payload: map[string]any{vector.KeyText: "low"}},
			{ID: "high", Score: 0.9, Payload: map[string]any{vector.KeyText: "high"}},
			{ID: "mid", Score: 0.5, Payload: map[string]any{vector.KeyText: "mid"}},
		},
	}
	engine := newTestEngine(t, embedder, store)

	results, err := engine.Query(context.Background(), "anything", 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "high", results[0].ID)
	assert.Equal(t, "mid", results[1].ID)
	assert.Equal(t, "low", results[2].ID)
}

func TestQueryEmbedErrorPropagates(t *testing.T) {
	embedder := &fakeQueryEmbedder{err: hxerrors.ConfigError("invalid api key", nil), failures: 1}
	store := &fakeQueryStore{}
	engine := newTestEngine(t, embedder, store)

	_, err := engine.Query(context.Background(), "anything", 5, nil)
	require.Error(t, err)
	assert.Equal(t, hxerrors.ErrCodeConfigInvalid, hxerrors.GetCode(err))
	assert.Zero(t, store.queries, "a failed embed must not hit the store")
}

func TestQueryStoreErrorPropagates(t *testing.T) {
	embedder := &fakeQueryEmbedder{vector: []float32{1}}
	store := &fakeQueryStore{err: hxerrors.New(hxerrors.ErrCodeStoreQuery, "search failed", nil)}
	engine := newTestEngine(t, embedder, store)

	_, err := engine.Query(context.Background(), "anything", 5, nil)
	require.Error(t, err)
}

func TestQueryRetriesTransientEmbedFailure(t *testing.T) {
	embedder := &fakeQueryEmbedder{
		vector:   []float32{1},
		err:      hxerrors.EmbeddingError("temporary outage", nil),
		failures: 1,
	}
	store := &fakeQueryStore{
		points: []vector.ScoredPoint{{ID: "a", Score: 0.5, Payload: map[string]any{vector.KeyText: "a"}}},
	}
	engine := newTestEngine(t, embedder, store,
		WithRetryPolicy(hxerrors.RetryPolicy{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			Multiplier:   1,
		}))

	results, err := engine.Query(context.Background(), "anything", 5, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 2, embedder.calls)
}

func TestCheckDimensions(t *testing.T) {
	embedder := &fakeQueryEmbedder{vector: []float32{1, 2, 3, 4}}

	t.Run("matching width passes", func(t *testing.T) {
		store := &fakeQueryStore{info: &vector.CollectionInfo{VectorSize: 4}}
		engine := newTestEngine(t, embedder, store)
		require.NoError(t, engine.CheckDimensions(context.Background()))
	})

	t.Run("mismatch is fatal", func(t *testing.T) {
		store := &fakeQueryStore{info: &vector.CollectionInfo{VectorSize: 1536}}
		engine := newTestEngine(t, embedder, store)
		err := engine.CheckDimensions(context.Background())
		require.Error(t, err)
		assert.Equal(t, hxerrors.ErrCodeDimensionMismatch, hxerrors.GetCode(err))
		assert.True(t, hxerrors.IsFatal(err))
	})

	t.Run("unknown width passes", func(t *testing.T) {
		store := &fakeQueryStore{info: &vector.CollectionInfo{VectorSize: 0}}
		engine := newTestEngine(t, embedder, store)
		require.NoError(t, engine.CheckDimensions(context.Background()))
	})

	t.Run("info error propagates", func(t *testing.T) {
		store := &fakeQueryStore{infoErr: hxerrors.New(hxerrors.ErrCodeStoreUnavailable, "down", nil)}
		engine := newTestEngine(t, embedder, store)
		require.Error(t, engine.CheckDimensions(context.Background()))
	})
}
