package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelpipe/hindex/internal/async"
	hxerrors "github.com/reelpipe/hindex/internal/errors"
	"github.com/reelpipe/hindex/internal/search"
	"github.com/reelpipe/hindex/internal/vector"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

func (f *fakeEmbedder) Dimensions() int { return len(f.vector) }

func (f *fakeEmbedder) ModelName() string { return "fake-model" }

func (f *fakeEmbedder) Available(ctx context.Context) bool { return true }

func (f *fakeEmbedder) Close() error { return nil }

type fakeStore struct {
	points  []vector.ScoredPoint
	info    *vector.CollectionInfo
	err     error
	infoErr error
	gotTopK int
	gotFilt vector.Filter
}

func (s *fakeStore) Exists(ctx context.Context) (bool, error) { return true, nil }

func (s *fakeStore) EnsureCollection(ctx context.Context, dims int) error { return nil }

func (s *fakeStore) Upsert(ctx context.Context, points []vector.Point) error { return nil }

func (s *fakeStore) Delete(ctx context.Context, ids []string) error { return nil }

func (s *fakeStore) Query(ctx context.Context, vec []float32, topK int, filter vector.Filter) ([]vector.ScoredPoint, error) {
	s.gotTopK = topK
	s.gotFilt = filter
	if s.err != nil {
		return nil, s.err
	}
	return s.points, nil
}

func (s *fakeStore) Info(ctx context.Context) (*vector.CollectionInfo, error) {
	if s.infoErr != nil {
		return nil, s.infoErr
	}
	if s.info != nil {
		return s.info, nil
	}
	return &vector.CollectionInfo{VectorSize: 2, PointsCount: 0, Status: "green"}, nil
}

func (s *fakeStore) Close() error { return nil }

func newTestServer(t *testing.T, store *fakeStore) *httptest.Server {
	t.Helper()
	engine, err := search.NewEngine(&fakeEmbedder{vector: []float32{1, 0}}, store)
	require.NoError(t, err)

	srv, err := New(engine, store, Config{Collection: "test_collection"})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postQuery(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/query", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestNewValidatesDependencies(t *testing.T) {
	store := &fakeStore{}
	engine, err := search.NewEngine(&fakeEmbedder{vector: []float32{1}}, store)
	require.NoError(t, err)

	_, err = New(nil, store, Config{})
	require.Error(t, err)

	_, err = New(engine, nil, Config{})
	require.Error(t, err)
}

func TestQueryEndpoint(t *testing.T) {
	store := &fakeStore{
		points: []vector.ScoredPoint{
			{
				ID:    "id-1",
				Score: 0.9,
				Payload: map[string]any{
					vector.KeyText:       "The trip starts in Hanoi.",
					vector.KeyFilePath:   "notes/vietnam.md",
					vector.KeySourceName: "vietnam.md",
					vector.KeyKind:       "prose",
					vector.KeyChunkIndex: 0,
				},
			},
		},
	}
	ts := newTestServer(t, store)

	resp := postQuery(t, ts, `{"query": "street food", "top_k": 2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body queryResponse
	decodeBody(t, resp, &body)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "id-1", body.Results[0].ID)
	assert.Equal(t, "The trip starts in Hanoi.", body.Results[0].Text)
	assert.Equal(t, "notes/vietnam.md", body.Results[0].SourcePath)
	assert.Equal(t, 2, store.gotTopK)
}

func TestQueryEndpointNoMatches(t *testing.T) {
	ts := newTestServer(t, &fakeStore{})

	resp := postQuery(t, ts, `{"query": "anything"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]any
	decodeBody(t, resp, &raw)
	results, ok := raw["results"].([]any)
	require.True(t, ok, "results must be an array even when empty")
	assert.Empty(t, results)
}

func TestQueryEndpointPassesFilters(t *testing.T) {
	store := &fakeStore{}
	ts := newTestServer(t, store)

	resp := postQuery(t, ts, `{"query": "pho", "filters": {"kind": "row", "row_trip": "vietnam"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, vector.Filter{"kind": "row", "row_trip": "vietnam"}, store.gotFilt)
}

func TestQueryEndpointEmptyQuery(t *testing.T) {
	ts := newTestServer(t, &fakeStore{})

	resp := postQuery(t, ts, `{"query": "   "}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, hxerrors.ErrCodeInvalidQuery, body.Code)
	assert.NotEmpty(t, body.Error)
}

func TestQueryEndpointMalformedBody(t *testing.T) {
	ts := newTestServer(t, &fakeStore{})

	resp := postQuery(t, ts, `{"query": `)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueryEndpointStoreDown(t *testing.T) {
	store := &fakeStore{err: hxerrors.New(hxerrors.ErrCodeStoreUnavailable, "qdrant is gone", nil)}
	ts := newTestServer(t, store)

	resp := postQuery(t, ts, `{"query": "anything"}`)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body errorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, hxerrors.ErrCodeStoreUnavailable, body.Code)
}

func TestQueryEndpointClampsTopK(t *testing.T) {
	store := &fakeStore{}
	ts := newTestServer(t, store)

	resp := postQuery(t, ts, `{"query": "anything", "top_k": 500}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, maxTopK, store.gotTopK)
}

func TestHealthzHealthy(t *testing.T) {
	ts := newTestServer(t, &fakeStore{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Checks["qdrant"])
	assert.NotEmpty(t, body.Timestamp)
}

func TestHealthzUnhealthy(t *testing.T) {
	store := &fakeStore{infoErr: hxerrors.New(hxerrors.ErrCodeStoreUnavailable, "down", nil)}
	ts := newTestServer(t, store)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body healthResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "error", body.Checks["qdrant"])
}

func TestStatsEndpoint(t *testing.T) {
	store := &fakeStore{info: &vector.CollectionInfo{VectorSize: 3072, PointsCount: 1234, Status: "green"}}
	ts := newTestServer(t, store)

	resp, err := http.Get(ts.URL + "/v1/stats")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body statsResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "test_collection", body.Collection)
	assert.Equal(t, uint64(1234), body.Points)
	assert.Equal(t, 3072, body.VectorSize)
	assert.Equal(t, "green", body.Status)
}

func TestStatsEndpointReportsQueryMetrics(t *testing.T) {
	store := &fakeStore{
		points: []vector.ScoredPoint{
			{ID: "id-1", Score: 0.9, Payload: map[string]any{vector.KeyText: "match"}},
		},
	}
	ts := newTestServer(t, store)

	// One query with results, then one without.
	resp := postQuery(t, ts, `{"query": "street food"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	store.points = nil
	resp = postQuery(t, ts, `{"query": "nothing matches this"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	statsResp, err := http.Get(ts.URL + "/v1/stats")
	require.NoError(t, err)
	defer func() { _ = statsResp.Body.Close() }()
	require.Equal(t, http.StatusOK, statsResp.StatusCode)

	var body statsResponse
	decodeBody(t, statsResp, &body)
	assert.Equal(t, int64(2), body.Queries.TotalQueries)
	assert.Equal(t, int64(1), body.Queries.ZeroResultCount)
	assert.Equal(t, []string{"nothing matches this"}, body.Queries.RecentZeroResults)
}

func TestStatsEndpointStoreDown(t *testing.T) {
	store := &fakeStore{infoErr: hxerrors.New(hxerrors.ErrCodeStoreUnavailable, "down", nil)}
	ts := newTestServer(t, store)

	resp, err := http.Get(ts.URL + "/v1/stats")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, &fakeStore{})

	resp, err := http.Get(ts.URL + "/v1/unknown")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func newReindexServer(t *testing.T, fn ReindexFunc) *httptest.Server {
	t.Helper()
	store := &fakeStore{}
	engine, err := search.NewEngine(&fakeEmbedder{vector: []float32{1, 0}}, store)
	require.NoError(t, err)

	srv, err := New(engine, store, Config{Collection: "test_collection", Reindex: fn})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func reindexStatus(t *testing.T, ts *httptest.Server) async.Snapshot {
	t.Helper()
	resp, err := http.Get(ts.URL + "/v1/reindex")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap async.Snapshot
	decodeBody(t, resp, &snap)
	return snap
}

func TestReindexRoutesAbsentWithoutFunc(t *testing.T) {
	ts := newTestServer(t, &fakeStore{})

	resp, err := http.Post(ts.URL+"/v1/reindex", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReindexStatusIdleBeforeFirstRun(t *testing.T) {
	ts := newReindexServer(t, func(ctx context.Context, p *async.Progress) error { return nil })

	snap := reindexStatus(t, ts)
	assert.Equal(t, async.StatusIdle, snap.Status)
}

func TestReindexTriggerAndStatus(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ts := newReindexServer(t, func(ctx context.Context, p *async.Progress) error {
		p.SetTotal(3)
		p.Update(1, 3, "notes/day1.md")
		close(started)
		<-release
		p.Update(3, 3, "tables/costs.csv")
		return nil
	})

	resp, err := http.Post(ts.URL+"/v1/reindex", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	<-started

	snap := reindexStatus(t, ts)
	assert.Equal(t, async.StatusRunning, snap.Status)
	assert.Equal(t, 3, snap.FilesTotal)
	assert.Equal(t, 1, snap.FilesDone)
	assert.Equal(t, "notes/day1.md", snap.CurrentFile)

	// A second trigger while one is running is refused.
	busy, err := http.Post(ts.URL+"/v1/reindex", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = busy.Body.Close() }()
	assert.Equal(t, http.StatusConflict, busy.StatusCode)

	close(release)
	require.Eventually(t, func() bool {
		snap := reindexStatus(t, ts)
		return snap.Status == async.StatusDone && snap.FilesDone == 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReindexAcceptsNextRunAfterCompletion(t *testing.T) {
	ts := newReindexServer(t, func(ctx context.Context, p *async.Progress) error {
		p.Update(1, 1, "doc.md")
		return nil
	})

	for i := 0; i < 2; i++ {
		resp, err := http.Post(ts.URL+"/v1/reindex", "application/json", nil)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		require.Eventually(t, func() bool {
			return reindexStatus(t, ts).Status == async.StatusDone
		}, 5*time.Second, 10*time.Millisecond)
	}
}

func TestReindexFailureSurfacesInStatus(t *testing.T) {
	ts := newReindexServer(t, func(ctx context.Context, p *async.Progress) error {
		return hxerrors.New(hxerrors.ErrCodeStoreUnavailable, "qdrant is gone", nil)
	})

	resp, err := http.Post(ts.URL+"/v1/reindex", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		snap := reindexStatus(t, ts)
		return snap.Status == async.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, reindexStatus(t, ts).Error, "qdrant is gone")
}
