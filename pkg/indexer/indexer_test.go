package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelpipe/hindex/internal/config"
	hxerrors "github.com/reelpipe/hindex/internal/errors"
	"github.com/reelpipe/hindex/internal/index"
	"github.com/reelpipe/hindex/internal/vector"
)

// fakeEmbedder returns deterministic vectors and records how many batches
// it served.
type fakeEmbedder struct {
	mu      sync.Mutex
	batches int
	closed  bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, 4)
		vec[0] = float32(len(texts[i]))
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 4 }

func (f *fakeEmbedder) ModelName() string { return "fake-model" }

func (f *fakeEmbedder) Available(ctx context.Context) bool { return true }

func (f *fakeEmbedder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeEmbedder) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches
}

// fakeStore keeps points in memory keyed by id.
type fakeStore struct {
	mu     sync.Mutex
	points map[string]vector.Point
	closed bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{points: make(map[string]vector.Point)}
}

func (s *fakeStore) Exists(ctx context.Context) (bool, error) { return true, nil }

func (s *fakeStore) EnsureCollection(ctx context.Context, dims int) error { return nil }

func (s *fakeStore) Upsert(ctx context.Context, points []vector.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[p.ID] = p
	}
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.points, id)
	}
	return nil
}

func (s *fakeStore) Query(ctx context.Context, vec []float32, topK int, filter vector.Filter) ([]vector.ScoredPoint, error) {
	return nil, nil
}

func (s *fakeStore) Info(ctx context.Context) (*vector.CollectionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &vector.CollectionInfo{PointsCount: uint64(len(s.points)), Status: "green"}, nil
}

func (s *fakeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStore) pointCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Source.Dir = t.TempDir()
	cfg.Index.StateDir = t.TempDir()
	return cfg
}

func writeSource(t *testing.T, cfg *config.Config, rel, content string) {
	t.Helper()
	path := filepath.Join(cfg.Source.Dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestIndexer(t *testing.T, cfg *config.Config) (*Indexer, *fakeStore, *fakeEmbedder) {
	t.Helper()
	store := newFakeStore()
	embedder := &fakeEmbedder{}
	ix, err := New(cfg, WithStore(store), WithEmbedder(embedder))
	require.NoError(t, err)
	return ix, store, embedder
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Chunking.MaxTokens = 0

	_, err := New(cfg, WithStore(newFakeStore()), WithEmbedder(&fakeEmbedder{}))
	require.Error(t, err)
	assert.Equal(t, hxerrors.ErrCodeConfigInvalid, hxerrors.GetCode(err))
}

func TestScanAndRun(t *testing.T) {
	cfg := testConfig(t)
	writeSource(t, cfg, "notes/day1.md", "# Day One\n\nWe filmed the bridge at dawn.")
	writeSource(t, cfg, "tables/costs.csv", "item,price\nferry,12\nmuseum,30\n")
	ix, store, _ := newTestIndexer(t, cfg)

	files, err := ix.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)

	var (
		mu   sync.Mutex
		seen []string
	)
	report, err := ix.Run(context.Background(), files, RunOptions{
		PruneMissing: true,
		OnProgress: func(done, total int, path string) {
			mu.Lock()
			seen = append(seen, path)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.FilesIndexed)
	assert.Zero(t, report.FilesFailed)
	assert.Greater(t, report.ChunksWritten, 0)
	assert.Equal(t, report.ChunksWritten, store.pointCount())
	assert.Len(t, seen, 2)
}

func TestRunEmptyListLeavesStoreAlone(t *testing.T) {
	cfg := testConfig(t)
	writeSource(t, cfg, "keep.md", "This paragraph stays indexed.")
	ix, store, _ := newTestIndexer(t, cfg)

	files, err := ix.Scan(context.Background())
	require.NoError(t, err)
	_, err = ix.Run(context.Background(), files, RunOptions{PruneMissing: true})
	require.NoError(t, err)
	indexed := store.pointCount()
	require.Greater(t, indexed, 0)

	report, err := ix.Run(context.Background(), nil, RunOptions{PruneMissing: true})
	require.NoError(t, err)

	assert.Zero(t, report.FilesScanned)
	assert.Zero(t, report.PointsDeleted)
	assert.Equal(t, indexed, store.pointCount())
}

func TestRunSkipsUnchangedAcrossCalls(t *testing.T) {
	cfg := testConfig(t)
	writeSource(t, cfg, "guide.md", "Take the harbour ferry before nine.")
	ix, _, embedder := newTestIndexer(t, cfg)

	files, err := ix.Scan(context.Background())
	require.NoError(t, err)
	_, err = ix.Run(context.Background(), files, RunOptions{})
	require.NoError(t, err)
	batches := embedder.batchCount()

	report, err := ix.Run(context.Background(), files, RunOptions{SkipUnchanged: true})
	require.NoError(t, err)

	assert.Equal(t, 1, report.FilesSkipped)
	assert.Zero(t, report.FilesIndexed)
	assert.Equal(t, batches, embedder.batchCount())
}

func TestRunFailsWhileStateDirLocked(t *testing.T) {
	cfg := testConfig(t)
	writeSource(t, cfg, "doc.md", "Some content to index.")
	ix, _, _ := newTestIndexer(t, cfg)

	lock, err := index.AcquireRunLock(cfg.LockPath())
	require.NoError(t, err)
	defer func() { _ = lock.Release() }()

	files, err := ix.Scan(context.Background())
	require.NoError(t, err)
	_, err = ix.Run(context.Background(), files, RunOptions{})
	require.Error(t, err)
	assert.Equal(t, hxerrors.ErrCodeIndexLocked, hxerrors.GetCode(err))
}

func TestCloseLeavesInjectedBackendsOpen(t *testing.T) {
	cfg := testConfig(t)
	ix, store, embedder := newTestIndexer(t, cfg)

	require.NoError(t, ix.Close())

	assert.False(t, store.closed)
	assert.False(t, embedder.closed)
	assert.Same(t, store, ix.Store())
	assert.Same(t, embedder, ix.Embedder())
}

func TestWatchIndexesNewFiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.WatchDebounce = "30ms"
	ix, store, _ := newTestIndexer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Watch(ctx, RunOptions{}) }()

	// Give the watcher a moment to register before the first write.
	time.Sleep(100 * time.Millisecond)
	writeSource(t, cfg, "fresh.md", "A brand new paragraph to pick up.")

	require.Eventually(t, func() bool {
		return store.pointCount() > 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, err == nil || errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
