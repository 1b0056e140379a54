package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelpipe/hindex/internal/chunk"
	"github.com/reelpipe/hindex/internal/index"
	"github.com/reelpipe/hindex/internal/source"
	"github.com/reelpipe/hindex/internal/token"
	"github.com/reelpipe/hindex/internal/vector"
)

type fakeWatchEmbedder struct {
	mu      sync.Mutex
	batches int
}

func (f *fakeWatchEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeWatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func (f *fakeWatchEmbedder) Dimensions() int { return 4 }

func (f *fakeWatchEmbedder) ModelName() string { return "fake-model" }

func (f *fakeWatchEmbedder) Available(ctx context.Context) bool { return true }

func (f *fakeWatchEmbedder) Close() error { return nil }

func (f *fakeWatchEmbedder) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches
}

type fakeWatchStore struct {
	mu     sync.Mutex
	points map[string]vector.Point
}

func newFakeWatchStore() *fakeWatchStore {
	return &fakeWatchStore{points: make(map[string]vector.Point)}
}

func (s *fakeWatchStore) Exists(ctx context.Context) (bool, error) { return true, nil }

func (s *fakeWatchStore) EnsureCollection(ctx context.Context, dims int) error { return nil }

func (s *fakeWatchStore) Upsert(ctx context.Context, points []vector.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[p.ID] = p
	}
	return nil
}

func (s *fakeWatchStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.points, id)
	}
	return nil
}

func (s *fakeWatchStore) Query(ctx context.Context, vec []float32, topK int, filter vector.Filter) ([]vector.ScoredPoint, error) {
	return nil, nil
}

func (s *fakeWatchStore) Info(ctx context.Context) (*vector.CollectionInfo, error) {
	return &vector.CollectionInfo{VectorSize: 4}, nil
}

func (s *fakeWatchStore) Close() error { return nil }

func (s *fakeWatchStore) pointCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

type serviceFixture struct {
	dir      string
	embedder *fakeWatchEmbedder
	store    *fakeWatchStore
	service  *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	dir := t.TempDir()

	embedder := &fakeWatchEmbedder{}
	store := newFakeWatchStore()

	manifest, err := index.OpenManifest("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = manifest.Close() })

	runner, err := index.NewRunner(index.Dependencies{
		Embedder: embedder,
		Store:    store,
		Chunker:  chunk.NewDispatcher(token.NewEstimator(), 200, 20),
		Manifest: manifest,
	}, index.Options{SkipUnchanged: true})
	require.NoError(t, err)

	scanOpts := &source.ScanOptions{RootDir: dir}
	service, err := NewService(runner, source.NewScanner(), scanOpts, Options{Window: testWindow})
	require.NoError(t, err)

	return &serviceFixture{
		dir:      dir,
		embedder: embedder,
		store:    store,
		service:  service,
	}
}

func (f *serviceFixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	f := newServiceFixture(t)

	_, err := NewService(nil, source.NewScanner(), &source.ScanOptions{}, Options{})
	require.Error(t, err)

	_, err = NewService(f.service.runner, nil, &source.ScanOptions{}, Options{})
	require.Error(t, err)

	_, err = NewService(f.service.runner, source.NewScanner(), nil, Options{})
	require.Error(t, err)
}

func TestServiceApplyIndexesChangedFile(t *testing.T) {
	f := newServiceFixture(t)
	f.write(t, "note.md", "A single paragraph of text.\n")

	err := f.service.apply(context.Background(), []Event{
		{Path: "note.md", Op: OpCreate, Time: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.pointCount())
}

func TestServiceApplySkipsUnchangedFile(t *testing.T) {
	f := newServiceFixture(t)
	f.write(t, "note.md", "Stable content.\n")
	batch := []Event{{Path: "note.md", Op: OpModify, Time: time.Now()}}

	require.NoError(t, f.service.apply(context.Background(), batch))
	first := f.embedder.batchCount()

	// The same content arriving again must not re-embed.
	require.NoError(t, f.service.apply(context.Background(), batch))
	assert.Equal(t, first, f.embedder.batchCount())
}

func TestServiceApplyRemovesDeletedFile(t *testing.T) {
	f := newServiceFixture(t)
	f.write(t, "note.md", "Short lived.\n")

	ctx := context.Background()
	require.NoError(t, f.service.apply(ctx, []Event{{Path: "note.md", Op: OpCreate, Time: time.Now()}}))
	require.Equal(t, 1, f.store.pointCount())

	require.NoError(t, os.Remove(filepath.Join(f.dir, "note.md")))
	require.NoError(t, f.service.apply(ctx, []Event{{Path: "note.md", Op: OpDelete, Time: time.Now()}}))
	assert.Zero(t, f.store.pointCount())
}

func TestServiceApplyRemovesDirectoryTree(t *testing.T) {
	f := newServiceFixture(t)
	f.write(t, "trips/a.md", "First note.\n")
	f.write(t, "trips/b.md", "Second note.\n")

	ctx := context.Background()
	require.NoError(t, f.service.apply(ctx, []Event{
		{Path: "trips/a.md", Op: OpCreate, Time: time.Now()},
		{Path: "trips/b.md", Op: OpCreate, Time: time.Now()},
	}))
	require.Equal(t, 2, f.store.pointCount())

	require.NoError(t, os.RemoveAll(filepath.Join(f.dir, "trips")))
	require.NoError(t, f.service.apply(ctx, []Event{{Path: "trips", Op: OpDelete, Time: time.Now()}}))
	assert.Zero(t, f.store.pointCount())
}

func TestServiceApplyTreatsMissingFileAsDelete(t *testing.T) {
	f := newServiceFixture(t)
	f.write(t, "note.md", "Here then gone.\n")

	ctx := context.Background()
	require.NoError(t, f.service.apply(ctx, []Event{{Path: "note.md", Op: OpCreate, Time: time.Now()}}))
	require.Equal(t, 1, f.store.pointCount())

	// Deleted after the event fired but before the batch was applied.
	require.NoError(t, os.Remove(filepath.Join(f.dir, "note.md")))
	require.NoError(t, f.service.apply(ctx, []Event{{Path: "note.md", Op: OpModify, Time: time.Now()}}))
	assert.Zero(t, f.store.pointCount())
}

func TestServiceApplyIgnoresNonIndexableFiles(t *testing.T) {
	f := newServiceFixture(t)
	f.write(t, "script.py", "print('hi')\n")

	err := f.service.apply(context.Background(), []Event{
		{Path: "script.py", Op: OpCreate, Time: time.Now()},
	})
	require.NoError(t, err)
	assert.Zero(t, f.store.pointCount())
	assert.Zero(t, f.embedder.batchCount())
}

func TestServiceRunIndexesNewFiles(t *testing.T) {
	f := newServiceFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.service.Run(ctx) }()
	time.Sleep(150 * time.Millisecond)

	f.write(t, "fresh.md", "Written while watching.\n")

	assert.Eventually(t, func() bool {
		return f.store.pointCount() > 0
	}, 5*time.Second, 50*time.Millisecond, "new file was never indexed")

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
