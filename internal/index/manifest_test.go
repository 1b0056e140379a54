package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestManifest(t *testing.T) *Manifest {
	t.Helper()
	m, err := OpenManifest("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManifestGetMissing(t *testing.T) {
	m := openTestManifest(t)

	entry, err := m.Get(context.Background(), "notes/missing.md")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestManifestPutGet(t *testing.T) {
	m := openTestManifest(t)
	ctx := context.Background()

	indexedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.Put(ctx, Entry{
		Path:       "notes/trip.md",
		Hash:       "abc123",
		ChunkCount: 7,
		IndexedAt:  indexedAt,
	}))

	entry, err := m.Get(ctx, "notes/trip.md")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "notes/trip.md", entry.Path)
	assert.Equal(t, "abc123", entry.Hash)
	assert.Equal(t, 7, entry.ChunkCount)
	assert.True(t, entry.IndexedAt.Equal(indexedAt), "indexed_at should survive the round trip")
}

func TestManifestPutOverwrites(t *testing.T) {
	m := openTestManifest(t)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, Entry{Path: "a.md", Hash: "old", ChunkCount: 3, IndexedAt: time.Now()}))
	require.NoError(t, m.Put(ctx, Entry{Path: "a.md", Hash: "new", ChunkCount: 5, IndexedAt: time.Now()}))

	entry, err := m.Get(ctx, "a.md")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "new", entry.Hash)
	assert.Equal(t, 5, entry.ChunkCount)

	all, err := m.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestManifestDelete(t *testing.T) {
	m := openTestManifest(t)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, Entry{Path: "a.md", Hash: "h", ChunkCount: 1, IndexedAt: time.Now()}))
	require.NoError(t, m.Delete(ctx, "a.md"))

	entry, err := m.Get(ctx, "a.md")
	require.NoError(t, err)
	assert.Nil(t, entry)

	// Deleting a missing path is a no-op.
	require.NoError(t, m.Delete(ctx, "never-indexed.md"))
}

func TestManifestAllSortedByPath(t *testing.T) {
	m := openTestManifest(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	for _, path := range []string{"zoo.md", "alpha.md", "mid/notes.csv"} {
		require.NoError(t, m.Put(ctx, Entry{Path: path, Hash: "h", ChunkCount: 2, IndexedAt: now}))
	}

	all, err := m.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alpha.md", all[0].Path)
	assert.Equal(t, "mid/notes.csv", all[1].Path)
	assert.Equal(t, "zoo.md", all[2].Path)
}

func TestManifestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "manifest.db")
	ctx := context.Background()

	m, err := OpenManifest(path)
	require.NoError(t, err)
	require.NoError(t, m.Put(ctx, Entry{
		Path:       "notes/trip.md",
		Hash:       "abc",
		ChunkCount: 4,
		IndexedAt:  time.Now().UTC(),
	}))
	require.NoError(t, m.Close())

	reopened, err := OpenManifest(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	entry, err := reopened.Get(ctx, "notes/trip.md")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "abc", entry.Hash)
	assert.Equal(t, 4, entry.ChunkCount)
}

func TestManifestRecreatesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database"), 0644))

	m, err := OpenManifest(path)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	entry, err := m.Get(context.Background(), "anything.md")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestManifestCloseIdempotent(t *testing.T) {
	m, err := OpenManifest("")
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.Get(context.Background(), "a.md")
	require.Error(t, err)
}

func TestHashContent(t *testing.T) {
	a := HashContent([]byte("hello"))
	b := HashContent([]byte("hello"))
	c := HashContent([]byte("hello!"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
