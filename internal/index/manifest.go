package index

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	hxerrors "github.com/reelpipe/hindex/internal/errors"
)

// Manifest records what has been indexed: one row per source file with its
// content hash, chunk count, and timestamp. The hash drives skip-unchanged;
// the chunk count lets a re-index delete stale trailing points when a file
// shrinks. Losing the manifest costs a full re-embed, nothing more.
type Manifest struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// Entry is one manifest row.
type Entry struct {
	Path       string
	Hash       string
	ChunkCount int
	IndexedAt  time.Time
}

// HashContent returns the content hash stored in manifest entries.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// OpenManifest opens or creates the manifest database. An empty path opens
// an in-memory manifest for tests. A corrupt database is removed and
// recreated: the manifest is derived state.
func OpenManifest(path string) (*Manifest, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, hxerrors.New(hxerrors.ErrCodeManifest,
				fmt.Sprintf("cannot create state directory for %s", path), err)
		}
		if err := validateIntegrity(path); err != nil {
			// Derived state: drop and start over rather than refusing to run.
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, hxerrors.New(hxerrors.ErrCodeManifest,
			fmt.Sprintf("cannot open manifest %s", path), err)
	}

	// Single connection: the manifest is low traffic and SQLite prefers a
	// single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores some DSN parameters; pragmas must be
	// executed explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, hxerrors.New(hxerrors.ErrCodeManifest, "cannot configure manifest", err)
		}
	}

	m := &Manifest{db: db, path: path}
	if err := m.initSchema(); err != nil {
		_ = db.Close()
		return nil, hxerrors.New(hxerrors.ErrCodeManifest, "cannot initialize manifest schema", err)
	}
	return m, nil
}

// validateIntegrity runs a quick integrity check on an existing database.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("manifest corrupted: %s", result)
	}
	return nil
}

func (m *Manifest) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS files (
		path         TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		chunk_count  INTEGER NOT NULL,
		indexed_at   INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := m.db.Exec(schema)
	return err
}

// Get returns the entry for path, or nil when the file was never indexed.
func (m *Manifest) Get(ctx context.Context, path string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, hxerrors.New(hxerrors.ErrCodeManifest, "manifest is closed", nil)
	}

	row := m.db.QueryRowContext(ctx,
		"SELECT path, content_hash, chunk_count, indexed_at FROM files WHERE path = ?", path)

	var e Entry
	var indexedAt int64
	err := row.Scan(&e.Path, &e.Hash, &e.ChunkCount, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, hxerrors.New(hxerrors.ErrCodeManifest,
			fmt.Sprintf("cannot read manifest entry for %s", path), err)
	}
	e.IndexedAt = time.Unix(indexedAt, 0).UTC()
	return &e, nil
}

// Put upserts an entry.
func (m *Manifest) Put(ctx context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return hxerrors.New(hxerrors.ErrCodeManifest, "manifest is closed", nil)
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO files (path, content_hash, chunk_count, indexed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			chunk_count  = excluded.chunk_count,
			indexed_at   = excluded.indexed_at`,
		e.Path, e.Hash, e.ChunkCount, e.IndexedAt.Unix())
	if err != nil {
		return hxerrors.New(hxerrors.ErrCodeManifest,
			fmt.Sprintf("cannot write manifest entry for %s", e.Path), err)
	}
	return nil
}

// Delete removes the entry for path. Missing entries are not an error.
func (m *Manifest) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return hxerrors.New(hxerrors.ErrCodeManifest, "manifest is closed", nil)
	}

	if _, err := m.db.ExecContext(ctx, "DELETE FROM files WHERE path = ?", path); err != nil {
		return hxerrors.New(hxerrors.ErrCodeManifest,
			fmt.Sprintf("cannot delete manifest entry for %s", path), err)
	}
	return nil
}

// All returns every entry ordered by path.
func (m *Manifest) All(ctx context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, hxerrors.New(hxerrors.ErrCodeManifest, "manifest is closed", nil)
	}

	rows, err := m.db.QueryContext(ctx,
		"SELECT path, content_hash, chunk_count, indexed_at FROM files ORDER BY path")
	if err != nil {
		return nil, hxerrors.New(hxerrors.ErrCodeManifest, "cannot list manifest entries", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var indexedAt int64
		if err := rows.Scan(&e.Path, &e.Hash, &e.ChunkCount, &indexedAt); err != nil {
			return nil, hxerrors.New(hxerrors.ErrCodeManifest, "cannot scan manifest entry", err)
		}
		e.IndexedAt = time.Unix(indexedAt, 0).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, hxerrors.New(hxerrors.ErrCodeManifest, "cannot list manifest entries", err)
	}
	return entries, nil
}

// Close closes the database. Safe to call more than once.
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}
