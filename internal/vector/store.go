// Package vector persists chunk embeddings in Qdrant and runs similarity
// queries over them. Point ids are the deterministic chunk UUIDs, so
// re-indexing the same source upserts in place instead of duplicating.
package vector

import "context"

// Point is one embedded chunk ready for upsert.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a similarity match returned by Query.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Filter restricts a query to points whose payload matches every entry.
// Keys are payload keys holding keyword values (source_name, kind, row_*);
// matching is exact.
type Filter map[string]string

// CollectionInfo describes the backing collection.
type CollectionInfo struct {
	VectorSize  int
	PointsCount uint64
	Status      string
}

// Store is the vector database the indexing pipeline writes to and the
// query path reads from. Implementations are scoped to one collection.
type Store interface {
	// Exists reports whether the collection is present, without creating it.
	Exists(ctx context.Context) (bool, error)

	// EnsureCollection creates the collection with the given vector width
	// if missing, and fails when an existing collection's width differs.
	EnsureCollection(ctx context.Context, dims int) error

	// Upsert writes points, replacing any with the same id.
	Upsert(ctx context.Context, points []Point) error

	// Delete removes points by id. Unknown ids are not an error.
	Delete(ctx context.Context, ids []string) error

	// Query returns the topK nearest points with payloads.
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]ScoredPoint, error)

	// Info reports collection size and status.
	Info(ctx context.Context) (*CollectionInfo, error)

	// Close releases the connection.
	Close() error
}
