// Package chunk decomposes source documents into token-bounded chunks.
//
// Prose documents split into paragraphs on blank lines, then into sentence
// windows that respect a token budget with a configured overlap carried
// between consecutive windows of one paragraph. Tabular documents (CSV, JSON
// record arrays) yield exactly one chunk per record with the parsed fields
// preserved verbatim.
package chunk

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/reelpipe/hindex/internal/source"
)

// Kind discriminates the two chunk variants.
type Kind string

const (
	// KindProse is a sentence window from a prose document.
	KindProse Kind = "prose"
	// KindRow is a single record from a tabular document.
	KindRow Kind = "row"
)

// Chunk is one retrievable unit of a source document.
type Chunk struct {
	ID         string // Deterministic UUIDv5 point ID
	Kind       Kind   // prose or row
	Text       string // Embeddable content
	SourcePath string // Document path relative to the scan root
	SourceName string // Document base name
	Ordinal    int    // Position within the document, 0-based
	Tokens     int    // Size as measured by the configured counter

	// Prose provenance.
	ParagraphIndex int    // Originating paragraph, 0-based
	SentenceStart  int    // First sentence of the window, paragraph-relative
	SentenceEnd    int    // Last sentence of the window, inclusive
	Oversized      bool   // Single sentence exceeded the budget, emitted whole
	DocTitle       string // First level-1 heading of a markdown source

	// Fields holds the parsed record verbatim (row only).
	Fields map[string]string
}

// Chunker splits one document into chunks.
type Chunker interface {
	Chunk(ctx context.Context, doc *source.Document) ([]*Chunk, error)
}

// ID derives the deterministic point ID for a chunk position. Identical
// content and config yield identical IDs across runs and machines, so
// re-indexing overwrites points instead of duplicating them.
func ID(relPath string, ordinal int) string {
	name := fmt.Sprintf("%s:%d", relPath, ordinal)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
