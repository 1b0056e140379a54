package chunk

import (
	"context"
	"fmt"

	hxerrors "github.com/reelpipe/hindex/internal/errors"
	"github.com/reelpipe/hindex/internal/source"
	"github.com/reelpipe/hindex/internal/token"
)

// Dispatcher routes documents to the chunker matching their format.
type Dispatcher struct {
	prose   *ProseChunker
	tabular *TabularChunker
}

// NewDispatcher wires the prose and tabular chunkers behind one entry point.
func NewDispatcher(counter token.Counter, maxTokens, overlapTokens int) *Dispatcher {
	return &Dispatcher{
		prose:   NewProseChunker(counter, maxTokens, overlapTokens),
		tabular: NewTabularChunker(counter),
	}
}

// Chunk splits doc according to its format.
func (d *Dispatcher) Chunk(ctx context.Context, doc *source.Document) ([]*Chunk, error) {
	switch doc.Format {
	case source.FormatProse:
		return d.prose.Chunk(ctx, doc)
	case source.FormatCSV, source.FormatJSON:
		return d.tabular.Chunk(ctx, doc)
	default:
		return nil, hxerrors.New(hxerrors.ErrCodeInvalidInput,
			fmt.Sprintf("no chunker for format %q", doc.Format), nil)
	}
}

var _ Chunker = (*Dispatcher)(nil)
var _ Chunker = (*ProseChunker)(nil)
var _ Chunker = (*TabularChunker)(nil)
