package chunk

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	hxerrors "github.com/reelpipe/hindex/internal/errors"
	"github.com/reelpipe/hindex/internal/source"
	"github.com/reelpipe/hindex/internal/token"
)

// TabularChunker turns each record of a CSV or JSON document into one chunk.
// Rows never overlap; splitting a record would break its field associations.
type TabularChunker struct {
	counter token.Counter
}

// NewTabularChunker creates a tabular chunker.
func NewTabularChunker(counter token.Counter) *TabularChunker {
	return &TabularChunker{counter: counter}
}

// Chunk dispatches on the document format. A document with a header but no
// records yields zero chunks and no error.
func (c *TabularChunker) Chunk(ctx context.Context, doc *source.Document) ([]*Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch doc.Format {
	case source.FormatCSV:
		return c.chunkCSV(doc)
	case source.FormatJSON:
		return c.chunkJSON(doc)
	default:
		return nil, hxerrors.New(hxerrors.ErrCodeInvalidInput,
			fmt.Sprintf("tabular chunker cannot handle format %q", doc.Format), nil)
	}
}

// chunkCSV reads the header row and emits one chunk per record. Ragged rows
// are tolerated: missing trailing values become empty strings, extra values
// are dropped.
func (c *TabularChunker) chunkCSV(doc *source.Document) ([]*Chunk, error) {
	reader := csv.NewReader(bytes.NewReader(doc.Content))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, hxerrors.New(hxerrors.ErrCodeSourceParse,
			fmt.Sprintf("cannot parse CSV %s", doc.RelPath), err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := make([]string, 0, len(records[0]))
	for _, name := range records[0] {
		header = append(header, strings.TrimSpace(name))
	}

	var chunks []*Chunk
	for ordinal, record := range records[1:] {
		fields := make(map[string]string, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(record) {
				fields[name] = record[i]
			} else {
				fields[name] = ""
			}
		}
		chunks = append(chunks, c.rowChunk(doc, ordinal, header, fields))
	}
	return chunks, nil
}

// chunkJSON accepts a top-level array of flat objects, or a single object
// treated as a one-row document. Scalar values are stringified; nested
// structures fail the file.
func (c *TabularChunker) chunkJSON(doc *source.Document) ([]*Chunk, error) {
	trimmed := bytes.TrimSpace(doc.Content)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var raw any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, hxerrors.New(hxerrors.ErrCodeSourceParse,
			fmt.Sprintf("cannot parse JSON %s", doc.RelPath), err)
	}

	var objects []map[string]any
	switch v := raw.(type) {
	case []any:
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, hxerrors.New(hxerrors.ErrCodeSourceParse,
					fmt.Sprintf("JSON %s: element %d is not an object", doc.RelPath, i), nil)
			}
			objects = append(objects, obj)
		}
	case map[string]any:
		objects = append(objects, v)
	default:
		return nil, hxerrors.New(hxerrors.ErrCodeSourceParse,
			fmt.Sprintf("JSON %s: top level must be an object or array of objects", doc.RelPath), nil)
	}

	var chunks []*Chunk
	for ordinal, obj := range objects {
		fields := make(map[string]string, len(obj))
		for k, val := range obj {
			s, err := stringifyScalar(val)
			if err != nil {
				return nil, hxerrors.New(hxerrors.ErrCodeSourceParse,
					fmt.Sprintf("JSON %s: field %q of record %d: %v", doc.RelPath, k, ordinal, err), nil)
			}
			fields[k] = s
		}
		// JSON objects have no column order; sort keys for stable text.
		header := make([]string, 0, len(fields))
		for k := range fields {
			header = append(header, k)
		}
		sort.Strings(header)
		chunks = append(chunks, c.rowChunk(doc, ordinal, header, fields))
	}
	return chunks, nil
}

// rowChunk materializes one record as a chunk. Text is "field: value" lines
// in header order, which embeds better than bare values.
func (c *TabularChunker) rowChunk(doc *source.Document, ordinal int, header []string, fields map[string]string) *Chunk {
	var lines []string
	for _, name := range header {
		if name == "" {
			continue
		}
		if value, ok := fields[name]; ok {
			lines = append(lines, fmt.Sprintf("%s: %s", name, value))
		}
	}
	text := strings.Join(lines, "\n")

	return &Chunk{
		ID:         ID(doc.RelPath, ordinal),
		Kind:       KindRow,
		Text:       text,
		SourcePath: doc.RelPath,
		SourceName: doc.SourceName(),
		Ordinal:    ordinal,
		Tokens:     c.counter.Count(text),
		Fields:     fields,
	}
}

// stringifyScalar renders a JSON scalar as its payload string.
func stringifyScalar(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("nested value of type %T", v)
	}
}
