package vector

import (
	"strings"

	"github.com/reelpipe/hindex/internal/chunk"
)

// Payload key names. Keys are flat so Qdrant keyword filters work on them
// without nested-field syntax.
const (
	KeyText           = "text"
	KeyFilePath       = "file_path"
	KeySourceName     = "source_name"
	KeyKind           = "kind"
	KeyChunkIndex     = "chunk_index"
	KeyTokens         = "n_tokens"
	KeyParagraphIndex = "paragraph_index"
	KeySentenceStart  = "sentence_start"
	KeySentenceEnd    = "sentence_end"
	KeyDocTitle       = "doc_title"
	KeyOversized      = "oversized"

	// RowKeyPrefix prefixes one payload key per tabular field, with the
	// field name lowercased: a "Trip" column becomes row_trip.
	RowKeyPrefix = "row_"
)

// ChunkPayload flattens a chunk into its stored payload.
func ChunkPayload(c *chunk.Chunk) map[string]any {
	payload := map[string]any{
		KeyText:       c.Text,
		KeyFilePath:   c.SourcePath,
		KeySourceName: c.SourceName,
		KeyKind:       string(c.Kind),
		KeyChunkIndex: c.Ordinal,
		KeyTokens:     c.Tokens,
	}

	switch c.Kind {
	case chunk.KindProse:
		payload[KeyParagraphIndex] = c.ParagraphIndex
		payload[KeySentenceStart] = c.SentenceStart
		payload[KeySentenceEnd] = c.SentenceEnd
		if c.DocTitle != "" {
			payload[KeyDocTitle] = c.DocTitle
		}
		if c.Oversized {
			payload[KeyOversized] = true
		}
	case chunk.KindRow:
		for name, value := range c.Fields {
			payload[RowKeyPrefix+strings.ToLower(name)] = value
		}
	}

	return payload
}

// ChunkPoint pairs a chunk's payload with its vector for upsert.
func ChunkPoint(c *chunk.Chunk, vector []float32) Point {
	return Point{ID: c.ID, Vector: vector, Payload: ChunkPayload(c)}
}

// Doc is the typed view of a stored payload, used when presenting query
// results. Unknown keys are ignored; missing keys decode to zero values.
type Doc struct {
	Text       string
	FilePath   string
	SourceName string
	Kind       string
	ChunkIndex int
	Tokens     int
	DocTitle   string
	Oversized  bool
	RowFields  map[string]string
}

// DecodePayload reads a payload back into a Doc. Numeric values arrive as
// int64 from Qdrant and as int when the payload never crossed the wire.
func DecodePayload(payload map[string]any) Doc {
	doc := Doc{
		Text:       payloadString(payload, KeyText),
		FilePath:   payloadString(payload, KeyFilePath),
		SourceName: payloadString(payload, KeySourceName),
		Kind:       payloadString(payload, KeyKind),
		ChunkIndex: payloadInt(payload, KeyChunkIndex),
		Tokens:     payloadInt(payload, KeyTokens),
		DocTitle:   payloadString(payload, KeyDocTitle),
	}
	if v, ok := payload[KeyOversized].(bool); ok {
		doc.Oversized = v
	}

	for key, value := range payload {
		if !strings.HasPrefix(key, RowKeyPrefix) {
			continue
		}
		if doc.RowFields == nil {
			doc.RowFields = make(map[string]string)
		}
		if s, ok := value.(string); ok {
			doc.RowFields[strings.TrimPrefix(key, RowKeyPrefix)] = s
		}
	}
	return doc
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func payloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
