package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelpipe/hindex/internal/chunk"
)

func TestChunkPayloadProse(t *testing.T) {
	c := &chunk.Chunk{
		ID:             "0c5c6a3e-0000-5000-8000-000000000001",
		Kind:           chunk.KindProse,
		Text:           "Pack light. Move fast.",
		SourcePath:     "notes/travel.md",
		SourceName:     "travel.md",
		Ordinal:        2,
		Tokens:         8,
		ParagraphIndex: 1,
		SentenceStart:  0,
		SentenceEnd:    1,
		DocTitle:       "Travel Playbook",
	}

	payload := ChunkPayload(c)
	assert.Equal(t, "Pack light. Move fast.", payload[KeyText])
	assert.Equal(t, "notes/travel.md", payload[KeyFilePath])
	assert.Equal(t, "travel.md", payload[KeySourceName])
	assert.Equal(t, "prose", payload[KeyKind])
	assert.Equal(t, 2, payload[KeyChunkIndex])
	assert.Equal(t, 8, payload[KeyTokens])
	assert.Equal(t, 1, payload[KeyParagraphIndex])
	assert.Equal(t, 0, payload[KeySentenceStart])
	assert.Equal(t, 1, payload[KeySentenceEnd])
	assert.Equal(t, "Travel Playbook", payload[KeyDocTitle])

	_, hasOversized := payload[KeyOversized]
	assert.False(t, hasOversized, "oversized only stored when true")
}

func TestChunkPayloadProseOmitsEmptyTitle(t *testing.T) {
	payload := ChunkPayload(&chunk.Chunk{Kind: chunk.KindProse, Text: "x"})
	_, ok := payload[KeyDocTitle]
	assert.False(t, ok)
}

func TestChunkPayloadOversized(t *testing.T) {
	payload := ChunkPayload(&chunk.Chunk{Kind: chunk.KindProse, Text: "x", Oversized: true})
	assert.Equal(t, true, payload[KeyOversized])
}

func TestChunkPayloadRow(t *testing.T) {
	c := &chunk.Chunk{
		Kind:       chunk.KindRow,
		Text:       "Trip: vietnam\nCost: 30",
		SourcePath: "costs.csv",
		SourceName: "costs.csv",
		Ordinal:    0,
		Tokens:     6,
		Fields:     map[string]string{"Trip": "vietnam", "Cost": "30"},
	}

	payload := ChunkPayload(c)
	assert.Equal(t, "row", payload[KeyKind])
	assert.Equal(t, "vietnam", payload["row_trip"])
	assert.Equal(t, "30", payload["row_cost"])

	_, hasParagraph := payload[KeyParagraphIndex]
	assert.False(t, hasParagraph, "row chunks carry no sentence coordinates")
}

func TestChunkPoint(t *testing.T) {
	c := &chunk.Chunk{ID: "abc", Kind: chunk.KindProse, Text: "hello"}
	p := ChunkPoint(c, []float32{1, 2, 3})

	assert.Equal(t, "abc", p.ID)
	assert.Equal(t, []float32{1, 2, 3}, p.Vector)
	assert.Equal(t, "hello", p.Payload[KeyText])
}

func TestDecodePayload(t *testing.T) {
	// Integers arrive as int64 after a round trip through Qdrant.
	doc := DecodePayload(map[string]any{
		KeyText:       "Trip: vietnam",
		KeyFilePath:   "costs.csv",
		KeySourceName: "costs.csv",
		KeyKind:       "row",
		KeyChunkIndex: int64(3),
		KeyTokens:     int64(5),
		"row_trip":    "vietnam",
		"row_cost":    "30",
	})

	assert.Equal(t, "Trip: vietnam", doc.Text)
	assert.Equal(t, "costs.csv", doc.FilePath)
	assert.Equal(t, "row", doc.Kind)
	assert.Equal(t, 3, doc.ChunkIndex)
	assert.Equal(t, 5, doc.Tokens)
	assert.Equal(t, map[string]string{"trip": "vietnam", "cost": "30"}, doc.RowFields)
	assert.False(t, doc.Oversized)
}

func TestDecodePayloadProseExtras(t *testing.T) {
	doc := DecodePayload(map[string]any{
		KeyKind:      "prose",
		KeyDocTitle:  "Guide",
		KeyOversized: true,
	})
	assert.Equal(t, "Guide", doc.DocTitle)
	assert.True(t, doc.Oversized)
	assert.Nil(t, doc.RowFields)
}

func TestDecodePayloadToleratesMissingAndUnknownKeys(t *testing.T) {
	doc := DecodePayload(map[string]any{"unrelated": 42})
	assert.Empty(t, doc.Text)
	assert.Zero(t, doc.ChunkIndex)
	assert.Nil(t, doc.RowFields)
}

func TestPayloadRoundTripThroughChunk(t *testing.T) {
	c := &chunk.Chunk{
		Kind:       chunk.KindRow,
		Text:       "name: pho",
		SourcePath: "menu.json",
		SourceName: "menu.json",
		Ordinal:    1,
		Tokens:     4,
		Fields:     map[string]string{"name": "pho"},
	}

	doc := DecodePayload(ChunkPayload(c))
	require.Equal(t, c.Text, doc.Text)
	require.Equal(t, c.SourcePath, doc.FilePath)
	require.Equal(t, c.Ordinal, doc.ChunkIndex)
	require.Equal(t, map[string]string{"name": "pho"}, doc.RowFields)
}
