package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hxerrors "github.com/reelpipe/hindex/internal/errors"
	"github.com/reelpipe/hindex/internal/source"
	"github.com/reelpipe/hindex/internal/token"
)

func tabularDoc(relPath string, format source.Format, content string) *source.Document {
	return &source.Document{
		Path:    "/src/" + relPath,
		RelPath: relPath,
		Format:  format,
		Content: []byte(content),
	}
}

func chunkTabular(t *testing.T, doc *source.Document) []*Chunk {
	t.Helper()
	chunks, err := NewTabularChunker(token.NewEstimator()).Chunk(context.Background(), doc)
	require.NoError(t, err)
	return chunks
}

func TestCSVOneChunkPerRow(t *testing.T) {
	csv := `trip,item,cost
vietnam,street food,30
vietnam,hotel,55
japan,rail pass,120
japan,ramen,12
peru,trek permit,200
`
	chunks := chunkTabular(t, tabularDoc("costs.csv", source.FormatCSV, csv))
	require.Len(t, chunks, 5)

	for i, c := range chunks {
		assert.Equal(t, KindRow, c.Kind)
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, "costs.csv", c.SourcePath)
		assert.False(t, c.Oversized)
		assert.Len(t, c.Fields, 3)
	}

	first := chunks[0]
	assert.Equal(t, "trip: vietnam\nitem: street food\ncost: 30", first.Text)
	assert.Equal(t, map[string]string{
		"trip": "vietnam",
		"item": "street food",
		"cost": "30",
	}, first.Fields)

	last := chunks[4]
	assert.Equal(t, map[string]string{
		"trip": "peru",
		"item": "trek permit",
		"cost": "200",
	}, last.Fields)
}

func TestCSVFieldValuesVerbatim(t *testing.T) {
	// Values keep their exact bytes: inner spaces, currency symbols, casing.
	csv := "Name,Budget\n\"Ha Long Bay\",\"$1,200.50\"\n"
	chunks := chunkTabular(t, tabularDoc("trips.csv", source.FormatCSV, csv))
	require.Len(t, chunks, 1)

	assert.Equal(t, "Ha Long Bay", chunks[0].Fields["Name"])
	assert.Equal(t, "$1,200.50", chunks[0].Fields["Budget"])
	assert.Equal(t, "Name: Ha Long Bay\nBudget: $1,200.50", chunks[0].Text)
}

func TestCSVRaggedRows(t *testing.T) {
	csv := "a,b,c\n1,2\n1,2,3,4\n"
	chunks := chunkTabular(t, tabularDoc("ragged.csv", source.FormatCSV, csv))
	require.Len(t, chunks, 2)

	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": ""}, chunks[0].Fields)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, chunks[1].Fields)
}

func TestCSVHeaderOnly(t *testing.T) {
	chunks := chunkTabular(t, tabularDoc("empty.csv", source.FormatCSV, "a,b,c\n"))
	assert.Empty(t, chunks)
}

func TestCSVEmptyFile(t *testing.T) {
	chunks := chunkTabular(t, tabularDoc("nothing.csv", source.FormatCSV, ""))
	assert.Empty(t, chunks)
}

func TestCSVMalformed(t *testing.T) {
	_, err := NewTabularChunker(token.NewEstimator()).
		Chunk(context.Background(), tabularDoc("bad.csv", source.FormatCSV, "a,b\n\"unclosed,1\n"))
	require.Error(t, err)
	assert.Equal(t, hxerrors.ErrCodeSourceParse, hxerrors.GetCode(err))
}

func TestCSVDeterministicIDs(t *testing.T) {
	csv := "a,b\n1,2\n3,4\n"
	first := chunkTabular(t, tabularDoc("ids.csv", source.FormatCSV, csv))
	second := chunkTabular(t, tabularDoc("ids.csv", source.FormatCSV, csv))

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
	assert.NotEqual(t, first[0].ID, first[1].ID)
}

func TestJSONArrayOfObjects(t *testing.T) {
	data := `[
		{"trip": "vietnam", "days": 14, "guided": false},
		{"trip": "japan", "days": 10, "guided": true}
	]`
	chunks := chunkTabular(t, tabularDoc("trips.json", source.FormatJSON, data))
	require.Len(t, chunks, 2)

	assert.Equal(t, KindRow, chunks[0].Kind)
	assert.Equal(t, map[string]string{
		"trip":   "vietnam",
		"days":   "14",
		"guided": "false",
	}, chunks[0].Fields)
	// Keys sort alphabetically for stable chunk text.
	assert.Equal(t, "days: 14\nguided: false\ntrip: vietnam", chunks[0].Text)
}

func TestJSONSingleObject(t *testing.T) {
	chunks := chunkTabular(t, tabularDoc("one.json", source.FormatJSON, `{"name": "pho", "price": 3.5}`))
	require.Len(t, chunks, 1)
	assert.Equal(t, map[string]string{"name": "pho", "price": "3.5"}, chunks[0].Fields)
}

func TestJSONNullBecomesEmptyString(t *testing.T) {
	chunks := chunkTabular(t, tabularDoc("null.json", source.FormatJSON, `[{"a": null}]`))
	require.Len(t, chunks, 1)
	assert.Equal(t, map[string]string{"a": ""}, chunks[0].Fields)
}

func TestJSONRejectsNestedValues(t *testing.T) {
	_, err := NewTabularChunker(token.NewEstimator()).
		Chunk(context.Background(), tabularDoc("nested.json", source.FormatJSON, `[{"a": {"b": 1}}]`))
	require.Error(t, err)
	assert.Equal(t, hxerrors.ErrCodeSourceParse, hxerrors.GetCode(err))
}

func TestJSONRejectsScalarTopLevel(t *testing.T) {
	_, err := NewTabularChunker(token.NewEstimator()).
		Chunk(context.Background(), tabularDoc("scalar.json", source.FormatJSON, `"just a string"`))
	require.Error(t, err)
	assert.Equal(t, hxerrors.ErrCodeSourceParse, hxerrors.GetCode(err))
}

func TestJSONRejectsArrayOfScalars(t *testing.T) {
	_, err := NewTabularChunker(token.NewEstimator()).
		Chunk(context.Background(), tabularDoc("scalars.json", source.FormatJSON, `[1, 2, 3]`))
	require.Error(t, err)
	assert.Equal(t, hxerrors.ErrCodeSourceParse, hxerrors.GetCode(err))
}

func TestJSONMalformed(t *testing.T) {
	_, err := NewTabularChunker(token.NewEstimator()).
		Chunk(context.Background(), tabularDoc("bad.json", source.FormatJSON, `[{"a": }`))
	require.Error(t, err)
	assert.Equal(t, hxerrors.ErrCodeSourceParse, hxerrors.GetCode(err))
}

func TestJSONEmptyFile(t *testing.T) {
	chunks := chunkTabular(t, tabularDoc("empty.json", source.FormatJSON, "  "))
	assert.Empty(t, chunks)
}

func TestRowChunksHaveTokenCounts(t *testing.T) {
	chunks := chunkTabular(t, tabularDoc("t.csv", source.FormatCSV, "a,b\nhello,world\n"))
	require.Len(t, chunks, 1)
	assert.Greater(t, chunks[0].Tokens, 0)
}

func TestDispatcherRoutesByFormat(t *testing.T) {
	d := NewDispatcher(token.NewEstimator(), 800, 100)

	prose, err := d.Chunk(context.Background(), proseDoc("p.txt", "Some prose."))
	require.NoError(t, err)
	require.Len(t, prose, 1)
	assert.Equal(t, KindProse, prose[0].Kind)

	rows, err := d.Chunk(context.Background(), tabularDoc("r.csv", source.FormatCSV, "a\n1\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, KindRow, rows[0].Kind)

	_, err = d.Chunk(context.Background(), &source.Document{RelPath: "x.bin", Format: "binary"})
	require.Error(t, err)
	assert.Equal(t, hxerrors.ErrCodeInvalidInput, hxerrors.GetCode(err))
}

func TestExtractDocTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"simple heading", "# Itinerary\n\nBody.", "Itinerary"},
		{"heading later in doc", "Intro text.\n\n# Real Title\n\nMore.", "Real Title"},
		{"inline code in heading", "# The `hindex` Tool\n", "The hindex Tool"},
		{"emphasis in heading", "# *Fast* Travel\n", "Fast Travel"},
		{"h2 only", "## Section\n\nBody.", ""},
		{"no headings", "Just text.", ""},
		{"empty", "", ""},
		{"setext heading", "Title\n=====\n\nBody.", "Title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractDocTitle([]byte(tt.content)))
		})
	}
}
