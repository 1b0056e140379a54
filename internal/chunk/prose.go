package chunk

import (
	"context"
	"regexp"
	"strings"

	"github.com/reelpipe/hindex/internal/source"
	"github.com/reelpipe/hindex/internal/token"
)

// paragraphSep matches one or more blank lines, tolerating whitespace on the
// separating lines.
var paragraphSep = regexp.MustCompile(`\n\s*\n+`)

// ProseChunker windows prose into token-bounded, overlapping chunks.
// Windows never span paragraph boundaries.
type ProseChunker struct {
	counter       token.Counter
	maxTokens     int
	overlapTokens int
}

// NewProseChunker creates a prose chunker. maxTokens is the per-chunk budget;
// overlapTokens is the minimum overlap carried between consecutive windows of
// one paragraph.
func NewProseChunker(counter token.Counter, maxTokens, overlapTokens int) *ProseChunker {
	return &ProseChunker{
		counter:       counter,
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
	}
}

// Chunk splits doc into sentence windows. A whitespace-only document yields
// zero chunks and no error.
func (c *ProseChunker) Chunk(ctx context.Context, doc *source.Document) ([]*Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Invalid bytes are dropped rather than failing the file, matching how
	// the ingestion pipeline has always read its sources.
	text := strings.ToValidUTF8(string(doc.Content), "")

	var docTitle string
	if source.IsMarkdown(doc.RelPath) {
		docTitle = ExtractDocTitle(doc.Content)
	}

	var chunks []*Chunk
	ordinal := 0
	for pIdx, para := range splitParagraphs(text) {
		sentences := splitSentences(para)
		if len(sentences) == 0 {
			continue
		}

		counts := make([]int, len(sentences))
		for i, s := range sentences {
			counts[i] = c.counter.Count(s)
		}

		for _, w := range windowSentences(counts, c.maxTokens, c.overlapTokens) {
			chunks = append(chunks, &Chunk{
				ID:             ID(doc.RelPath, ordinal),
				Kind:           KindProse,
				Text:           strings.Join(sentences[w.start:w.end+1], " "),
				SourcePath:     doc.RelPath,
				SourceName:     doc.SourceName(),
				Ordinal:        ordinal,
				Tokens:         w.tokens,
				ParagraphIndex: pIdx,
				SentenceStart:  w.start,
				SentenceEnd:    w.end,
				Oversized:      w.tokens > c.maxTokens,
				DocTitle:       docTitle,
			})
			ordinal++
		}
	}
	return chunks, nil
}

// splitParagraphs splits stripped text into paragraphs on blank lines,
// dropping empty parts.
func splitParagraphs(text string) []string {
	parts := paragraphSep.Split(strings.TrimSpace(text), -1)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences collapses whitespace runs, then cuts after '.', '!', or '?'
// followed by whitespace. Punctuation stays with its sentence. Deliberately
// lightweight; abbreviations like "U.S." split, and retrieval tolerates that.
func splitSentences(paragraph string) []string {
	collapsed := strings.Join(strings.Fields(paragraph), " ")
	if collapsed == "" {
		return nil
	}

	var sentences []string
	runes := []rune(collapsed)
	begin := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && runes[i+1] == ' ' {
			sentences = append(sentences, string(runes[begin:i+1]))
			begin = i + 2 // skip the single collapsed space
			i++
		}
	}
	if begin < len(runes) {
		if tail := strings.TrimSpace(string(runes[begin:])); tail != "" {
			sentences = append(sentences, tail)
		}
	}
	return sentences
}

// window is a half-materialized chunk: an inclusive sentence range and its
// token total.
type window struct {
	start, end int
	tokens     int
}

// windowSentences accumulates sentences greedily until adding the next would
// exceed maxTokens. A first sentence over the budget is emitted alone. After
// each window the next start walks back over the minimal sentence suffix
// totalling at least overlapTokens, always advancing at least one sentence.
func windowSentences(counts []int, maxTokens, overlapTokens int) []window {
	if len(counts) == 0 {
		return nil
	}

	var windows []window
	start := 0
	for start < len(counts) {
		total := 0
		i := start
		for i < len(counts) {
			if i > start && total+counts[i] > maxTokens {
				break
			}
			total += counts[i]
			i++
		}
		windows = append(windows, window{start: start, end: i - 1, tokens: total})

		if i >= len(counts) {
			break
		}

		back := 0
		j := i - 1
		for j >= start && back < overlapTokens {
			back += counts[j]
			j--
		}
		next := j + 1
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return windows
}
