// Package token provides token counting for chunk budgeting.
//
// Chunk budgets and overlap are defined in tokens, but shipping a BPE
// vocabulary just to draw chunk boundaries is not worth the weight. The
// default Estimator approximates modern embedding tokenizers closely enough
// for budgeting; exact counts stay the server side's concern. Anything that
// implements Counter can be swapped in.
package token

import (
	"unicode"
	"unicode/utf8"
)

// Counter counts tokens in a text.
// Implementations must be deterministic: identical text yields identical
// counts across runs, or chunk boundaries would drift between re-indexes.
type Counter interface {
	Count(text string) int
}

// charsPerToken is the rough ratio for English prose in BPE vocabularies.
const charsPerToken = 4

// Estimator approximates token counts from word shapes.
// Each punctuation rune counts as one token, each word as ceil(len/4).
type Estimator struct{}

// NewEstimator returns the default token estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

var _ Counter = (*Estimator)(nil)

// Count returns the estimated token count for text.
// The estimate is additive across whitespace-joined pieces: joining two
// texts with a space yields the sum of their counts. The window algorithm
// in the chunker relies on that.
func (e *Estimator) Count(text string) int {
	total := 0
	wordLen := 0

	flush := func() {
		if wordLen > 0 {
			total += (wordLen + charsPerToken - 1) / charsPerToken
			wordLen = 0
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			wordLen++
		default:
			// Punctuation and symbols tokenize on their own.
			flush()
			total++
		}
	}
	flush()

	return total
}

// Valid reports whether text is well-formed UTF-8. Counting garbage is
// meaningless; callers skip such content with a tokenization warning.
func Valid(text string) bool {
	return utf8.ValidString(text)
}
