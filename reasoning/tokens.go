package reasoning

import (
	"math"
	"unicode/utf8"
)

// DefaultCharsPerToken approximates common LLM tokenizers on English text.
const DefaultCharsPerToken = 4.0

// TokenCounter estimates token counts from rendered text length. The estimate
// is deterministic and monotonic in the rune count; it is not exact for any
// particular tokenizer.
type TokenCounter struct {
	charsPerToken float64
}

// NewTokenCounter returns a counter. Non-positive ratios fall back to
// DefaultCharsPerToken.
func NewTokenCounter(charsPerToken float64) *TokenCounter {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return &TokenCounter{charsPerToken: charsPerToken}
}

// Count estimates tokens in s, rounding up so any non-empty text costs at least
// one token.
func (tc *TokenCounter) Count(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(s)) / tc.charsPerToken))
}
