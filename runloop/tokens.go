package runloop

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// charsPerToken is the fallback calibration when no tokenizer encoding is
// available (~4 characters per token for current models).
const charsPerToken = 4

// TokenCounter counts model tokens in text. It uses the cl100k_base encoding
// when the BPE tables can be loaded and falls back to a character heuristic
// otherwise, so counting never fails.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter returns a TokenCounter. The tokenizer encoding is loaded
// lazily on first use.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// Count returns the token count for s. Counts are estimates: the encoding may
// differ from the serving model's tokenizer, and the heuristic path divides
// the rune count by four.
func (tc *TokenCounter) Count(s string) int {
	if s == "" {
		return 0
	}
	if tc == nil {
		return heuristicCount(s)
	}
	tc.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tc.enc = enc
		}
	})
	if tc.enc == nil {
		return heuristicCount(s)
	}
	return len(tc.enc.Encode(s, nil, nil))
}

func heuristicCount(s string) int {
	n := utf8.RuneCountInString(s) / charsPerToken
	if n < 1 {
		n = 1
	}
	return n
}
