package chunker

import (
	"math"
	"strings"
	"sync"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter returns the number of model tokens in s.
type TokenCounter interface {
	Count(s string) int
}

type TokenCounterFunc func(s string) int

func (f TokenCounterFunc) Count(s string) int { return f(s) }

type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

var (
	defaultCounter TokenCounter
	counterOnce    sync.Once
)

// DefaultCounter returns a cl100k_base counter, or the word approximation
// when the BPE ranks cannot be loaded (they are fetched on first use).
func DefaultCounter() TokenCounter {
	counterOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(config.TokenEncoding)
		if err != nil {
			logger_i.NewLogger("Chunker").Warn("tiktoken unavailable, approximating token counts", "error", err)
			defaultCounter = ApproxCounter{}
			return
		}
		defaultCounter = &TiktokenCounter{enc: enc}
	})
	return defaultCounter
}

func (t *TiktokenCounter) Count(s string) int {
	if s == "" {
		return 0
	}
	return len(t.enc.Encode(s, nil, nil))
}

// ApproxCounter estimates tokens as 4/3 per whitespace separated word.
type ApproxCounter struct{}

func (ApproxCounter) Count(s string) int {
	words := len(strings.Fields(s))
	return int(math.Ceil(float64(words) * 4 / 3))
}

// WordCounter counts whitespace separated words, handy in tests.
type WordCounter struct{}

func (WordCounter) Count(s string) int {
	return len(strings.Fields(s))
}
