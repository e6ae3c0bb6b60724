// Package tokens estimates the token cost of text placed in a context package.
//
// The default Heuristic counter uses the chars/4 approximation, which needs no
// model files and is deterministic. Tiktoken uses a real BPE vocabulary when
// configured; loading it may download the encoding on first use.
package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens in a string.
type Counter interface {
	Count(text string) int
}

// Estimate approximates the token count as ceil(len/4).
func Estimate(text string) int {
	return (len(text) + 3) / 4
}

// Heuristic is the chars/4 Counter.
type Heuristic struct{}

// Count implements Counter.
func (Heuristic) Count(text string) int { return Estimate(text) }

// Tiktoken counts with a tiktoken encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the encoding for model, falling back to cl100k_base
// for models tiktoken does not know.
func NewTiktoken(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("tokens: load encoding: %w", err)
		}
	}
	return &Tiktoken{enc: enc}, nil
}

// Count implements Counter.
func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// New returns the counter named by kind ("heuristic" or "tiktoken").
// Unknown kinds, and a tiktoken encoding that cannot be loaded, yield
// Heuristic together with the reason.
func New(kind string) (Counter, error) {
	switch kind {
	case "", "heuristic":
		return Heuristic{}, nil
	case "tiktoken":
		tk, err := NewTiktoken("gpt-4")
		if err != nil {
			return Heuristic{}, err
		}
		return tk, nil
	default:
		return Heuristic{}, fmt.Errorf("tokens: unknown tokenizer %q", kind)
	}
}
