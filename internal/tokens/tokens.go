// Package tokens defines the token counting contract used by the context engine.
package tokens

import (
	"unicode/utf8"

	"github.com/rcliao/agent-context/internal/model"
)

// Counter counts tokens for a given model.
type Counter interface {
	CountTokens(text, model string) int
	CountMessageTokens(msgs []model.Message) int
}

// DefaultCharsPerToken is the rough chars/token ratio for English text on
// modern BPE tokenizers.
const DefaultCharsPerToken = 4

// MessageOverhead is the per-message cost of role and framing tokens.
const MessageOverhead = 4

// Estimator approximates token counts from rune length. It is the fallback
// when no tokenizer-backed Counter is configured.
type Estimator struct {
	CharsPerToken int
}

// NewEstimator returns an Estimator with the default ratio.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: DefaultCharsPerToken}
}

// CountTokens rounds up so that any non-empty text costs at least one token.
func (e *Estimator) CountTokens(text, _ string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	per := e.CharsPerToken
	if per <= 0 {
		per = DefaultCharsPerToken
	}
	return (n + per - 1) / per
}

func (e *Estimator) CountMessageTokens(msgs []model.Message) int {
	total := 0
	for _, m := range msgs {
		total += MessageOverhead + e.CountTokens(m.Content, "")
		for _, tc := range m.ToolCalls {
			total += e.CountTokens(tc.Function.Name, "") + e.CountTokens(tc.Function.Arguments, "")
		}
	}
	return total
}
