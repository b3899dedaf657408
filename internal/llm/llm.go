// Package llm adapts chat completion providers to a single Completer contract.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rcliao/agent-context/internal/model"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("llm returned empty response")

// Request is a non-streaming completion request.
type Request struct {
	Messages    []model.Message
	Model       string
	Temperature float64
	MaxTokens   int
}

// Response is the provider reply normalized to plain text.
type Response struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Completer runs one completion.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Options selects and configures a provider.
type Options struct {
	Provider string `yaml:"provider"` // "openai" | "anthropic" | "" (disabled)
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"-"`
}

// New creates a Completer from opts. It returns nil, nil when disabled.
func New(opts Options) (Completer, error) {
	switch opts.Provider {
	case "":
		return nil, nil
	case "openai":
		key := opts.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		return NewOpenAI(key, opts.BaseURL, opts.Model), nil
	case "anthropic":
		key := opts.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		return NewAnthropic(key, opts.BaseURL, opts.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
}
