// Package embedding provides a pluggable interface for text embedding providers.
package embedding

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
	Dims() int
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Options selects and configures a provider.
type Options struct {
	Provider string `yaml:"provider"` // "ollama" | "openai" | "" (disabled)
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"-"`
	Dims     int    `yaml:"dims"`
}

// New creates an embedder from opts. It returns nil, nil when embeddings are disabled.
func New(opts Options) (Embedder, error) {
	switch opts.Provider {
	case "":
		return nil, nil
	case "ollama":
		model := opts.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaEmbedder(opts.BaseURL, model), nil
	case "openai":
		return NewOpenAIEmbedder(opts.BaseURL, opts.APIKey, opts.Model, opts.Dims), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}
}

// NewFromEnv creates an embedder from environment variables.
// AGENT_CONTEXT_EMBED_PROVIDER: "ollama" | "openai" | "" (disabled)
// AGENT_CONTEXT_EMBED_MODEL: model name
// AGENT_CONTEXT_EMBED_URL: base URL override
// AGENT_CONTEXT_EMBED_DIMS: vector size override
// OPENAI_API_KEY: for openai provider
func NewFromEnv() (Embedder, error) {
	opts := Options{
		Provider: os.Getenv("AGENT_CONTEXT_EMBED_PROVIDER"),
		Model:    os.Getenv("AGENT_CONTEXT_EMBED_MODEL"),
		BaseURL:  os.Getenv("AGENT_CONTEXT_EMBED_URL"),
		APIKey:   os.Getenv("OPENAI_API_KEY"),
	}
	if v := os.Getenv("AGENT_CONTEXT_EMBED_DIMS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse AGENT_CONTEXT_EMBED_DIMS: %w", err)
		}
		opts.Dims = n
	}
	return New(opts)
}
