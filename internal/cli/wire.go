package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rcliao/agent-context/internal/compiler"
	"github.com/rcliao/agent-context/internal/compress"
	"github.com/rcliao/agent-context/internal/config"
	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/engine"
	"github.com/rcliao/agent-context/internal/llm"
	"github.com/rcliao/agent-context/internal/ranker"
	"github.com/rcliao/agent-context/internal/store"
	"github.com/rcliao/agent-context/internal/summarize"
	"github.com/rcliao/agent-context/internal/tokens"
)

// newEngine assembles an Engine over s: thread and memory sources, the
// configured LLM and embedding providers, and a summarizer cached in s.
func newEngine(c *config.Config, s *store.SQLiteStore, log *zap.Logger) (*engine.Engine, error) {
	counter := tokens.NewEstimator()

	completer, err := llm.New(c.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	embedder, err := embedding.New(c.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}

	summarizer := summarize.New(c.Summarizer,
		summarize.WithCompleter(completer),
		summarize.WithCache(s.Cache()),
		summarize.WithCounter(counter),
		summarize.WithLogger(log.Named("summarize")))

	cmp, err := compiler.New(c.Layers,
		compiler.WithCompressor(compress.New(c.Compressor, counter)),
		compiler.WithSummarizer(summarizer),
		compiler.WithRanker(ranker.New(c.Ranker)),
		compiler.WithCounter(counter),
		compiler.WithLogger(log.Named("compiler")))
	if err != nil {
		return nil, err
	}

	b, err := c.NewBudget()
	if err != nil {
		return nil, fmt.Errorf("budget: %w", err)
	}

	opts := []engine.Option{
		engine.WithSources(engine.NewMemorySource(s, counter)),
		engine.WithCounter(counter),
		engine.WithLogger(log.Named("engine")),
	}
	if embedder != nil {
		opts = append(opts, engine.WithEmbedder(embedder))
	}
	return engine.New(s, cmp, b, opts...)
}
