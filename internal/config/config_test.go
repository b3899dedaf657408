package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-context/internal/budget"
	"github.com/rcliao/agent-context/internal/layer"
	"github.com/rcliao/agent-context/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent-context.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, layer.DefaultLayersConfig(), cfg.Layers)
	assert.True(t, cfg.Rules.SemanticRanking)
	assert.Equal(t, 5, cfg.Summarizer.MaxCallsPerCompile)
}

func TestLoadFile_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
budget:
  total_tokens: 32000
layers:
  working:
    messages: 5
    tokens: 8000
summarizer:
  cache_ttl: 2h
rules:
  include_memory: false
llm:
  provider: anthropic
  model: claude-haiku
store:
  path: /tmp/ctx.db
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 32000, cfg.Budget.TotalTokens)
	assert.Equal(t, 0.1, cfg.Budget.ReserveRatio)
	assert.Equal(t, 5, cfg.Layers.Working.Messages)
	assert.Equal(t, 8000, cfg.Layers.Working.Tokens)
	assert.Equal(t, layer.CompressionNone, cfg.Layers.Working.Compression)
	assert.Equal(t, 50000, cfg.Layers.Recent.Tokens)
	assert.Equal(t, 2*time.Hour, cfg.Summarizer.CacheTTL)
	assert.False(t, cfg.Rules.IncludeMemory)
	assert.True(t, cfg.Rules.Dedup)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "/tmp/ctx.db", cfg.Store.Path)
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	t.Setenv("AGENT_CONTEXT_DB", "/var/lib/ctx.db")
	t.Setenv("AGENT_CONTEXT_LLM_PROVIDER", "openai")
	t.Setenv("AGENT_CONTEXT_EMBED_PROVIDER", "openai")
	t.Setenv("AGENT_CONTEXT_EMBED_MODEL", "text-embedding-3-small")
	t.Setenv("AGENT_CONTEXT_LOG_LEVEL", "debug")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "ant-test")

	cfg, err := LoadFile(writeConfig(t, "llm:\n  provider: anthropic\n  api_key: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ctx.db", cfg.Store.Path)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_WithoutFile(t *testing.T) {
	t.Setenv("AGENT_CONTEXT_CONFIG", "")
	t.Setenv("AGENT_CONTEXT_DB", "/data/ctx.db")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/data/ctx.db", cfg.Store.Path)

	t.Setenv("AGENT_CONTEXT_CONFIG", writeConfig(t, "budget:\n  total_tokens: 9000\n"))
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Budget.TotalTokens)
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative layer tokens", "layers:\n  recent:\n    tokens: -1\n"},
		{"reserve ratio", "budget:\n  reserve_ratio: 1.5\n"},
		{"llm provider", "llm:\n  provider: bard\n"},
		{"embedding provider", "embedding:\n  provider: word2vec\n"},
		{"negative weight", "ranker:\n  weights:\n    semantic: -0.2\n"},
		{"bad yaml", "budget: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Budget.ReserveRatio = -0.1
	cfg.Layers.Set(model.LayerArchived, layer.Config{Tokens: -5})
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, budget.ErrInvalidReserve)
	assert.ErrorIs(t, err, layer.ErrNegativeTokens)
}

func TestNewBudget(t *testing.T) {
	cfg := Default()
	cfg.Budget.TotalTokens = 1000
	cfg.Budget.ReserveRatio = 0.2
	b, err := cfg.NewBudget()
	require.NoError(t, err)
	assert.Equal(t, 800, b.AvailableBudget())
}
