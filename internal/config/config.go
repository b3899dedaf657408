// Package config loads agent-context settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/agent-context/internal/budget"
	"github.com/rcliao/agent-context/internal/compiler"
	"github.com/rcliao/agent-context/internal/compress"
	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/layer"
	"github.com/rcliao/agent-context/internal/llm"
	"github.com/rcliao/agent-context/internal/ranker"
	"github.com/rcliao/agent-context/internal/summarize"
)

// Config is the full engine configuration. Zero sections in a file keep
// their defaults.
type Config struct {
	Budget     BudgetConfig       `yaml:"budget"`
	Layers     layer.LayersConfig `yaml:"layers"`
	Ranker     ranker.Config      `yaml:"ranker"`
	Compressor compress.Config    `yaml:"compressor"`
	Summarizer summarize.Config   `yaml:"summarizer"`
	Rules      compiler.Rules     `yaml:"rules"`
	LLM        llm.Options        `yaml:"llm"`
	Embedding  embedding.Options  `yaml:"embedding"`
	Store      StoreConfig        `yaml:"store"`
	Log        LogConfig          `yaml:"log"`
}

type BudgetConfig struct {
	// TotalTokens is the model's context window.
	TotalTokens int `yaml:"total_tokens"`

	// ReserveRatio is held back for the response. Must be in [0, 1).
	ReserveRatio float64 `yaml:"reserve_ratio"`

	MinSourceTokens int `yaml:"min_source_tokens"`
}

type StoreConfig struct {
	// Path of the SQLite database.
	// Default: ~/.agent-context/context.db
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Budget: BudgetConfig{
			TotalTokens:     128000,
			ReserveRatio:    0.1,
			MinSourceTokens: budget.DefaultMinSourceTokens,
		},
		Layers:     layer.DefaultLayersConfig(),
		Ranker:     ranker.DefaultConfig(),
		Compressor: compress.DefaultConfig(),
		Summarizer: summarize.DefaultConfig(),
		Rules:      compiler.DefaultRules(),
		Store:      StoreConfig{Path: filepath.Join(home, ".agent-context", "context.db")},
		Log:        LogConfig{Level: "info"},
	}
}

// Load reads the file named by path, or by $AGENT_CONTEXT_CONFIG when path is
// empty. With neither it returns the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("AGENT_CONTEXT_CONFIG")
	}
	if path == "" {
		cfg := Default()
		cfg.applyEnv()
		return cfg, cfg.Validate()
	}
	return LoadFile(path)
}

// LoadFile overlays the YAML file at path on the defaults, then applies
// environment overrides and validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Store.Path, "AGENT_CONTEXT_DB")
	set(&c.LLM.Provider, "AGENT_CONTEXT_LLM_PROVIDER")
	set(&c.LLM.Model, "AGENT_CONTEXT_LLM_MODEL")
	set(&c.Embedding.Provider, "AGENT_CONTEXT_EMBED_PROVIDER")
	set(&c.Embedding.Model, "AGENT_CONTEXT_EMBED_MODEL")
	set(&c.Log.Level, "AGENT_CONTEXT_LOG_LEVEL")

	// API keys are never read from the file.
	switch c.LLM.Provider {
	case "openai":
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.Embedding.Provider == "openai" {
		c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Validate fails on settings the engine cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Budget.TotalTokens < 0 {
		errs = append(errs, fmt.Errorf("budget.total_tokens %d: must not be negative", c.Budget.TotalTokens))
	}
	if c.Budget.ReserveRatio < 0 || c.Budget.ReserveRatio >= 1 {
		errs = append(errs, fmt.Errorf("budget.reserve_ratio %v: %w", c.Budget.ReserveRatio, budget.ErrInvalidReserve))
	}
	if err := c.Layers.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("layers: %w", err))
	}
	w := c.Ranker.Weights
	if w.Recency < 0 || w.Semantic < 0 || w.Priority < 0 {
		errs = append(errs, errors.New("ranker.weights must not be negative"))
	}
	if c.Summarizer.MaxCallsPerCompile < 0 {
		errs = append(errs, errors.New("summarizer.max_calls_per_compile must not be negative"))
	}
	switch c.LLM.Provider {
	case "", "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q: want openai or anthropic", c.LLM.Provider))
	}
	switch c.Embedding.Provider {
	case "", "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q: want openai or ollama", c.Embedding.Provider))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	return errors.Join(errs...)
}

// NewBudget builds the TokenBudget described by the budget section.
func (c *Config) NewBudget() (*budget.TokenBudget, error) {
	return budget.New(c.Budget.TotalTokens, c.Budget.ReserveRatio,
		budget.WithMinSourceTokens(c.Budget.MinSourceTokens))
}
