// Package layer implements the four capacity-bounded context tiers.
package layer

import (
	"errors"
	"fmt"

	"github.com/rcliao/agent-context/internal/model"
)

// Compression is how aggressively a layer shrinks what it admits.
type Compression string

const (
	CompressionNone    Compression = "none"
	CompressionLight   Compression = "light"
	CompressionHeavy   Compression = "heavy"
	CompressionExtreme Compression = "extreme"
)

// ErrNegativeTokens is returned for a layer with a negative token cap.
var ErrNegativeTokens = errors.New("layer token cap must not be negative")

// Config caps one layer. Messages of 0 means no message cap.
type Config struct {
	Messages    int         `yaml:"messages" json:"messages"`
	Tokens      int         `yaml:"tokens" json:"tokens"`
	Compression Compression `yaml:"compression" json:"compression"`
}

func (c Config) Validate() error {
	if c.Tokens < 0 {
		return fmt.Errorf("tokens %d: %w", c.Tokens, ErrNegativeTokens)
	}
	if c.Messages < 0 {
		return fmt.Errorf("messages %d: must not be negative", c.Messages)
	}
	switch c.Compression {
	case "", CompressionNone, CompressionLight, CompressionHeavy, CompressionExtreme:
		return nil
	default:
		return fmt.Errorf("unknown compression %q", c.Compression)
	}
}

// LayersConfig holds one Config per tier.
type LayersConfig struct {
	Working    Config `yaml:"working" json:"working"`
	Recent     Config `yaml:"recent" json:"recent"`
	Historical Config `yaml:"historical" json:"historical"`
	Archived   Config `yaml:"archived" json:"archived"`
}

func DefaultLayersConfig() LayersConfig {
	return LayersConfig{
		Working:    Config{Messages: 15, Tokens: 60000, Compression: CompressionNone},
		Recent:     Config{Messages: 40, Tokens: 50000, Compression: CompressionLight},
		Historical: Config{Messages: 150, Tokens: 30000, Compression: CompressionHeavy},
		Archived:   Config{Tokens: 10000, Compression: CompressionExtreme},
	}
}

func (lc LayersConfig) Validate() error {
	for _, l := range model.Layers {
		if err := lc.For(l).Validate(); err != nil {
			return fmt.Errorf("layer %s: %w", l, err)
		}
	}
	return nil
}

// For returns the config of tier l.
func (lc LayersConfig) For(l model.Layer) Config {
	switch l {
	case model.LayerWorking:
		return lc.Working
	case model.LayerRecent:
		return lc.Recent
	case model.LayerHistorical:
		return lc.Historical
	default:
		return lc.Archived
	}
}

// Set replaces the config of tier l.
func (lc *LayersConfig) Set(l model.Layer, c Config) {
	switch l {
	case model.LayerWorking:
		lc.Working = c
	case model.LayerRecent:
		lc.Recent = c
	case model.LayerHistorical:
		lc.Historical = c
	default:
		lc.Archived = c
	}
}

// Budgets returns each tier's token cap.
func (lc LayersConfig) Budgets() map[model.Layer]int {
	out := make(map[model.Layer]int, len(model.Layers))
	for _, l := range model.Layers {
		out[l] = lc.For(l).Tokens
	}
	return out
}
