package layer

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/rcliao/agent-context/internal/compress"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/summarize"
	"github.com/rcliao/agent-context/internal/tokens"
)

// Layer admits chunks up to its message and token caps, compressing them
// according to its tier. Process discards whatever the previous call held.
type Layer interface {
	Type() model.Layer
	Config() Config
	Process(ctx context.Context, chunks []*model.Chunk, sess *summarize.Session) []*model.Chunk
	Chunks() []*model.Chunk
	TokenCount() int
	Stats() Stats
	Reset()
}

// Stats describes a layer after Process.
type Stats struct {
	Layer       model.Layer `json:"layer"`
	Chunks      int         `json:"chunks"`
	Tokens      int         `json:"tokens"`
	MaxTokens   int         `json:"max_tokens"`
	MaxMessages int         `json:"max_messages,omitempty"`
	Compressed  int         `json:"compressed"`
	Dropped     int         `json:"dropped"`
	Utilization float64     `json:"utilization"`
}

// Deps are the collaborators a layer may use. All are optional.
type Deps struct {
	Compressor *compress.Compressor
	Summarizer *summarize.Summarizer
	Counter    tokens.Counter
	Log        *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Counter == nil {
		d.Counter = tokens.NewEstimator()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return d
}

// New builds the layer for tier typ.
func New(typ model.Layer, cfg Config, deps Deps) (Layer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("layer %s: %w", typ, err)
	}
	b := base{typ: typ, cfg: cfg, deps: deps.withDefaults()}
	switch typ {
	case model.LayerWorking:
		return &workingLayer{base: b}, nil
	case model.LayerRecent:
		return &recentLayer{base: b}, nil
	case model.LayerHistorical:
		return &historicalLayer{base: b}, nil
	case model.LayerArchived:
		return &archivedLayer{base: b}, nil
	default:
		return nil, fmt.Errorf("unknown layer %q", typ)
	}
}

// NewAll builds one fresh layer per tier.
func NewAll(cfg LayersConfig, deps Deps) (map[model.Layer]Layer, error) {
	out := make(map[model.Layer]Layer, len(model.Layers))
	for _, l := range model.Layers {
		layer, err := New(l, cfg.For(l), deps)
		if err != nil {
			return nil, err
		}
		out[l] = layer
	}
	return out, nil
}

type base struct {
	typ     model.Layer
	cfg     Config
	deps    Deps
	chunks  []*model.Chunk
	tokens  int
	dropped int
}

func (b *base) Type() model.Layer { return b.typ }

func (b *base) Config() Config { return b.cfg }

func (b *base) Chunks() []*model.Chunk { return b.chunks }

func (b *base) TokenCount() int { return b.tokens }

func (b *base) Reset() {
	b.chunks = nil
	b.tokens = 0
	b.dropped = 0
}

func (b *base) Stats() Stats {
	s := Stats{
		Layer:       b.typ,
		Chunks:      len(b.chunks),
		Tokens:      b.tokens,
		MaxTokens:   b.cfg.Tokens,
		MaxMessages: b.cfg.Messages,
		Dropped:     b.dropped,
	}
	for _, c := range b.chunks {
		if c.Meta.Compressed {
			s.Compressed++
		}
	}
	if b.cfg.Tokens > 0 {
		s.Utilization = float64(b.tokens) / float64(b.cfg.Tokens)
	}
	return s
}

func (b *base) fits(c *model.Chunk) bool {
	if b.cfg.Messages > 0 && len(b.chunks) >= b.cfg.Messages {
		return false
	}
	return b.tokens+c.Tokens <= b.cfg.Tokens
}

func (b *base) add(c *model.Chunk) {
	c.Layer = b.typ
	b.chunks = append(b.chunks, c)
	b.tokens += c.Tokens
}

// admitAll offers chunks to admit, pinned first and then newest first, and
// stores what was admitted in input order. admit returns nil to reject.
func (b *base) admitAll(chunks []*model.Chunk, admit func(*model.Chunk) *model.Chunk) []*model.Chunk {
	b.Reset()
	type slot struct {
		idx   int
		chunk *model.Chunk
	}
	var kept []slot
	offer := func(i int) {
		if out := admit(chunks[i]); out != nil {
			b.add(out)
			kept = append(kept, slot{i, out})
			return
		}
		b.dropped++
	}
	for i := len(chunks) - 1; i >= 0; i-- {
		if chunks[i].IsPinned() {
			offer(i)
		}
	}
	for i := len(chunks) - 1; i >= 0; i-- {
		if !chunks[i].IsPinned() {
			offer(i)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].idx < kept[j].idx })
	b.chunks = make([]*model.Chunk, len(kept))
	for i, s := range kept {
		b.chunks[i] = s.chunk
	}
	return b.chunks
}

func (b *base) light(c *model.Chunk) *model.Chunk {
	if b.deps.Compressor == nil {
		return c
	}
	return b.deps.Compressor.Light(c)
}

func isTool(c *model.Chunk) bool {
	return c.Meta.Role == model.RoleTool || c.Meta.ToolCallID != ""
}
