// Package ranker scores chunks by recency, semantic similarity and priority,
// and picks the best subset that fits a token budget.
package ranker

import (
	"math"
	"sort"
	"time"

	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/model"
)

// importanceBoost is added to the priority term of high and pinned chunks.
const importanceBoost = 0.3

// Weights balance the three score terms.
type Weights struct {
	Recency  float64 `yaml:"recency"`
	Semantic float64 `yaml:"semantic"`
	Priority float64 `yaml:"priority"`
}

// Config tunes scoring.
type Config struct {
	Weights            Weights `yaml:"weights"`
	StabilityHours     float64 `yaml:"stability_hours"`
	DecayExponent      float64 `yaml:"decay_exponent"`
	RelevanceThreshold float64 `yaml:"relevance_threshold"`
}

// DefaultConfig returns the standard weights and a 24h power-law decay.
func DefaultConfig() Config {
	return Config{
		Weights:        Weights{Recency: 0.25, Semantic: 0.45, Priority: 0.30},
		StabilityHours: 24,
		DecayExponent:  0.5,
	}
}

// Ranker is immutable; WithQuery and WithThreshold return modified copies so
// one Ranker can serve concurrent compiles.
type Ranker struct {
	cfg   Config
	query embedding.Vector
	now   func() time.Time
}

func New(cfg Config) *Ranker {
	if cfg.StabilityHours <= 0 {
		cfg.StabilityHours = 24
	}
	if cfg.DecayExponent <= 0 {
		cfg.DecayExponent = 0.5
	}
	return &Ranker{cfg: cfg, now: time.Now}
}

// WithQuery returns a ranker that scores similarity against query.
func (r *Ranker) WithQuery(query embedding.Vector) *Ranker {
	cp := *r
	cp.query = query
	return &cp
}

// WithThreshold returns a ranker that drops non-pinned chunks scoring below t.
func (r *Ranker) WithThreshold(t float64) *Ranker {
	cp := *r
	cp.cfg.RelevanceThreshold = t
	return &cp
}

// WithStabilityHours returns a ranker whose recency decays over h hours.
func (r *Ranker) WithStabilityHours(h float64) *Ranker {
	cp := *r
	if h > 0 {
		cp.cfg.StabilityHours = h
	}
	return &cp
}

// WithClock overrides the time source used for recency.
func (r *Ranker) WithClock(now func() time.Time) *Ranker {
	cp := *r
	cp.now = now
	return &cp
}

func (r *Ranker) Config() Config { return r.cfg }

// Score returns the relevance of c in [0, 1]. Pinned chunks always score 1.
func (r *Ranker) Score(c *model.Chunk) float64 {
	if c.IsPinned() {
		return 1.0
	}
	w := r.cfg.Weights
	return w.Recency*r.recency(c) + w.Semantic*r.similarity(c) + w.Priority*priority(c)
}

// recency decays as (1 + age/stability)^-exponent. Chunks without a
// timestamp get a neutral 0.5.
func (r *Ranker) recency(c *model.Chunk) float64 {
	if c.CreatedAt.IsZero() {
		return 0.5
	}
	ageHours := max(0, r.now().Sub(c.CreatedAt).Hours())
	return math.Pow(1+ageHours/r.cfg.StabilityHours, -r.cfg.DecayExponent)
}

func (r *Ranker) similarity(c *model.Chunk) float64 {
	if len(r.query) == 0 || len(c.Embedding) == 0 {
		return 0.5
	}
	return (embedding.CosineSimilarity(c.Embedding, r.query) + 1) / 2
}

func priority(c *model.Chunk) float64 {
	p := c.Priority
	if c.Importance >= model.ImportanceHigh {
		p = min(1.0, p+importanceBoost)
	}
	return p
}

// ScoreAll sets RelevanceScore on every chunk.
func (r *Ranker) ScoreAll(chunks []*model.Chunk) {
	for _, c := range chunks {
		c.RelevanceScore = r.Score(c)
	}
}

// SelectOptimal keeps every pinned chunk and fills the rest of budget greedily
// by score per token. The result is in chronological order. It only exceeds
// budget when the pinned chunks alone do.
func (r *Ranker) SelectOptimal(chunks []*model.Chunk, budget int) []*model.Chunk {
	var pinned, rest []*model.Chunk
	used := 0
	for _, c := range chunks {
		c.RelevanceScore = r.Score(c)
		if c.IsPinned() {
			pinned = append(pinned, c)
			used += c.Tokens
			continue
		}
		rest = append(rest, c)
	}

	remaining := budget - used
	if remaining <= 0 {
		return chronological(pinned)
	}

	candidates := rest[:0:0]
	for _, c := range rest {
		if c.Tokens > remaining {
			continue
		}
		if c.RelevanceScore < r.cfg.RelevanceThreshold {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ei, ej := efficiency(candidates[i]), efficiency(candidates[j])
		if ei != ej {
			return ei > ej
		}
		return candidates[i].RelevanceScore > candidates[j].RelevanceScore
	})

	selected := pinned
	total := 0
	for _, c := range candidates {
		if total+c.Tokens > remaining {
			continue
		}
		selected = append(selected, c)
		total += c.Tokens
	}
	return chronological(selected)
}

func efficiency(c *model.Chunk) float64 {
	return c.RelevanceScore / float64(max(1, c.Tokens))
}

// chronological sorts by CreatedAt; chunks without a timestamp sort first.
func chronological(chunks []*model.Chunk) []*model.Chunk {
	out := append([]*model.Chunk(nil), chunks...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
