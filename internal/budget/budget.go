// Package budget splits a model's context window across sources and layers.
package budget

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rcliao/agent-context/internal/model"
)

// DefaultMinSourceTokens is the floor allocated to every source.
const DefaultMinSourceTokens = 100

// ErrInvalidReserve is returned when the reserve ratio is outside [0, 1).
var ErrInvalidReserve = errors.New("reserve ratio must be in [0, 1)")

// SourceSpec identifies a source and its relative priority.
type SourceSpec struct {
	Name     string
	Priority int
}

// AllocationResult is the outcome of AllocateToSources.
type AllocationResult struct {
	SourceAllocations map[string]int      `json:"source_allocations"`
	LayerBudgets      map[model.Layer]int `json:"layer_budgets"`
	TotalAllocated    int                 `json:"total_allocated"`
	Reserve           int                 `json:"reserve"`
}

// TokenBudget holds the total window and the share reserved for the response.
// It is immutable after construction; usage is tracked per compile in Usage.
type TokenBudget struct {
	total           int
	reserveRatio    float64
	minSourceTokens int
}

// Option configures a TokenBudget.
type Option func(*TokenBudget)

// WithMinSourceTokens sets the per-source floor.
func WithMinSourceTokens(n int) Option {
	return func(b *TokenBudget) {
		if n >= 0 {
			b.minSourceTokens = n
		}
	}
}

// New creates a TokenBudget for total tokens with reserveRatio held back.
func New(total int, reserveRatio float64, opts ...Option) (*TokenBudget, error) {
	if total < 0 {
		return nil, fmt.Errorf("total budget %d: must not be negative", total)
	}
	if reserveRatio < 0 || reserveRatio >= 1 || math.IsNaN(reserveRatio) {
		return nil, fmt.Errorf("reserve ratio %v: %w", reserveRatio, ErrInvalidReserve)
	}
	b := &TokenBudget{
		total:           total,
		reserveRatio:    reserveRatio,
		minSourceTokens: DefaultMinSourceTokens,
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

func (b *TokenBudget) Total() int { return b.total }

// ReserveTokens is the share kept free for the model's response.
func (b *TokenBudget) ReserveTokens() int {
	return int(math.Round(float64(b.total) * b.reserveRatio))
}

// AvailableBudget is what sources and layers may consume.
func (b *TokenBudget) AvailableBudget() int {
	return b.total - b.ReserveTokens()
}

// AllocateToSources divides the available budget across sources by priority.
// layerRequirements, when given, is scaled down to fit the available budget
// and returned as LayerBudgets.
func (b *TokenBudget) AllocateToSources(sources []SourceSpec, layerRequirements map[model.Layer]int) AllocationResult {
	available := b.AvailableBudget()
	res := AllocationResult{
		SourceAllocations: make(map[string]int, len(sources)),
		LayerBudgets:      b.AllocateToLayers(layerRequirements),
		Reserve:           b.ReserveTokens(),
	}

	if len(sources) == 0 {
		return res
	}

	prioSum := 0
	for _, s := range sources {
		prioSum += s.Priority
	}

	sum := 0
	for _, s := range sources {
		weight := 1.0 / float64(len(sources))
		if prioSum > 0 {
			weight = float64(s.Priority) / float64(prioSum)
		}
		alloc := max(b.minSourceTokens, int(float64(available)*weight))
		res.SourceAllocations[s.Name] = alloc
		sum += alloc
	}

	if sum > available && sum > 0 {
		scale := float64(available) / float64(sum)
		sum = 0
		for name, alloc := range res.SourceAllocations {
			scaled := int(float64(alloc) * scale)
			res.SourceAllocations[name] = scaled
			sum += scaled
		}
	}
	res.TotalAllocated = sum
	return res
}

// AllocateToLayers fits requested layer budgets into the available budget.
func (b *TokenBudget) AllocateToLayers(requested map[model.Layer]int) map[model.Layer]int {
	return AllocateToLayersWithin(requested, b.AvailableBudget())
}

// AllocateToLayersWithin returns requested unchanged when it fits in available.
// Otherwise every layer is scaled proportionally and the truncation remainder is
// dealt out one token at a time, largest request first, so the result sums to
// exactly available.
func AllocateToLayersWithin(requested map[model.Layer]int, available int) map[model.Layer]int {
	out := make(map[model.Layer]int, len(requested))
	sum := 0
	for l, v := range requested {
		out[l] = v
		sum += v
	}
	if sum <= available {
		return out
	}
	if available <= 0 {
		for l := range out {
			out[l] = 0
		}
		return out
	}

	allocated := 0
	for l, v := range requested {
		scaled := int(int64(v) * int64(available) / int64(sum))
		out[l] = scaled
		allocated += scaled
	}

	order := layersBySize(requested)
	for remainder := available - allocated; remainder > 0 && len(order) > 0; {
		for _, l := range order {
			if remainder == 0 {
				break
			}
			out[l]++
			remainder--
		}
	}
	return out
}

// layersBySize orders layers with a positive request by size, largest first.
// Ties fall back to tier order, then name.
func layersBySize(requested map[model.Layer]int) []model.Layer {
	rank := make(map[model.Layer]int, len(model.Layers))
	for i, l := range model.Layers {
		rank[l] = i
	}
	tier := func(l model.Layer) int {
		if r, ok := rank[l]; ok {
			return r
		}
		return len(model.Layers)
	}

	order := make([]model.Layer, 0, len(requested))
	for l, v := range requested {
		if v > 0 {
			order = append(order, l)
		}
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if requested[a] != requested[b] {
			return requested[a] > requested[b]
		}
		if tier(a) != tier(b) {
			return tier(a) < tier(b)
		}
		return a < b
	})
	return order
}

// Rebalance moves slack from sources that used less than their allocation to
// sources that used all of theirs. Under-users shrink to their usage; each
// full user gets an equal integer share of the pooled slack.
func Rebalance(used, allocated map[string]int) map[string]int {
	out := make(map[string]int, len(allocated))
	pool := 0
	var full []string
	for name, alloc := range allocated {
		u := used[name]
		if u < alloc {
			pool += alloc - u
			out[name] = u
			continue
		}
		full = append(full, name)
	}
	share := 0
	if len(full) > 0 {
		share = pool / len(full)
	}
	for _, name := range full {
		out[name] = allocated[name] + share
	}
	return out
}

// IsOverBudget reports whether usage exceeds the total window.
func (b *TokenBudget) IsOverBudget(u *Usage) bool {
	return u.Total() > b.total
}

// Overage is how far usage exceeds the total window, or 0.
func (b *TokenBudget) Overage(u *Usage) int {
	return max(0, u.Total()-b.total)
}
