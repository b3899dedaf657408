package budget

import "maps"

// Usage accumulates tokens consumed per source during one compile.
// It is not safe for concurrent use.
type Usage struct {
	bySource map[string]int
}

func NewUsage() *Usage {
	return &Usage{bySource: make(map[string]int)}
}

// Track adds tokens to source's running total.
func (u *Usage) Track(source string, tokens int) {
	if u.bySource == nil {
		u.bySource = make(map[string]int)
	}
	u.bySource[source] += tokens
}

func (u *Usage) Get(source string) int {
	return u.bySource[source]
}

func (u *Usage) Total() int {
	total := 0
	for _, v := range u.bySource {
		total += v
	}
	return total
}

func (u *Usage) Reset() {
	clear(u.bySource)
}

// Snapshot returns a copy of the per-source totals.
func (u *Usage) Snapshot() map[string]int {
	out := make(map[string]int, len(u.bySource))
	maps.Copy(out, u.bySource)
	return out
}
