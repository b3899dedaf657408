package summarize

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMaxFacts bounds a FactStore.
const DefaultMaxFacts = 50

// Fact is a durable statement pulled out of summarized history.
type Fact struct {
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"`
	SourceTime time.Time `json:"source_time,omitempty"`
}

type factEntry struct {
	Fact
	seq int
}

// FactStore deduplicates facts case-insensitively and keeps at most max of
// them, evicting the least confident first.
type FactStore struct {
	mu    sync.Mutex
	max   int
	seq   int
	facts map[string]*factEntry
}

func NewFactStore(max int) *FactStore {
	if max <= 0 {
		max = DefaultMaxFacts
	}
	return &FactStore{max: max, facts: make(map[string]*factEntry)}
}

func factKey(content string) string {
	return strings.ToLower(strings.Join(strings.Fields(content), " "))
}

// Add inserts f, or raises the confidence of an existing equal fact.
func (s *FactStore) Add(f Fact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(f)
}

// Merge adds every fact in facts.
func (s *FactStore) Merge(facts []Fact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range facts {
		s.add(f)
	}
}

func (s *FactStore) add(f Fact) {
	f.Content = strings.TrimSpace(f.Content)
	key := factKey(f.Content)
	if key == "" {
		return
	}
	if e, ok := s.facts[key]; ok {
		e.Confidence = max(e.Confidence, f.Confidence)
		if e.SourceTime.IsZero() {
			e.SourceTime = f.SourceTime
		}
		return
	}
	s.seq++
	s.facts[key] = &factEntry{Fact: f, seq: s.seq}
	for len(s.facts) > s.max {
		s.evictLowest()
	}
}

// evictLowest drops the least confident fact. On ties the newest insert goes,
// so facts already held are stable under repeated merges.
func (s *FactStore) evictLowest() {
	var victim string
	var low *factEntry
	for k, e := range s.facts {
		if low == nil || e.Confidence < low.Confidence || (e.Confidence == low.Confidence && e.seq > low.seq) {
			victim, low = k, e
		}
	}
	delete(s.facts, victim)
}

func (s *FactStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.facts)
}

// All returns facts ordered by confidence, highest first.
func (s *FactStore) All() []Fact {
	s.mu.Lock()
	entries := make([]*factEntry, 0, len(s.facts))
	for _, e := range s.facts {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Confidence != entries[j].Confidence {
			return entries[i].Confidence > entries[j].Confidence
		}
		return entries[i].seq < entries[j].seq
	})
	out := make([]Fact, len(entries))
	for i, e := range entries {
		out[i] = e.Fact
	}
	return out
}

// Render formats the facts as a bullet list, most confident first.
func (s *FactStore) Render() string {
	facts := s.All()
	lines := make([]string, len(facts))
	for i, f := range facts {
		lines[i] = "- " + f.Content
	}
	return strings.Join(lines, "\n")
}
