package summarize

import (
	"sort"

	"github.com/google/uuid"
)

// Session holds the state of one compile: the LLM call allowance, message
// ids the LLM flagged as important, and the facts extracted so far.
// A Session must not be shared between compiles.
type Session struct {
	ID        string
	maxCalls  int
	calls     int
	important map[string]bool
	facts     *FactStore
}

func newSession(maxCalls, maxFacts int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		maxCalls:  maxCalls,
		important: make(map[string]bool),
		facts:     NewFactStore(maxFacts),
	}
}

// LLMCalls is how many successful LLM summarizations ran in this session.
func (s *Session) LLMCalls() int { return s.calls }

func (s *Session) canCall() bool { return s.calls < s.maxCalls }

func (s *Session) Facts() *FactStore { return s.facts }

func (s *Session) markImportant(id string) {
	if id != "" {
		s.important[id] = true
	}
}

// ImportantIDs returns the flagged message ids in sorted order.
func (s *Session) ImportantIDs() []string {
	ids := make([]string, 0, len(s.important))
	for id := range s.important {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
