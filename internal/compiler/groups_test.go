package compiler

import (
	"maps"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-context/internal/model"
)

// IsComplete must hold exactly when the answered call ids equal the requested
// ones, whatever the arrival order or repetition.
func TestToolCallGroup_IsCompleteMatchesIDSets(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 23))
	pool := []string{"c0", "c1", "c2", "c3", "c4", "c5"}

	for iter := 0; iter < 500; iter++ {
		perm := rng.Perm(len(pool))
		expected := make(map[string]bool)
		var calls []string
		for _, p := range perm[:1+rng.IntN(4)] {
			expected[pool[p]] = true
			calls = append(calls, pool[p])
		}
		g := newToolCallGroup(assistantCalling(0, calls...))

		var results []string
		switch rng.IntN(3) {
		case 0: // exact set
			results = append(results, calls...)
		case 1: // random subset
			for _, id := range calls {
				if rng.IntN(2) == 0 {
					results = append(results, id)
				}
			}
		default: // superset
			results = append(results, calls...)
			results = append(results, pool[rng.IntN(len(pool))])
		}
		for n := rng.IntN(3); n > 0 && len(results) > 0; n-- {
			results = append(results, results[rng.IntN(len(results))])
		}
		rng.Shuffle(len(results), func(i, j int) { results[i], results[j] = results[j], results[i] })

		answered := make(map[string]bool)
		for i, id := range results {
			g.add(toolResult(i+1, id, "ok"))
			answered[id] = true
			want := maps.Equal(answered, expected)
			require.Equal(t, want, g.IsComplete(), "iteration %d: calls %v results %v", iter, calls, results[:i+1])
		}
		if len(results) == 0 {
			require.False(t, g.IsComplete(), "iteration %d", iter)
		}
	}
}

func TestGroupToolCalls_PlacedAtLastResult(t *testing.T) {
	chunks := []*model.Chunk{
		msg(0, model.RoleUser, "read both files"),
		assistantCalling(1, "call_a", "call_b"),
		msg(2, model.RoleUser, "hurry please"),
		toolResult(3, "call_b", "module example.com/app"),
		toolResult(4, "call_a", "package main"),
		msg(5, model.RoleUser, "thanks"),
	}
	units, complete, open := groupToolCalls(chunks)

	assert.Zero(t, open)
	require.Len(t, units, 4)
	assert.Equal(t, []string{"m0", "m2", "m1", "m3", "m4", "m5"}, unitIDs(units))
	require.NotNil(t, units[2].group)
	assert.Equal(t, map[string]int{units[2].group.ID: 3}, complete)
}

func TestGroupToolCalls_OpenGroupsTrailInAssistantOrder(t *testing.T) {
	chunks := []*model.Chunk{
		assistantCalling(0, "call_a", "call_b"),
		assistantCalling(1, "call_c"),
		toolResult(2, "call_a", "package main"),
		msg(3, model.RoleUser, "what is taking so long?"),
		toolResult(4, "call_x", "no such call"),
	}
	units, complete, open := groupToolCalls(chunks)

	assert.Equal(t, 2, open)
	assert.Empty(t, complete)
	assert.Equal(t, []string{"m3", "m4", "m0", "m2", "m1"}, unitIDs(units))
	assert.Empty(t, chunks[4].ToolCallGroupID)
}

func unitIDs(units []unit) []string {
	var out []string
	for _, u := range units {
		for _, c := range u.chunks() {
			out = append(out, c.MessageID)
		}
	}
	return out
}
