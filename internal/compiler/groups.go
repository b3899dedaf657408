package compiler

import (
	"github.com/google/uuid"

	"github.com/rcliao/agent-context/internal/model"
)

// ToolCallGroup is an assistant message with tool calls plus the tool
// results answering them. It is kept or dropped as a whole.
type ToolCallGroup struct {
	ID        string
	Assistant *model.Chunk
	Tools     []*model.Chunk
	expected  map[string]bool
	answered  map[string]bool
}

func newToolCallGroup(assistant *model.Chunk) *ToolCallGroup {
	g := &ToolCallGroup{
		ID:        uuid.NewString(),
		Assistant: assistant,
		expected:  make(map[string]bool, len(assistant.Meta.ToolCalls)),
		answered:  make(map[string]bool, len(assistant.Meta.ToolCalls)),
	}
	for _, tc := range assistant.Meta.ToolCalls {
		g.expected[tc.ID] = true
	}
	assistant.ToolCallGroupID = g.ID
	return g
}

func (g *ToolCallGroup) add(tool *model.Chunk) {
	tool.ToolCallGroupID = g.ID
	g.Tools = append(g.Tools, tool)
	g.answered[tool.Meta.ToolCallID] = true
}

// IsComplete reports whether every tool call has exactly its results and no others.
func (g *ToolCallGroup) IsComplete() bool {
	if len(g.expected) != len(g.answered) {
		return false
	}
	for id := range g.expected {
		if !g.answered[id] {
			return false
		}
	}
	return true
}

// Chunks returns the assistant chunk followed by its tool results.
func (g *ToolCallGroup) Chunks() []*model.Chunk {
	out := make([]*model.Chunk, 0, 1+len(g.Tools))
	out = append(out, g.Assistant)
	return append(out, g.Tools...)
}

// unit is the smallest thing window assignment may place: a single chunk or
// a whole tool-call group.
type unit struct {
	chunk *model.Chunk
	group *ToolCallGroup
}

func (u unit) chunks() []*model.Chunk {
	if u.group != nil {
		return u.group.Chunks()
	}
	return []*model.Chunk{u.chunk}
}

func (u unit) pinned() bool {
	for _, c := range u.chunks() {
		if c.IsPinned() {
			return true
		}
	}
	return false
}

// groupToolCalls folds tool results into the group of the assistant message
// that requested them. A group is placed where it becomes complete, at its
// last tool result; groups still open at the end of the scan follow
// everything else, in assistant order, and are counted in open. complete maps
// the id of every complete group to its size. Tool results with no matching
// open call stay standalone.
func groupToolCalls(chunks []*model.Chunk) (units []unit, complete map[string]int, open int) {
	var pending []*ToolCallGroup              // assistant order
	byCall := make(map[string]*ToolCallGroup) // tool_call id -> open group
	complete = make(map[string]int)

	for _, c := range chunks {
		if c.Meta.Role == model.RoleAssistant && len(c.Meta.ToolCalls) > 0 {
			g := newToolCallGroup(c)
			pending = append(pending, g)
			for id := range g.expected {
				byCall[id] = g
			}
			continue
		}
		if id := c.Meta.ToolCallID; id != "" {
			if g, ok := byCall[id]; ok && !g.answered[id] {
				g.add(c)
				delete(byCall, id)
				if g.IsComplete() {
					complete[g.ID] = 1 + len(g.Tools)
					units = append(units, unit{group: g})
				}
				continue
			}
		}
		units = append(units, unit{chunk: c})
	}

	for _, g := range pending {
		if _, done := complete[g.ID]; done {
			continue
		}
		units = append(units, unit{group: g})
		open++
	}
	return units, complete, open
}
