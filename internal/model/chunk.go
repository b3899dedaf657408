package model

import (
	"fmt"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Importance ranks how strongly a chunk must be preserved.
type Importance int

const (
	ImportanceNormal Importance = iota
	ImportanceHigh
	ImportancePinned
)

func (i Importance) String() string {
	switch i {
	case ImportanceHigh:
		return "high"
	case ImportancePinned:
		return "pinned"
	default:
		return "normal"
	}
}

// MarshalText lets Importance render as its name in JSON output.
func (i Importance) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// Layer names one of the four capacity-bounded context tiers.
type Layer string

const (
	LayerWorking    Layer = "working"
	LayerRecent     Layer = "recent"
	LayerHistorical Layer = "historical"
	LayerArchived   Layer = "archived"
)

// Layers lists the tiers from newest to oldest, which is also processing order.
var Layers = []Layer{LayerWorking, LayerRecent, LayerHistorical, LayerArchived}

// ToolCall is a function invocation requested by an assistant message.
type ToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// NewToolCall builds a function-type tool call.
func NewToolCall(id, name, arguments string) ToolCall {
	tc := ToolCall{ID: id, Type: "function"}
	tc.Function.Name = name
	tc.Function.Arguments = arguments
	return tc
}

// Message is one entry of the compiled prompt.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Meta carries message attributes and compression provenance for a chunk.
type Meta struct {
	Role           string     `json:"role,omitempty"`
	Name           string     `json:"name,omitempty"`
	ToolCallID     string     `json:"tool_call_id,omitempty"`
	ToolCalls      []ToolCall `json:"tool_calls,omitempty"`
	Compressed     bool       `json:"compressed,omitempty"`
	OriginalTokens int        `json:"original_tokens,omitempty"`
	Summary        bool       `json:"summary,omitempty"`
}

// Chunk is one atomic unit of context: a message or an artifact derived from one.
//
// The marker, ranker and compiler update Layer, RelevanceScore, Importance and
// ToolCallGroupID in place. Compression and summarization produce new chunks.
type Chunk struct {
	Content         string     `json:"content"`
	Source          string     `json:"source"`
	Tokens          int        `json:"tokens"`
	Priority        float64    `json:"priority"`
	CreatedAt       time.Time  `json:"created_at,omitempty"`
	MessageID       string     `json:"message_id,omitempty"`
	Embedding       []float32  `json:"-"`
	Meta            Meta       `json:"meta"`
	Layer           Layer      `json:"layer,omitempty"`
	RelevanceScore  float64    `json:"relevance_score"`
	Importance      Importance `json:"importance"`
	ToolCallGroupID string     `json:"tool_call_group_id,omitempty"`
}

// Role returns the chunk's message role.
func (c *Chunk) Role() string { return c.Meta.Role }

// IsPinned reports whether the chunk must never be evicted.
func (c *Chunk) IsPinned() bool { return c.Importance == ImportancePinned }

// Clone returns a copy that shares no slices with c.
func (c *Chunk) Clone() *Chunk {
	out := *c
	if c.Meta.ToolCalls != nil {
		out.Meta.ToolCalls = append([]ToolCall(nil), c.Meta.ToolCalls...)
	}
	if c.Embedding != nil {
		out.Embedding = append([]float32(nil), c.Embedding...)
	}
	return &out
}

// ToMessage converts the chunk into a prompt message. Chunks without a role
// are rendered as user messages.
func (c *Chunk) ToMessage() Message {
	role := c.Meta.Role
	if role == "" {
		role = RoleUser
	}
	msg := Message{
		Role:       role,
		Content:    c.Content,
		Name:       c.Meta.Name,
		ToolCallID: c.Meta.ToolCallID,
	}
	if len(c.Meta.ToolCalls) > 0 {
		msg.ToolCalls = append([]ToolCall(nil), c.Meta.ToolCalls...)
	}
	return msg
}

func (c *Chunk) String() string {
	return fmt.Sprintf("chunk(%s/%s %s %dtok %s)", c.Source, c.MessageID, c.Meta.Role, c.Tokens, c.Importance)
}

// TotalTokens sums the token cost of chunks.
func TotalTokens(chunks []*Chunk) int {
	total := 0
	for _, c := range chunks {
		total += c.Tokens
	}
	return total
}
