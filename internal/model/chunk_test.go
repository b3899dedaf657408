package model

import (
	"encoding/json"
	"testing"
)

func TestChunkToMessage(t *testing.T) {
	c := &Chunk{
		Content: "",
		Meta: Meta{
			Role:      RoleAssistant,
			ToolCalls: []ToolCall{NewToolCall("call_1", "read", `{"path":"a.go"}`)},
		},
	}
	msg := c.ToMessage()
	if msg.Role != RoleAssistant {
		t.Errorf("expected assistant role, got %q", msg.Role)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].ID != "call_1" {
		t.Fatalf("expected tool call to carry over, got %+v", msg.ToolCalls)
	}

	// Mutating the message must not leak back into the chunk.
	msg.ToolCalls[0].ID = "changed"
	if c.Meta.ToolCalls[0].ID != "call_1" {
		t.Error("ToMessage shares tool call slice with chunk")
	}
}

func TestChunkToMessage_DefaultRole(t *testing.T) {
	msg := (&Chunk{Content: "hi"}).ToMessage()
	if msg.Role != RoleUser {
		t.Errorf("expected default role user, got %q", msg.Role)
	}
}

func TestChunkClone(t *testing.T) {
	c := &Chunk{Content: "x", Embedding: []float32{1, 2}, Meta: Meta{ToolCalls: []ToolCall{{ID: "a"}}}}
	d := c.Clone()
	d.Embedding[0] = 9
	d.Meta.ToolCalls[0].ID = "b"
	if c.Embedding[0] != 1 || c.Meta.ToolCalls[0].ID != "a" {
		t.Error("clone shares state with original")
	}
}

func TestStoredMessageDecode(t *testing.T) {
	good := StoredMessage{ID: "m1", Payload: `{"role":"user","content":"hello"}`}
	msg, err := good.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Content != "hello" {
		t.Errorf("expected hello, got %q", msg.Content)
	}

	bad := StoredMessage{ID: "m2", Payload: `{"role":`}
	if _, err := bad.Decode(); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestImportanceJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		I Importance `json:"i"`
	}{ImportancePinned})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"i":"pinned"}` {
		t.Errorf("unexpected encoding %s", b)
	}
}

func TestPriorityWeight(t *testing.T) {
	tests := map[string]float64{"critical": 1, "high": 0.75, "normal": 0.5, "low": 0.25, "": 0.5}
	for in, want := range tests {
		if got := PriorityWeight(in); got != want {
			t.Errorf("PriorityWeight(%q) = %v, want %v", in, got, want)
		}
	}
}
