package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rcliao/agent-context/internal/model"
)

func TestAppendAndListMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	advance := setClock(s, time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC))

	for i := 0; i < 5; i++ {
		if _, err := s.AppendMessage(ctx, "thread-1", model.Message{Role: model.RoleUser, Content: fmt.Sprintf("msg %d", i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
		advance(time.Second)
	}
	s.AppendMessage(ctx, "thread-2", model.Message{Role: model.RoleUser, Content: "elsewhere"})

	all, err := s.ListMessages(ctx, "thread-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(all))
	}

	last, err := s.ListMessages(ctx, "thread-1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(last) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(last))
	}
	for i, want := range []string{"msg 3", "msg 4"} {
		msg, err := last[i].Decode()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Content != want {
			t.Errorf("message %d: expected %q, got %q", i, want, msg.Content)
		}
	}
	if !last[0].CreatedAt.Before(last[1].CreatedAt) {
		t.Errorf("expected chronological order, got %v then %v", last[0].CreatedAt, last[1].CreatedAt)
	}
}

func TestAppendMessage_ToolCallsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	in := model.Message{
		Role:      model.RoleAssistant,
		ToolCalls: []model.ToolCall{model.NewToolCall("call_1", "search", `{"q":"go"}`)},
	}
	if _, err := s.AppendMessage(ctx, "t", in); err != nil {
		t.Fatal(err)
	}
	s.AppendMessage(ctx, "t", model.Message{Role: model.RoleTool, ToolCallID: "call_1", Content: "3 hits"})

	got, _ := s.ListMessages(ctx, "t", 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	first, _ := got[0].Decode()
	if len(first.ToolCalls) != 1 || first.ToolCalls[0].Function.Name != "search" {
		t.Errorf("tool calls lost: %+v", first.ToolCalls)
	}
	second, _ := got[1].Decode()
	if second.ToolCallID != "call_1" {
		t.Errorf("tool call id lost: %+v", second)
	}
}

func TestListMessages_SameTimestampKeepsAppendOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	setClock(s, time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		s.AppendMessage(ctx, "t", model.Message{Role: model.RoleUser, Content: fmt.Sprintf("m%d", i)})
	}
	got, _ := s.ListMessages(ctx, "t", 0)
	for i, m := range got {
		msg, _ := m.Decode()
		if msg.Content != fmt.Sprintf("m%d", i) {
			t.Errorf("position %d: got %q", i, msg.Content)
		}
	}
}

func TestListMessages_EmptyThread(t *testing.T) {
	s := newTestStore(t)
	got, err := s.ListMessages(context.Background(), "missing", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no messages, got %d", len(got))
	}
}
