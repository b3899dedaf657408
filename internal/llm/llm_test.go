package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rcliao/agent-context/internal/model"
)

func openAIServer(t *testing.T, content string, check func(body map[string]any)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/chat/completions") {
			t.Errorf("expected /chat/completions path, got %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if check != nil {
			check(body)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIComplete(t *testing.T) {
	server := openAIServer(t, `{"summary":"ok"}`, func(body map[string]any) {
		msgs, _ := body["messages"].([]any)
		if len(msgs) != 2 {
			t.Errorf("expected 2 messages, got %d", len(msgs))
		}
		if body["model"] != "gpt-4o-mini" {
			t.Errorf("expected default model, got %v", body["model"])
		}
		if body["max_completion_tokens"] != float64(700) {
			t.Errorf("expected max_completion_tokens 700, got %v", body["max_completion_tokens"])
		}
	})

	c := NewOpenAI("test-key", server.URL, "")
	resp, err := c.Complete(context.Background(), Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "extract facts"},
			{Role: model.RoleUser, Content: "conversation"},
		},
		MaxTokens:   700,
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"summary":"ok"}` {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 3 {
		t.Errorf("unexpected usage %+v", resp)
	}
}

func TestOpenAIComplete_Empty(t *testing.T) {
	server := openAIServer(t, "", nil)
	_, err := NewOpenAI("test-key", server.URL, "gpt-4o").Complete(context.Background(), Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["system"]; !ok {
			t.Error("expected system blocks in request")
		}
		msgs, _ := body["messages"].([]any)
		if len(msgs) != 1 {
			t.Errorf("expected 1 message, got %d", len(msgs))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "msg_123",
			"type":  "message",
			"role":  "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": []map[string]any{
				{"type": "text", "text": "first "},
				{"type": "text", "text": "second"},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer server.Close()

	c := NewAnthropic("sk-ant-test", server.URL, "")
	resp, err := c.Complete(context.Background(), Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "extract facts"},
			{Role: model.RoleUser, Content: "conversation"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "first second" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.OutputTokens != 5 {
		t.Errorf("expected 5 output tokens, got %d", resp.OutputTokens)
	}
}

func TestNew(t *testing.T) {
	c, err := New(Options{})
	if err != nil || c != nil {
		t.Errorf("expected disabled completer, got %v, %v", c, err)
	}
	if _, err := New(Options{Provider: "bard"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	c, err = New(Options{Provider: "anthropic", APIKey: "k"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.(*Anthropic); !ok {
		t.Errorf("expected *Anthropic, got %T", c)
	}
}
