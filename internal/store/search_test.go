package store

import (
	"context"
	"strings"
	"testing"
)

func TestSearch_Basic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, PutParams{NS: "test", Key: "golang", Content: "Go is a compiled language with goroutines"})
	s.Put(ctx, PutParams{NS: "test", Key: "python", Content: "Python is an interpreted language"})
	s.Put(ctx, PutParams{NS: "other", Key: "rust", Content: "Rust has a borrow checker"})

	tests := []struct {
		name string
		p    SearchParams
		want int
	}{
		{"content across namespaces", SearchParams{Query: "language"}, 2},
		{"namespace filter", SearchParams{NS: "other", Query: "language"}, 0},
		{"any word matches", SearchParams{Query: "borrow goroutines"}, 2},
		{"no results", SearchParams{Query: "javascript"}, 0},
		{"syntax is quoted", SearchParams{Query: `"language" AND (NOT`}, 2},
		{"punctuation only", SearchParams{Query: "?!"}, 0},
		{"limit", SearchParams{Query: "language", Limit: 1}, 1},
	}
	for _, tt := range tests {
		results, err := s.Search(ctx, tt.p)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if len(results) != tt.want {
			t.Errorf("%s: expected %d results, got %d", tt.name, tt.want, len(results))
		}
	}
}

func TestSearch_LatestVersionOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, PutParams{NS: "acct", Key: "editor", Content: "prefers vim"})
	s.Put(ctx, PutParams{NS: "acct", Key: "editor", Content: "prefers emacs now"})

	results, err := s.Search(ctx, SearchParams{Query: "prefers"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Content != "prefers emacs now" {
		t.Fatalf("expected only the latest version, got %+v", results)
	}
	if results, _ := s.Search(ctx, SearchParams{Query: "vim"}); len(results) != 0 {
		t.Fatalf("superseded text should not match, got %d", len(results))
	}
}

func TestSearch_MultiChunkMemoryOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	long := strings.Repeat("deploy notes for the payments cluster.\n", 60)
	mem, _ := s.Put(ctx, PutParams{NS: "acct", Key: "runbook", Content: long})
	if mem.ChunkCount < 2 {
		t.Fatalf("expected the runbook to be chunked, got %d", mem.ChunkCount)
	}

	results, err := s.Search(ctx, SearchParams{Query: "payments"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestRetrieve(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, PutParams{NS: "acct", Key: "name", Content: "User is called Sam", Priority: "low"})
	s.Put(ctx, PutParams{NS: "acct", Key: "stack", Content: "Team will deploy Go services on Fridays", Priority: "critical"})
	s.Put(ctx, PutParams{NS: "acct", Key: "pet", Content: "Has a cat", Priority: "high"})
	s.Put(ctx, PutParams{NS: "other", Key: "x", Content: "Go everywhere"})

	hits, err := s.Retrieve(ctx, "acct", "how do we deploy", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Key != "stack" {
		t.Fatalf("expected the search hit, got %+v", hits)
	}

	all, err := s.Retrieve(ctx, "acct", "unrelated words", 10)
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, m := range all {
		keys = append(keys, m.Key)
	}
	if strings.Join(keys, ",") != "stack,pet,name" {
		t.Fatalf("expected priority order, got %v", keys)
	}

	top, _ := s.Retrieve(ctx, "acct", "", 1)
	if len(top) != 1 || top[0].Key != "stack" {
		t.Fatalf("expected the critical memory, got %+v", top)
	}
}
