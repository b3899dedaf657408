package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// setClock pins the store clock; the returned func advances it.
func setClock(s *SQLiteStore, start time.Time) func(time.Duration) {
	now := start
	s.now = func() time.Time { return now }
	return func(d time.Duration) { now = now.Add(d) }
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mem, err := s.Put(ctx, PutParams{
		NS: "acct", Key: "hello", Content: "world", Kind: "semantic", Priority: "normal",
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if mem.Version != 1 {
		t.Errorf("expected version 1, got %d", mem.Version)
	}
	if mem.ID == "" {
		t.Error("expected non-empty ID")
	}
	if mem.ChunkCount != 1 {
		t.Errorf("expected 1 chunk, got %d", mem.ChunkCount)
	}

	got, err := s.Get(ctx, "acct", "hello")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "world" {
		t.Errorf("expected 'world', got %q", got.Content)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "acct", "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVersioning(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m1, _ := s.Put(ctx, PutParams{NS: "ns", Key: "k", Content: "v1"})
	m2, err := s.Put(ctx, PutParams{NS: "ns", Key: "k", Content: "v2"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if m2.Version != 2 {
		t.Errorf("expected version 2, got %d", m2.Version)
	}
	if m2.Supersedes != m1.ID {
		t.Errorf("expected supersedes %s, got %q", m1.ID, m2.Supersedes)
	}

	got, _ := s.Get(ctx, "ns", "k")
	if got.Content != "v2" {
		t.Errorf("expected 'v2', got %q", got.Content)
	}
}

func TestPutValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tests := []struct {
		name string
		p    PutParams
	}{
		{"missing key", PutParams{NS: "ns", Content: "x"}},
		{"bad kind", PutParams{NS: "ns", Key: "k", Content: "x", Kind: "dream"}},
		{"bad priority", PutParams{NS: "ns", Key: "k", Content: "x", Priority: "urgent"}},
	}
	for _, tt := range tests {
		if _, err := s.Put(ctx, tt.p); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestPutWithPriorityKindAndTags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mem, _ := s.Put(ctx, PutParams{
		NS: "ns", Key: "k", Content: "data",
		Kind: "procedural", Priority: "critical", Tags: []string{"deploy", "infra"},
	})
	if mem.Kind != "procedural" || mem.Priority != "critical" {
		t.Errorf("unexpected kind/priority %q/%q", mem.Kind, mem.Priority)
	}

	got, _ := s.Get(ctx, "ns", "k")
	if got.Kind != "procedural" || got.Priority != "critical" {
		t.Error("kind/priority not persisted correctly")
	}
	if len(got.Tags) != 2 || got.Tags[0] != "deploy" {
		t.Errorf("tags not persisted: %v", got.Tags)
	}
}

func TestTTL_Expires(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	advance := setClock(s, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	if _, err := s.Put(ctx, PutParams{NS: "acct", Key: "ephemeral", Content: "temp data", TTL: time.Hour}); err != nil {
		t.Fatalf("put: %v", err)
	}
	s.Put(ctx, PutParams{NS: "acct", Key: "permanent", Content: "keep this"})

	if _, err := s.Get(ctx, "acct", "ephemeral"); err != nil {
		t.Fatalf("expected live memory, got %v", err)
	}

	advance(2 * time.Hour)
	if _, err := s.Get(ctx, "acct", "ephemeral"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired memory to be gone, got %v", err)
	}
	mems, _ := s.Retrieve(ctx, "acct", "", 10)
	if len(mems) != 1 || mems[0].Key != "permanent" {
		t.Fatalf("expected only permanent, got %v", mems)
	}
}

func TestParseTTL(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
		ok    bool
	}{
		{"7d", 7 * 24 * time.Hour, true},
		{"24h", 24 * time.Hour, true},
		{"30m", 30 * time.Minute, true},
		{"60s", time.Minute, true},
		{"invalid", 0, false},
		{"", 0, false},
		{"7x", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseTTL(tt.input)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("ParseTTL(%q) = %v, %v; want %v", tt.input, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Errorf("ParseTTL(%q) expected error", tt.input)
		}
	}
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	s.Put(ctx, PutParams{NS: "acct", Key: "k", Content: "persisted"})
	s.Close()

	s, err = NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, "acct", "k")
	if err != nil || got.Content != "persisted" {
		t.Fatalf("expected persisted memory, got %v, %v", got, err)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Put(ctx, PutParams{NS: "ns1", Key: "a", Content: "hello"})
	s.Put(ctx, PutParams{NS: "ns1", Key: "a", Content: "hello again"})
	s.Put(ctx, PutParams{NS: "ns1", Key: "b", Content: "world"})
	s.Put(ctx, PutParams{NS: "ns2", Key: "c", Content: "test"})
	s.appendRaw(ctx, "t1", `{"role":"user","content":"hi"}`, time.Now())
	s.appendRaw(ctx, "t2", `{"role":"user","content":"yo"}`, time.Now())
	s.Cache().Set(ctx, "k", []byte("v"), 0)

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Memories != 3 || stats.MemoryVersions != 4 {
		t.Fatalf("expected 3 memories in 4 versions, got %d/%d", stats.Memories, stats.MemoryVersions)
	}
	if stats.Threads != 2 || stats.Messages != 2 {
		t.Fatalf("expected 2 threads and messages, got %d/%d", stats.Threads, stats.Messages)
	}
	if stats.CachedSummaries != 1 {
		t.Fatalf("expected 1 cached summary, got %d", stats.CachedSummaries)
	}
	if len(stats.Namespaces) != 2 || stats.Namespaces[0].NS != "ns1" || stats.Namespaces[0].Keys != 2 {
		t.Fatalf("unexpected namespaces %+v", stats.Namespaces)
	}
	if stats.DBSizeBytes == 0 {
		t.Fatal("expected non-zero db size")
	}
}
