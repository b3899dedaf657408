// Package store persists thread messages, long-term memories and cached
// summaries in SQLite.
package store

import (
	"context"
	"time"

	"github.com/rcliao/agent-context/internal/model"
)

// PutParams holds parameters for storing a memory. NS is the account the
// memory belongs to.
type PutParams struct {
	NS       string
	Key      string
	Content  string
	Kind     string
	Tags     []string
	Priority string
	TTL      time.Duration // 0 means never expires
}

// SearchParams holds parameters for searching memories.
type SearchParams struct {
	NS    string
	Query string
	Kind  string
	Limit int
}

// Store defines the persistence used by the context engine and the CLI.
type Store interface {
	// AppendMessage stores a message at the end of a thread.
	AppendMessage(ctx context.Context, threadID string, msg model.Message) (*model.StoredMessage, error)

	// ListMessages returns up to limit of the newest thread messages, oldest
	// first. A limit of 0 returns the whole thread.
	ListMessages(ctx context.Context, threadID string, limit int) ([]model.StoredMessage, error)

	// Put stores a new version of a memory.
	Put(ctx context.Context, p PutParams) (*model.Memory, error)

	// Get returns the latest live version of a memory.
	Get(ctx context.Context, ns, key string) (*model.Memory, error)

	// Search returns memories whose text matches the query, best match first.
	Search(ctx context.Context, p SearchParams) ([]model.Memory, error)

	// Retrieve returns memories for an account to inject into a prompt.
	Retrieve(ctx context.Context, accountID, query string, limit int) ([]model.Memory, error)

	// Close closes the store.
	Close() error
}
