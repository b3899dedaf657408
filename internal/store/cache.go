package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/agent-context/internal/summarize"
)

var _ summarize.Cache = (*SummaryCache)(nil)

// SummaryCache stores summarizer results in the summary_cache table.
type SummaryCache struct {
	s *SQLiteStore
}

// Cache returns the summary cache backed by this store.
func (s *SQLiteStore) Cache() *SummaryCache {
	return &SummaryCache{s: s}
}

// Get returns a cached summary. Expired entries are deleted and reported as
// misses.
func (c *SummaryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expires sql.NullString
	err := c.s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM summary_cache WHERE key = ?`, key).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache: %w", err)
	}
	if expires.Valid && expires.String <= c.s.stamp(c.s.now()) {
		if _, err := c.s.db.ExecContext(ctx, `DELETE FROM summary_cache WHERE key = ?`, key); err != nil {
			return nil, false, fmt.Errorf("evict cache: %w", err)
		}
		return nil, false, nil
	}
	return value, true, nil
}

// Set stores value under key. A ttl <= 0 never expires.
func (c *SummaryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.s.now()
	var expires *string
	if ttl > 0 {
		e := c.s.stamp(now.Add(ttl))
		expires = &e
	}
	_, err := c.s.db.ExecContext(ctx,
		`INSERT INTO summary_cache (key, value, created_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, value, c.s.stamp(now), expires)
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired cache entries and reports how many went.
func (c *SummaryCache) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := c.s.db.ExecContext(ctx,
		`DELETE FROM summary_cache WHERE expires_at IS NOT NULL AND expires_at <= ?`, c.s.stamp(c.s.now()))
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	return res.RowsAffected()
}
