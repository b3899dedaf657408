package store

import (
	"context"
	"fmt"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath          string           `json:"db_path"`
	DBSizeBytes     int64            `json:"db_size_bytes"`
	Threads         int              `json:"threads"`
	Messages        int              `json:"messages"`
	Memories        int              `json:"memories"`
	MemoryVersions  int              `json:"memory_versions"`
	Chunks          int              `json:"chunks"`
	CachedSummaries int              `json:"cached_summaries"`
	Namespaces      []NamespaceStats `json:"namespaces"`
}

// NamespaceStats holds per-account memory counts.
type NamespaceStats struct {
	NS       string `json:"ns"`
	Keys     int    `json:"keys"`
	Versions int    `json:"versions"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}
	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	counts := []struct {
		dst   *int
		query string
	}{
		{&st.Threads, `SELECT COUNT(DISTINCT thread_id) FROM messages`},
		{&st.Messages, `SELECT COUNT(*) FROM messages`},
		{&st.Memories, `SELECT COUNT(*) FROM (SELECT DISTINCT ns, key FROM memories)`},
		{&st.MemoryVersions, `SELECT COUNT(*) FROM memories`},
		{&st.Chunks, `SELECT COUNT(*) FROM chunks`},
		{&st.CachedSummaries, `SELECT COUNT(*) FROM summary_cache`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("count: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ns, COUNT(DISTINCT key) AS keys, COUNT(*) AS versions
		FROM memories GROUP BY ns ORDER BY keys DESC, ns`)
	if err != nil {
		return nil, fmt.Errorf("namespace stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ns NamespaceStats
		if err := rows.Scan(&ns.NS, &ns.Keys, &ns.Versions); err != nil {
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		st.Namespaces = append(st.Namespaces, ns)
	}
	return st, rows.Err()
}
