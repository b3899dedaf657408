package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/rcliao/agent-context/internal/model"
)

const defaultLimit = 20

// Search finds memories whose chunks match any word of the query, ranked by
// bm25. Only the latest unexpired version of each memory is considered.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]model.Memory, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	match := ftsQuery(p.Query)
	if match == "" {
		return nil, nil
	}

	where := []string{"(m.expires_at IS NULL OR m.expires_at > ?)"}
	args := []any{match, s.stamp(s.now())}
	if p.NS != "" {
		where = append(where, "m.ns = ?")
		args = append(args, p.NS)
	}
	if p.Kind != "" {
		where = append(where, "m.kind = ?")
		args = append(args, p.Kind)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM (
			SELECT c.memory_id, bm25(chunks_fts) AS rank
			FROM chunks_fts JOIN chunks c ON c.rowid = chunks_fts.rowid
			WHERE chunks_fts MATCH ?
		) hits
		JOIN memories m ON m.id = hits.memory_id
		%s
		WHERE %s
		ORDER BY hits.rank, m.created_at DESC`, memoryColumns, latestJoin, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	var results []model.Memory
	seen := map[string]bool{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		if seen[m.ID] || len(results) >= limit {
			continue
		}
		seen[m.ID] = true
		results = append(results, m)
	}
	return results, rows.Err()
}

// Retrieve returns memories of an account for prompt injection: search hits
// for the query when there are any, otherwise the most important and newest
// memories.
func (s *SQLiteStore) Retrieve(ctx context.Context, accountID, query string, limit int) ([]model.Memory, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if strings.TrimSpace(query) != "" {
		hits, err := s.Search(ctx, SearchParams{NS: accountID, Query: query, Limit: limit})
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			return hits, nil
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+`
		FROM memories m `+latestJoin+`
		WHERE m.ns = ? AND (m.expires_at IS NULL OR m.expires_at > ?)
		ORDER BY CASE m.priority
			WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 ELSE 3 END,
			m.created_at DESC
		LIMIT ?`, accountID, s.stamp(s.now()), limit)
	if err != nil {
		return nil, fmt.Errorf("retrieve memories: %w", err)
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ftsQuery turns free text into an FTS5 OR query of quoted terms so user
// input can never be parsed as query syntax.
func ftsQuery(q string) string {
	words := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}
