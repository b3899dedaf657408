package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/agent-context/internal/model"
)

// AppendMessage stores msg as JSON at the end of the thread.
func (s *SQLiteStore) AppendMessage(ctx context.Context, threadID string, msg model.Message) (*model.StoredMessage, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s.appendRaw(ctx, threadID, string(payload), s.now())
}

// appendRaw stores an already encoded payload. The payload is not validated;
// readers drop what they cannot decode.
func (s *SQLiteStore) appendRaw(ctx context.Context, threadID, payload string, at time.Time) (*model.StoredMessage, error) {
	m := &model.StoredMessage{
		ID:        ulid.Make().String(),
		ThreadID:  threadID,
		Payload:   payload,
		CreatedAt: at.UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		m.ID, m.ThreadID, m.Payload, s.stamp(m.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// ListMessages returns the newest limit messages of a thread in the order
// they were appended. limit <= 0 returns all of them.
func (s *SQLiteStore) ListMessages(ctx context.Context, threadID string, limit int) ([]model.StoredMessage, error) {
	query := `SELECT id, thread_id, payload, created_at FROM messages
		WHERE thread_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{threadID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []model.StoredMessage
	for rows.Next() {
		var m model.StoredMessage
		var created string
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Payload, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt, _ = time.Parse(timeFormat, created)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
