package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/agent-context/internal/chunker"
	"github.com/rcliao/agent-context/internal/model"
)

// timeFormat sorts lexically in UTC.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a memory does not exist or has expired.
var ErrNotFound = errors.New("not found")

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) stamp(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id          TEXT PRIMARY KEY,
		thread_id   TEXT NOT NULL,
		payload     TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at);

	CREATE TABLE IF NOT EXISTS memories (
		id          TEXT PRIMARY KEY,
		ns          TEXT NOT NULL,
		key         TEXT NOT NULL,
		content     TEXT NOT NULL,
		kind        TEXT NOT NULL DEFAULT 'semantic',
		tags        TEXT,
		version     INTEGER NOT NULL DEFAULT 1,
		supersedes  TEXT,
		created_at  TEXT NOT NULL,
		priority    TEXT NOT NULL DEFAULT 'normal',
		expires_at  TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_ns_key ON memories(ns, key);
	CREATE INDEX IF NOT EXISTS idx_memories_expires ON memories(expires_at);

	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		memory_id   TEXT NOT NULL REFERENCES memories(id),
		seq         INTEGER NOT NULL,
		text        TEXT NOT NULL,
		start_line  INTEGER,
		end_line    INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_memory ON chunks(memory_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		text,
		content=chunks,
		content_rowid=rowid
	);

	CREATE TABLE IF NOT EXISTS summary_cache (
		key         TEXT PRIMARY KEY,
		value       BLOB NOT NULL,
		created_at  TEXT NOT NULL,
		expires_at  TEXT
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS5 triggers keep the index in sync with chunks.
	for _, trigger := range []string{
		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
		END`,
	} {
		if _, err := s.db.Exec(trigger); err != nil {
			return fmt.Errorf("create trigger: %w", err)
		}
	}
	return nil
}

// Put stores content as a new version of ns/key and indexes it for search.
func (s *SQLiteStore) Put(ctx context.Context, p PutParams) (*model.Memory, error) {
	if p.NS == "" || p.Key == "" {
		return nil, errors.New("put memory: ns and key are required")
	}
	now := s.now().UTC()
	id := ulid.Make().String()

	kind := p.Kind
	if kind == "" {
		kind = "semantic"
	}
	if !model.ValidKinds[kind] {
		return nil, fmt.Errorf("put memory: invalid kind %q", kind)
	}
	priority := p.Priority
	if priority == "" {
		priority = "normal"
	}
	if !model.ValidPriorities[priority] {
		return nil, fmt.Errorf("put memory: invalid priority %q", priority)
	}

	var tagsJSON *string
	if len(p.Tags) > 0 {
		b, err := json.Marshal(p.Tags)
		if err != nil {
			return nil, fmt.Errorf("marshal tags: %w", err)
		}
		t := string(b)
		tagsJSON = &t
	}

	var expiresAt *string
	if p.TTL > 0 {
		exp := s.stamp(now.Add(p.TTL))
		expiresAt = &exp
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var prevID string
	var prevVersion int
	err = tx.QueryRowContext(ctx,
		`SELECT id, version FROM memories WHERE ns = ? AND key = ?
		 ORDER BY version DESC LIMIT 1`, p.NS, p.Key).Scan(&prevID, &prevVersion)
	version := 1
	var supersedes *string
	switch {
	case err == nil:
		version = prevVersion + 1
		supersedes = &prevID
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("find previous version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memories (id, ns, key, content, kind, tags, version, supersedes, created_at, priority, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.NS, p.Key, p.Content, kind, tagsJSON, version, supersedes,
		s.stamp(now), priority, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}

	pieces := chunker.Chunk(p.Content, chunker.DefaultOptions())
	for i, c := range pieces {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chunks (id, memory_id, seq, text, start_line, end_line)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			ulid.Make().String(), id, i, c.Text, c.StartLine, c.EndLine)
		if err != nil {
			return nil, fmt.Errorf("insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	mem := &model.Memory{
		ID:         id,
		NS:         p.NS,
		Key:        p.Key,
		Content:    p.Content,
		Kind:       kind,
		Tags:       p.Tags,
		Version:    version,
		CreatedAt:  now,
		Priority:   priority,
		ChunkCount: len(pieces),
	}
	if supersedes != nil {
		mem.Supersedes = *supersedes
	}
	return mem, nil
}

// memoryColumns are scanned by scanMemory; latestJoin narrows m to the newest
// version of each ns/key.
const memoryColumns = `m.id, m.ns, m.key, m.content, m.kind, m.tags, m.version, m.supersedes, m.created_at, m.priority`

const latestJoin = `
	INNER JOIN (
		SELECT ns, key, MAX(version) AS max_ver FROM memories GROUP BY ns, key
	) latest ON m.ns = latest.ns AND m.key = latest.key AND m.version = latest.max_ver`

// Get returns the latest version of ns/key, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, ns, key string) (*model.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories m `+latestJoin+`
		 WHERE m.ns = ? AND m.key = ? AND (m.expires_at IS NULL OR m.expires_at > ?)`,
		ns, key, s.stamp(s.now()))
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("memory %s/%s: %w", ns, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return &m, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var tagsJSON, supersedes sql.NullString
	var createdAt string

	err := row.Scan(
		&m.ID, &m.NS, &m.Key, &m.Content, &m.Kind, &tagsJSON,
		&m.Version, &supersedes, &createdAt, &m.Priority,
	)
	if err != nil {
		return m, err
	}

	m.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	m.Supersedes = supersedes.String
	if tagsJSON.Valid {
		if err := json.Unmarshal([]byte(tagsJSON.String), &m.Tags); err != nil {
			return m, fmt.Errorf("decode tags of %s: %w", m.ID, err)
		}
	}
	return m, nil
}

var ttlRegex = regexp.MustCompile(`^(\d+)([dhms])$`)

// ParseTTL parses a TTL string like "7d", "24h", "30m" or "60s".
func ParseTTL(s string) (time.Duration, error) {
	m := ttlRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid ttl %q (use e.g. 7d, 24h, 30m, 60s)", s)
	}
	n, _ := strconv.Atoi(m[1])
	unit := map[string]time.Duration{"d": 24 * time.Hour, "h": time.Hour, "m": time.Minute, "s": time.Second}[m[2]]
	return time.Duration(n) * unit, nil
}
