// Package archive keeps a local SQLite mirror of finalized turns. The
// backend stays authoritative for history; this copy only powers the offline
// `sessions` and `export` subcommands and conversation search. Streaming
// entries are never written here.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"codex-chat/internal/chat"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrStreamingEntry = errors.New("refusing to archive a streaming entry")
	ErrNoConversation = errors.New("conversation not found in archive")
)

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT,
			preview TEXT,
			message_count INTEGER,
			updated_ts INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT,
			role TEXT,
			content TEXT,
			created_ts INTEGER,
			is_error INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_ts, id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init archive schema: %w", err)
		}
	}
	return nil
}

// RecordTurn stores one finalized timeline entry. Re-recording the same id
// overwrites, which makes the error-finalize path idempotent.
func (s *Store) RecordTurn(ctx context.Context, conversationID string, m chat.Message) error {
	if m.Streaming {
		return ErrStreamingEntry
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages(id, conversation_id, role, content, created_ts, is_error)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content=excluded.content,
			is_error=excluded.is_error
	`, m.ID, conversationID, string(m.Role), m.Content, m.CreatedAt.Unix(), boolToInt(m.IsError))
	if err != nil {
		return fmt.Errorf("record turn for %s: %w", conversationID, err)
	}
	return nil
}

func (s *Store) UpsertConversation(ctx context.Context, c chat.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations(id, title, preview, message_count, updated_ts)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			preview=excluded.preview,
			message_count=excluded.message_count,
			updated_ts=excluded.updated_ts
	`, c.ID, c.Title, trimPreview(c.Preview), c.MessageCount, c.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert conversation %s: %w", c.ID, err)
	}
	return nil
}

// Conversations lists archived conversations, most recently updated first.
// A non-empty query ranks conversations by LIKE matches over archived
// message content.
func (s *Store) Conversations(ctx context.Context, query string, limit int) ([]chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 200
	}

	var rows *sql.Rows
	var err error
	if strings.TrimSpace(query) == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, COALESCE(title, ''), COALESCE(preview, ''), COALESCE(message_count, 0), COALESCE(updated_ts, 0)
			FROM conversations
			ORDER BY updated_ts DESC, id
			LIMIT ?
		`, limit)
	} else {
		rows, err = s.searchRows(ctx, query, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := make([]chat.Conversation, 0, 64)
	for rows.Next() {
		var c chat.Conversation
		var ts int64
		if err := rows.Scan(&c.ID, &c.Title, &c.Preview, &c.MessageCount, &ts); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		c.UpdatedAt = time.Unix(ts, 0)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return out, nil
}

func (s *Store) searchRows(ctx context.Context, query string, limit int) (*sql.Rows, error) {
	terms := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(terms) == 0 {
		terms = []string{""}
	}

	var b strings.Builder
	b.WriteString(`
		SELECT c.id, COALESCE(c.title, ''), COALESCE(c.preview, ''), COALESCE(c.message_count, 0), COALESCE(c.updated_ts, 0)
		FROM conversations c
		JOIN (
			SELECT conversation_id, COUNT(*) AS score
			FROM messages
			WHERE `)
	args := make([]any, 0, len(terms)+1)
	for i, term := range terms {
		if i > 0 {
			b.WriteString(" OR ")
		}
		b.WriteString("LOWER(content) LIKE ?")
		args = append(args, "%"+term+"%")
	}
	b.WriteString(`
			GROUP BY conversation_id
			ORDER BY score DESC
			LIMIT ?
		) ranked ON ranked.conversation_id = c.id
		ORDER BY ranked.score DESC, c.updated_ts DESC
	`)
	args = append(args, limit)
	return s.db.QueryContext(ctx, b.String(), args...)
}

// Conversation fetches one archived summary by id.
func (s *Store) Conversation(ctx context.Context, id string) (chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c chat.Conversation
	var ts int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(title, ''), COALESCE(preview, ''), COALESCE(message_count, 0), COALESCE(updated_ts, 0)
		FROM conversations
		WHERE id = ?
	`, id).Scan(&c.ID, &c.Title, &c.Preview, &c.MessageCount, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, ErrNoConversation
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("fetch conversation %s: %w", id, err)
	}
	c.UpdatedAt = time.Unix(ts, 0)
	return c, nil
}

// Messages returns the archived transcript of one conversation in creation
// order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_ts, is_error
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_ts, id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query archived messages: %w", err)
	}
	defer rows.Close()

	out := make([]chat.Message, 0, 128)
	for rows.Next() {
		var m chat.Message
		var role string
		var ts int64
		var isErr int
		if err := rows.Scan(&m.ID, &role, &m.Content, &ts, &isErr); err != nil {
			return nil, fmt.Errorf("scan archived message: %w", err)
		}
		m.Role = chat.Role(role)
		m.CreatedAt = time.Unix(ts, 0)
		m.IsError = isErr != 0
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived messages: %w", err)
	}
	return out, nil
}

func trimPreview(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	r := []rune(s)
	if len(r) <= 120 {
		return s
	}
	return string(r[:117]) + "..."
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
