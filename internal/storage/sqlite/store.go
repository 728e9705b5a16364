// Package sqlite is the SQLite implementation of conversation storage.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ponderlabs/ponder/internal/storage"
)

// Store is a SQLite-backed ConversationStore.
type Store struct {
	db *sql.DB
}

var _ storage.ConversationStore = (*Store)(nil)

// New opens or creates the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls TEXT,
			tool_call_id TEXT,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS thinking_segments (
			response_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			thinking TEXT NOT NULL,
			signature TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (conversation_id, response_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_thinking_conversation ON thinking_segments(conversation_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateConversation(ctx context.Context, conv *storage.Conversation) error {
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, model, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.Model, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*storage.Conversation, error) {
	var conv storage.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, model, created_at, updated_at FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.Model, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	messages, err := s.getMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = messages
	return &conv, nil
}

func (s *Store) getMessages(ctx context.Context, conversationID string) ([]storage.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, COALESCE(tool_calls, ''), COALESCE(tool_call_id, ''), created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []storage.StoredMessage
	for rows.Next() {
		var m storage.StoredMessage
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.ToolCalls, &m.ToolCallID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg *storage.StoredMessage) error {
	msg.CreatedAt = time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, tool_calls, tool_call_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, conversationID, msg.Role, msg.Content, msg.ToolCalls, msg.ToolCallID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, time.Now(), conversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	return tx.Commit()
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM thinking_segments WHERE conversation_id = ?`,
		`DELETE FROM messages WHERE conversation_id = ?`,
		`DELETE FROM conversations WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) SaveThinking(ctx context.Context, conversationID string, seg *storage.ThinkingSegment) error {
	seg.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO thinking_segments (response_id, conversation_id, thinking, signature, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (conversation_id, response_id) DO UPDATE SET thinking = excluded.thinking, signature = excluded.signature`,
		seg.ResponseID, conversationID, seg.Thinking, seg.Signature, seg.CreatedAt)
	if err != nil {
		return fmt.Errorf("save thinking segment: %w", err)
	}
	return nil
}

func (s *Store) ListThinking(ctx context.Context, conversationID string) ([]storage.ThinkingSegment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT response_id, thinking, signature, created_at
		 FROM thinking_segments WHERE conversation_id = ? ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query thinking segments: %w", err)
	}
	defer rows.Close()

	var segments []storage.ThinkingSegment
	for rows.Next() {
		var seg storage.ThinkingSegment
		if err := rows.Scan(&seg.ResponseID, &seg.Thinking, &seg.Signature, &seg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan thinking segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
