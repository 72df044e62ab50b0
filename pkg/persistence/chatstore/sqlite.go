package chatstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore is the durable ConversationStore backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ ConversationStore = &SQLiteStore{}

// SQLiteDSNForFile builds a DSN for a database file with WAL, a busy timeout,
// and foreign keys enabled. Foreign keys are required for cascade deletes of
// messages when a conversation is removed administratively.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite chat store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite chat store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite chat store: open")
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite chat store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			sender TEXT NOT NULL CHECK (sender IN ('user','ai')),
			text TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS messages_by_conversation ON messages(conversation_id, created_at_ms, id);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite chat store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context) (Conversation, error) {
	if s == nil || s.db == nil {
		return Conversation{}, errors.New("sqlite chat store: db is nil")
	}
	if ctx == nil {
		return Conversation{}, errors.New("sqlite chat store: ctx is nil")
	}
	now := time.Now()
	conv := Conversation{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations(id, created_at_ms, updated_at_ms) VALUES(?, ?, ?)
	`, conv.ID, now.UnixMilli(), now.UnixMilli()); err != nil {
		return Conversation{}, errors.Wrap(err, "sqlite chat store: insert conversation")
	}
	return conv, nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	if s == nil || s.db == nil {
		return Conversation{}, errors.New("sqlite chat store: db is nil")
	}
	if strings.TrimSpace(id) == "" {
		return Conversation{}, ErrConversationNotFound
	}
	var (
		conv        Conversation
		createdAtMs int64
		updatedAtMs int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at_ms, updated_at_ms FROM conversations WHERE id = ?
	`, id).Scan(&conv.ID, &createdAtMs, &updatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, errors.Wrap(err, "sqlite chat store: select conversation")
	}
	conv.CreatedAt = time.UnixMilli(createdAtMs)
	conv.UpdatedAt = time.UnixMilli(updatedAtMs)
	return conv, nil
}

// GetOrCreateConversation resolves id when it exists and otherwise creates a new
// conversation. An unresolvable supplied id is not an error: stale or garbage ids
// silently start a fresh thread (permissive session policy).
func (s *SQLiteStore) GetOrCreateConversation(ctx context.Context, id string) (Conversation, error) {
	if strings.TrimSpace(id) != "" {
		conv, err := s.GetConversation(ctx, id)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, ErrConversationNotFound) {
			return Conversation{}, err
		}
	}
	return s.CreateConversation(ctx)
}

// AddMessage inserts a message and bumps the parent conversation's updated_at_ms in
// a single transaction. The message timestamp is clamped to be no earlier than the
// conversation's current updated_at_ms so insertion order and timestamp order agree
// for same-millisecond appends.
func (s *SQLiteStore) AddMessage(ctx context.Context, conversationID string, sender Sender, text string) (Message, error) {
	if s == nil || s.db == nil {
		return Message{}, errors.New("sqlite chat store: db is nil")
	}
	if strings.TrimSpace(conversationID) == "" {
		return Message{}, ErrConversationNotFound
	}
	if !sender.Valid() {
		return Message{}, errors.Errorf("sqlite chat store: invalid sender %q", sender)
	}
	if text == "" {
		return Message{}, errors.New("sqlite chat store: empty message text")
	}
	if ctx == nil {
		return Message{}, errors.New("sqlite chat store: ctx is nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, errors.Wrap(err, "sqlite chat store: begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var updatedAtMs int64
	err = tx.QueryRowContext(ctx, `
		SELECT updated_at_ms FROM conversations WHERE id = ?
	`, conversationID).Scan(&updatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrConversationNotFound
	}
	if err != nil {
		return Message{}, errors.Wrap(err, "sqlite chat store: select parent conversation")
	}

	nowMs := time.Now().UnixMilli()
	if nowMs < updatedAtMs {
		nowMs = updatedAtMs
	}

	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender,
		Text:           text,
		Timestamp:      time.UnixMilli(nowMs),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages(id, conversation_id, sender, text, created_at_ms)
		VALUES(?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, string(msg.Sender), msg.Text, nowMs); err != nil {
		return Message{}, errors.Wrap(err, "sqlite chat store: insert message")
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at_ms = ? WHERE id = ?
	`, nowMs, conversationID); err != nil {
		return Message{}, errors.Wrap(err, "sqlite chat store: bump conversation updated_at")
	}
	if err := tx.Commit(); err != nil {
		return Message{}, errors.Wrap(err, "sqlite chat store: commit tx")
	}
	committed = true
	return msg, nil
}

func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite chat store: db is nil")
	}
	if strings.TrimSpace(conversationID) == "" {
		return nil, ErrConversationNotFound
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender, text, created_at_ms
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at_ms ASC, rowid ASC
	`, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite chat store: query messages")
	}
	defer func() { _ = rows.Close() }()

	msgs := []Message{}
	for rows.Next() {
		var (
			msg         Message
			sender      string
			createdAtMs int64
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &sender, &msg.Text, &createdAtMs); err != nil {
			return nil, errors.Wrap(err, "sqlite chat store: scan message")
		}
		msg.Sender = Sender(sender)
		msg.Timestamp = time.UnixMilli(createdAtMs)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite chat store: iterate messages")
	}
	return msgs, nil
}

func (s *SQLiteStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("sqlite chat store: db is nil")
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE conversation_id = ?
	`, conversationID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "sqlite chat store: count messages")
	}
	return n, nil
}
