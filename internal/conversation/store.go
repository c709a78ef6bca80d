// Package conversation manages conversation metadata and message history
// for the REST API: one logical thread per platform-qualified chatId,
// materialized on first message and never garbage-collected implicitly.
package conversation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Conversation is a logical message thread keyed by a platform-qualified
// chatId (e.g. "telegram-123", "api-<uuid>", "webhook-<uuid>").
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Message is one turn of a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// maxTitleRunes bounds the first-message snippet used as a conversation's
// lazily-computed title.
const maxTitleRunes = 60

// Store is a SQLite-backed conversation and message history table.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if necessary) the conversation database at
// dbPath and ensures its schema exists.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("conversation store: open: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("conversation store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		message_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetOrCreate returns the conversation with the given id, materializing it
// (with an empty title and zero message count) if it does not yet exist.
func (s *Store) GetOrCreate(id string) (Conversation, error) {
	if conv, ok, err := s.get(id); err != nil {
		return Conversation{}, err
	} else if ok {
		return conv, nil
	}

	now := time.Now().UTC()
	conv := Conversation{ID: id, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.Exec(
		`INSERT INTO conversations (id, title, message_count, created_at, updated_at) VALUES (?, '', 0, ?, ?)`,
		conv.ID, fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("conversation store: create %s: %w", id, err)
	}
	return conv, nil
}

// Get returns the conversation with the given id, or ok=false if it does
// not exist.
func (s *Store) Get(id string) (Conversation, bool, error) {
	return s.get(id)
}

func (s *Store) get(id string) (Conversation, bool, error) {
	row := s.db.QueryRow(
		`SELECT id, title, message_count, created_at, updated_at FROM conversations WHERE id = ?`, id)
	var conv Conversation
	var created, updated string
	if err := row.Scan(&conv.ID, &conv.Title, &conv.MessageCount, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return Conversation{}, false, nil
		}
		return Conversation{}, false, fmt.Errorf("conversation store: get %s: %w", id, err)
	}
	conv.CreatedAt = parseTime(created)
	conv.UpdatedAt = parseTime(updated)
	return conv, true, nil
}

// List returns every conversation, sorted by updatedAt descending.
func (s *Store) List() ([]Conversation, error) {
	rows, err := s.db.Query(
		`SELECT id, title, message_count, created_at, updated_at FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("conversation store: list: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var conv Conversation
		var created, updated string
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.MessageCount, &created, &updated); err != nil {
			return nil, fmt.Errorf("conversation store: list scan: %w", err)
		}
		conv.CreatedAt = parseTime(created)
		conv.UpdatedAt = parseTime(updated)
		out = append(out, conv)
	}
	return out, rows.Err()
}

// Delete removes a conversation and all of its messages. Not an error to
// delete a conversation that does not exist.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("conversation store: delete messages %s: %w", id, err)
	}
	if _, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("conversation store: delete %s: %w", id, err)
	}
	return nil
}

// AppendMessage records a message, materializing the conversation if
// needed, bumping its message count and updatedAt, and — on the first
// user message only — deriving its title from a truncated snippet.
func (s *Store) AppendMessage(conversationID, role, content string) (Message, error) {
	conv, err := s.GetOrCreate(conversationID)
	if err != nil {
		return Message{}, err
	}

	id := newID()
	now := time.Now().UTC()
	msg := Message{ID: id, ConversationID: conversationID, Role: role, Content: content, Timestamp: now}

	if _, err := s.db.Exec(
		`INSERT INTO messages (id, conversation_id, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, conversationID, role, content, fmtTime(now),
	); err != nil {
		return Message{}, fmt.Errorf("conversation store: append message: %w", err)
	}

	title := conv.Title
	if title == "" && role == "user" {
		title = truncateTitle(content)
	}

	if _, err := s.db.Exec(
		`UPDATE conversations SET title = ?, message_count = message_count + 1, updated_at = ? WHERE id = ?`,
		title, fmtTime(now), conversationID,
	); err != nil {
		return Message{}, fmt.Errorf("conversation store: update conversation: %w", err)
	}

	return msg, nil
}

// Messages returns up to limit most recent messages for conversationID, in
// chronological order. A limit <= 0 means unbounded.
func (s *Store) Messages(conversationID string, limit int) ([]Message, error) {
	query := `SELECT id, conversation_id, role, content, timestamp FROM messages
		WHERE conversation_id = ? ORDER BY timestamp DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversation store: messages %s: %w", conversationID, err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var ts string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("conversation store: messages scan: %w", err)
		}
		m.Timestamp = parseTime(ts)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Results were fetched newest-first (so LIMIT keeps the most recent
	// ones); reverse in place to return chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// truncateTitle derives a conversation title from the first user message:
// a snippet of at most maxTitleRunes runes (not bytes — content may be
// multi-byte UTF-8), with an ellipsis marker when truncated.
func truncateTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= maxTitleRunes {
		return content
	}
	return string(runes[:maxTitleRunes-1]) + "…"
}

func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// fmtTime writes a fixed-width UTC timestamp so that ORDER BY on the text
// column sorts chronologically (RFC3339Nano trims trailing zeros).
func fmtTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
