// ABOUTME: SQLite implementation of the Store interface
// ABOUTME: Works with the pure-Go modernc driver ("sqlite") or the cgo mattn driver ("sqlite3")

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens a store with the pure-Go driver.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return Open(DriverModernc, path)
}

// Open creates a SQLite store at path using the named database/sql driver.
// The path ":memory:" opens a private in-memory database.
func Open(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	switch driver {
	case "":
		driver = DriverModernc
	case DriverModernc, DriverMattn:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	inMemory := path == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "driver", driver, "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_updated
			ON conversations(updated_at);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies column additions that CREATE TABLE IF NOT EXISTS
// cannot express for databases created by older versions.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		check  string
		apply  string
		column string
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('conversations') WHERE name = 'user_id'`,
			apply:  `ALTER TABLE conversations ADD COLUMN user_id TEXT NOT NULL DEFAULT ''`,
			column: "user_id",
		},
	}

	for _, m := range migrations {
		var exists int
		if err := s.db.QueryRow(m.check).Scan(&exists); err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateConversation inserts a conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.UserID,
		conv.Title,
		formatTime(conv.CreatedAt),
		formatTime(conv.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID)
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns all conversations, most recently updated first.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]*Conversation, error) {
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC, rowid DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return convs, nil
}

// TouchConversation records activity on a conversation.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveMessage inserts a message into an existing conversation.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		SELECT ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM conversations WHERE id = ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.Role,
		msg.Content,
		formatTime(msg.CreatedAt),
		msg.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking insert: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Debug("saved message", "id", msg.ID, "conversation_id", msg.ConversationID, "role", msg.Role)
	return nil
}

// GetMessages retrieves a conversation's messages in chronological order.
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	var query string
	var args []any

	if limit > 0 {
		// Take the newest N, then return them oldest first.
		query = `
			SELECT id, conversation_id, role, content, created_at
			FROM (
				SELECT id, conversation_id, role, content, created_at, rowid AS seq
				FROM messages
				WHERE conversation_id = ?
				ORDER BY created_at DESC, rowid DESC
				LIMIT ?
			)
			ORDER BY created_at ASC, seq ASC
		`
		args = []any{conversationID, limit}
	} else {
		query = `
			SELECT id, conversation_id, role, content, created_at
			FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at ASC, rowid ASC
		`
		args = []any{conversationID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var msg Message
		var createdAt string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var createdAt, updatedAt string
	if err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if conv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if conv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &conv, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "PRIMARY KEY")
}
