// ABOUTME: Store interface and data types for the reference backend's persistence
// ABOUTME: Defines Conversation and Message records and the operations the chat API needs

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when creating a conversation whose ID is taken
var ErrDuplicateConversation = errors.New("conversation already exists")

// Conversation is one chat thread owned by a user
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message roles stored by the backend
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single message within a conversation
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// Store defines the persistence operations of the reference backend
type Store interface {
	// CreateConversation stores a new conversation.
	// Returns ErrDuplicateConversation if the ID already exists.
	CreateConversation(ctx context.Context, conv *Conversation) error

	// GetConversation retrieves a conversation by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns conversations, most recently updated first.
	ListConversations(ctx context.Context) ([]*Conversation, error)

	// TouchConversation sets a conversation's updated_at.
	// Returns ErrNotFound if it doesn't exist.
	TouchConversation(ctx context.Context, id string, at time.Time) error

	// SaveMessage appends a message to its conversation.
	// Returns ErrNotFound if the conversation doesn't exist.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessages returns a conversation's messages oldest first. A positive
	// limit keeps only the most recent limit messages.
	GetMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	// Close releases the store's resources.
	Close() error
}
