// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation // keyed by conversation ID
	order         []string                 // conversation IDs in creation order
	messages      map[string][]*Message    // keyed by conversation ID
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
	}
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[conv.ID]; ok {
		return ErrDuplicateConversation
	}

	// Make a copy to avoid external modification
	c := *conv
	m.conversations[c.ID] = &c
	m.order = append(m.order, c.ID)
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// ListConversations returns conversations, most recently updated first.
func (m *MockStore) ListConversations(ctx context.Context) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Conversation, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		c := *m.conversations[m.order[i]]
		result = append(result, &c)
	}
	slices.SortStableFunc(result, func(a, b *Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return result, nil
}

// TouchConversation sets a conversation's updated_at.
func (m *MockStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.UpdatedAt = at
	return nil
}

// SaveMessage appends a message.
func (m *MockStore) SaveMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[msg.ConversationID]; !ok {
		return ErrNotFound
	}
	c := *msg
	m.messages[c.ConversationID] = append(m.messages[c.ConversationID], &c)
	return nil
}

// GetMessages returns a conversation's messages oldest first.
func (m *MockStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := make([]*Message, 0, len(m.messages[conversationID]))
	for _, msg := range m.messages[conversationID] {
		c := *msg
		msgs = append(msgs, &c)
	}
	slices.SortStableFunc(msgs, func(a, b *Message) int {
		return cmp.Compare(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	})

	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}

var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
