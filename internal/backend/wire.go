// ABOUTME: JSON wire types for the assistant backend's conversation, history, chat and ingest endpoints
// ABOUTME: Shared by the HTTP client and the reference backend server

package backend

import (
	"encoding/json"
	"time"

	"github.com/2389/coven-chat/internal/history"
)

// API paths.
const (
	PathConversations = "/api/conversations"
	PathHistory       = "/api/history"
	PathChat          = "/api/chat"
	PathIngest        = "/api/documents/ingest"
	PathHealth        = "/health"
)

// HeaderIdempotencyKey carries the client's id for a send so replays can be rejected.
const HeaderIdempotencyKey = "Idempotency-Key"

// ConversationJSON is one entry of GET /api/conversations.
type ConversationJSON struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ConversationsResponse is the body of GET /api/conversations.
type ConversationsResponse struct {
	Conversations []ConversationJSON `json:"conversations"`
}

// PartJSON is one typed content part.
type PartJSON struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// MessageJSON is one entry of GET /api/history. Content may be a string or
// an array of parts; Parts is the explicit part list.
type MessageJSON struct {
	ID        string          `json:"id,omitempty"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content,omitempty"`
	Parts     []PartJSON      `json:"parts,omitempty"`
	CreatedAt string          `json:"createdAt,omitempty"`
}

// HistoryResponse is the body of GET /api/history.
type HistoryResponse struct {
	Messages []MessageJSON `json:"messages"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversationId,omitempty"`
	UserID         string `json:"userId,omitempty"`
}

// ChatResponse is the reply of POST /api/chat.
type ChatResponse struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversationId"`
}

// IngestRequest is the body of POST /api/documents/ingest.
type IngestRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ErrorResponse is the body of non-2xx JSON responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StringContent encodes a plain string as a MessageJSON content value.
func StringContent(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// FormatTime renders a timestamp for the wire; zero renders as "".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// ParseTime parses a wire timestamp. Empty or unrecognized values yield the
// zero time, which sorts to the oldest end of merged history.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ToConversation converts a wire conversation.
func (c ConversationJSON) ToConversation() history.Conversation {
	return history.Conversation{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: ParseTime(c.CreatedAt),
		UpdatedAt: ParseTime(c.UpdatedAt),
	}
}

// ToMessage converts a wire message. Array-valued content is treated as a
// part list and placed ahead of any explicit parts.
func (m MessageJSON) ToMessage() history.Message {
	msg := history.Message{
		ID:        m.ID,
		Role:      history.Role(m.Role),
		CreatedAt: ParseTime(m.CreatedAt),
	}

	if len(m.Content) > 0 {
		var s string
		if err := json.Unmarshal(m.Content, &s); err == nil {
			msg.Content = s
		} else {
			var parts []PartJSON
			if err := json.Unmarshal(m.Content, &parts); err == nil {
				msg.Parts = append(msg.Parts, toParts(parts)...)
			}
		}
	}
	msg.Parts = append(msg.Parts, toParts(m.Parts)...)
	return msg
}

func toParts(parts []PartJSON) []history.Part {
	out := make([]history.Part, len(parts))
	for i, p := range parts {
		out[i] = history.Part{Type: p.Type, Text: p.Text}
	}
	return out
}
