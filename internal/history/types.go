// ABOUTME: Conversation, Message, AnnotatedMessage and Turn types for history aggregation
// ABOUTME: Turn identity is a sum type: server-assigned id or a synthetic (conversation, position) index

package history

import (
	"strconv"
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartTypeText is the only part type that contributes to extracted text.
const PartTypeText = "text"

// Conversation is the read-only cached copy of a backend conversation.
type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time // zero when the backend omitted it
	UpdatedAt time.Time
}

// Part is one typed piece of a message's content.
type Part struct {
	Type string
	Text string
}

// Message is a single history entry as returned by the backend.
// Content is used when non-empty, otherwise Parts.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Parts     []Part
	CreatedAt time.Time
}

// AnnotatedMessage is a Message tagged with the conversation it came from.
// Only the merger produces these.
type AnnotatedMessage struct {
	Message
	ConversationID    string
	ConversationTitle string
	// Position is the index of the message inside its conversation's fetched history.
	Position int

	convOrder int
}

// Identity identifies a turn. It is either the server-assigned message id
// or a synthetic index derived from the conversation and message position.
// Identities are comparable; two values are equal only if they are the same
// variant with the same fields.
type Identity struct {
	serverID       string
	conversationID string
	position       int
	synthetic      bool
}

// Identified returns the identity for a server-assigned message id.
func Identified(serverID string) Identity {
	return Identity{serverID: serverID}
}

// SyntheticIndex returns the identity for a message without a server id.
func SyntheticIndex(conversationID string, position int) Identity {
	return Identity{conversationID: conversationID, position: position, synthetic: true}
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i == Identity{}
}

// IsSynthetic reports whether the identity was synthesized from a position.
func (i Identity) IsSynthetic() bool {
	return i.synthetic
}

// ServerID returns the server-assigned id, if any.
func (i Identity) ServerID() (string, bool) {
	if i.synthetic {
		return "", false
	}
	return i.serverID, i.serverID != ""
}

// String renders the identity for display: the server id, or
// "<conversationID>-<position>" for synthetic identities.
func (i Identity) String() string {
	if i.synthetic {
		return i.conversationID + "-" + strconv.Itoa(i.position)
	}
	return i.serverID
}

// Key returns a string that is unique per identity, suitable for map keys.
// The two variants use distinct prefixes so they can never collide.
func (i Identity) Key() string {
	if i.synthetic {
		return "s:" + i.conversationID + "/" + strconv.Itoa(i.position)
	}
	return "m:" + i.serverID
}

// TurnKind distinguishes turns opened by a user message from turns opened
// by a system ingestion event.
type TurnKind string

const (
	TurnPrompt    TurnKind = "prompt"
	TurnIngestion TurnKind = "ingestion"
)

// Turn is a prompting event paired with its (possibly empty) response.
type Turn struct {
	ID                Identity
	Kind              TurnKind
	Prompt            string
	Response          string
	CreatedAt         time.Time
	ConversationID    string
	ConversationTitle string
}

// HasResponse reports whether the turn received a reply.
func (t Turn) HasResponse() bool {
	return t.Response != ""
}
