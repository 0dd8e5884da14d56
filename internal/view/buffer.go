// ABOUTME: Live session buffer holding messages produced in this session
// ABOUTME: Immutable value type: every operation returns a new buffer

package view

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/history"
)

// Origin records which action produced a live message.
type Origin string

const (
	OriginTyped  Origin = "typed"
	OriginUpload Origin = "upload"
)

// LiveMessage is a message produced during this session. It is rendered
// directly and never turned into a Turn.
type LiveMessage struct {
	ID        string
	Role      history.Role
	Text      string
	Origin    Origin
	CreatedAt time.Time
	// Err is set when the action that produced this message failed.
	Err string
}

// NewLiveMessage creates a message with a time-ordered UUIDv7 id.
func NewLiveMessage(role history.Role, text string, origin Origin) LiveMessage {
	return LiveMessage{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      role,
		Text:      text,
		Origin:    origin,
		CreatedAt: time.Now(),
	}
}

// Buffer is an append-ordered list of live messages. The zero value is empty.
// Buffers share no backing storage after modification.
type Buffer struct {
	messages []LiveMessage
}

// NewBuffer creates a buffer holding copies of msgs.
func NewBuffer(msgs ...LiveMessage) Buffer {
	return Buffer{messages: slices.Clone(msgs)}
}

// Len returns the number of messages.
func (b Buffer) Len() int {
	return len(b.messages)
}

// Messages returns a copy of the messages in append order.
func (b Buffer) Messages() []LiveMessage {
	return slices.Clone(b.messages)
}

// Append returns a buffer with m added at the end.
func (b Buffer) Append(m LiveMessage) Buffer {
	out := make([]LiveMessage, len(b.messages), len(b.messages)+1)
	copy(out, b.messages)
	return Buffer{messages: append(out, m)}
}

// InsertAfter returns a buffer with m placed directly after the message
// with the given id, after any replies already attached there. When id is
// unknown, m is appended.
func (b Buffer) InsertAfter(id string, m LiveMessage) Buffer {
	idx := slices.IndexFunc(b.messages, func(x LiveMessage) bool { return x.ID == id })
	if idx < 0 {
		return b.Append(m)
	}
	pos := idx + 1
	for pos < len(b.messages) && b.messages[pos].Role != history.RoleUser {
		pos++
	}
	return Buffer{messages: slices.Insert(slices.Clone(b.messages), pos, m)}
}

// Remove returns a buffer without the message with the given id.
func (b Buffer) Remove(id string) Buffer {
	return Buffer{messages: slices.DeleteFunc(slices.Clone(b.messages), func(x LiveMessage) bool {
		return x.ID == id
	})}
}

// Annotate returns a buffer where the message with the given id carries errText.
func (b Buffer) Annotate(id, errText string) Buffer {
	out := slices.Clone(b.messages)
	for i := range out {
		if out[i].ID == id {
			out[i].Err = errText
		}
	}
	return Buffer{messages: out}
}
