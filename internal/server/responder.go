// ABOUTME: Responder produces the assistant's reply for a chat turn
// ABOUTME: EchoResponder answers deterministically and mentions ingested documents

package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/coven-chat/internal/store"
)

// Responder answers a prompt given the conversation's earlier messages.
type Responder interface {
	Respond(ctx context.Context, conv *store.Conversation, prior []*store.Message, prompt string) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, conv *store.Conversation, prior []*store.Message, prompt string) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, conv *store.Conversation, prior []*store.Message, prompt string) (string, error) {
	return f(ctx, conv, prior, prompt)
}

// EchoResponder repeats the prompt back.
type EchoResponder struct{}

func (EchoResponder) Respond(ctx context.Context, conv *store.Conversation, prior []*store.Message, prompt string) (string, error) {
	docs := 0
	for _, m := range prior {
		if m.Role == store.RoleSystem {
			docs++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You said: %s", prompt)
	if docs > 0 {
		fmt.Fprintf(&sb, " (%d document(s) in this conversation)", docs)
	}
	return sb.String(), nil
}
