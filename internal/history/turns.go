// ABOUTME: Turn builder that pairs prompting messages with the reply that follows them
// ABOUTME: User messages and ingestion-marker system messages open turns; bare assistant messages are dropped

package history

import (
	"slices"
	"strings"
)

// DefaultIngestionMarker prefixes system messages that record a document
// being added to the knowledge base.
const DefaultIngestionMarker = "[document ingested]"

// Builder folds ascending message sequences into turns.
type Builder struct {
	markers []string
}

// NewBuilder creates a builder recognizing the given ingestion markers.
// With no markers, DefaultIngestionMarker is used.
func NewBuilder(markers ...string) *Builder {
	var ms []string
	for _, m := range markers {
		if m != "" {
			ms = append(ms, m)
		}
	}
	if len(ms) == 0 {
		ms = []string{DefaultIngestionMarker}
	}
	return &Builder{markers: ms}
}

// IsIngestion reports whether m is a system message starting with a marker.
func (b *Builder) IsIngestion(m Message) bool {
	if m.Role != RoleSystem {
		return false
	}
	text := ExtractText(m)
	for _, marker := range b.markers {
		if strings.HasPrefix(text, marker) {
			return true
		}
	}
	return false
}

// Build pairs an ascending sequence into turns and returns them most
// recent first.
//
// A user message, or an ingestion system message, opens a turn. When the
// next message in the sequence is an assistant message its text becomes
// the response, whichever conversation it came from. An assistant message that
// does not directly follow a prompt is not attached to any turn; such
// replies do not appear in the turn list at all.
//
// Build is pure: the same input always yields the same turns.
func (b *Builder) Build(ascending []AnnotatedMessage) []Turn {
	var turns []Turn
	for i, msg := range ascending {
		kind, ok := b.kindOf(msg.Message)
		if !ok {
			continue
		}

		turn := Turn{
			ID:                identityOf(msg),
			Kind:              kind,
			Prompt:            ExtractText(msg.Message),
			CreatedAt:         msg.CreatedAt,
			ConversationID:    msg.ConversationID,
			ConversationTitle: msg.ConversationTitle,
		}
		if i+1 < len(ascending) {
			next := ascending[i+1]
			if next.Role == RoleAssistant {
				turn.Response = ExtractText(next.Message)
			}
		}
		turns = append(turns, turn)
	}

	slices.Reverse(turns)
	return turns
}

func (b *Builder) kindOf(m Message) (TurnKind, bool) {
	switch {
	case m.Role == RoleUser:
		return TurnPrompt, true
	case b.IsIngestion(m):
		return TurnIngestion, true
	default:
		return "", false
	}
}

func identityOf(m AnnotatedMessage) Identity {
	if m.ID != "" {
		return Identified(m.ID)
	}
	return SyntheticIndex(m.ConversationID, m.Position)
}

// FindTurn returns the turn with the given identity.
func FindTurn(turns []Turn, id Identity) (Turn, bool) {
	for _, t := range turns {
		if t.ID == id {
			return t, true
		}
	}
	return Turn{}, false
}
