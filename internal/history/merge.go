// ABOUTME: Merges per-conversation histories into one time-ordered sequence
// ABOUTME: Descending for display, ascending (with deterministic tie-breaks) for pairing

package history

import (
	"cmp"
	"slices"
)

// Annotate tags each message with its conversation. order is the
// conversation's index in directory order and breaks timestamp ties.
func Annotate(conv Conversation, order int, msgs []Message) []AnnotatedMessage {
	out := make([]AnnotatedMessage, len(msgs))
	for i, m := range msgs {
		out[i] = AnnotatedMessage{
			Message:           m,
			ConversationID:    conv.ID,
			ConversationTitle: conv.Title,
			Position:          i,
			convOrder:         order,
		}
	}
	return out
}

// Merge concatenates the sequences in the given order and stable-sorts the
// result by timestamp, most recent first. Messages without a timestamp sort
// as time zero and keep their relative order.
func Merge(seqs ...[]AnnotatedMessage) []AnnotatedMessage {
	var merged []AnnotatedMessage
	for _, s := range seqs {
		merged = append(merged, s...)
	}
	slices.SortStableFunc(merged, func(a, b AnnotatedMessage) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return merged
}

// Ascending returns the pairing order: oldest first, with ties broken by
// conversation order and then position, so the result does not depend on
// the order in which fetches completed.
func Ascending(msgs []AnnotatedMessage) []AnnotatedMessage {
	out := slices.Clone(msgs)
	slices.SortStableFunc(out, func(a, b AnnotatedMessage) int {
		return cmp.Or(
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.convOrder, b.convOrder),
			cmp.Compare(a.Position, b.Position),
		)
	})
	return out
}

// SplitByConversation groups a merged sequence by conversation id, keeping
// the relative order of each group.
func SplitByConversation(msgs []AnnotatedMessage) map[string][]AnnotatedMessage {
	out := make(map[string][]AnnotatedMessage)
	for _, m := range msgs {
		out[m.ConversationID] = append(out[m.ConversationID], m)
	}
	return out
}
