// ABOUTME: ViewState, the single immutable record threaded through every engine operation
// ABOUTME: Holds history snapshot, live buffers, selection, active conversation, input and status flags

package view

import (
	"slices"

	"github.com/2389/coven-chat/internal/history"
)

// Mode is the state of the selection/resend machine.
type Mode int

const (
	// ModeLive shows the live session stream.
	ModeLive Mode = iota
	// ModeInspecting shows a single past turn instead of the live stream.
	ModeInspecting
)

func (m Mode) String() string {
	if m == ModeInspecting {
		return "inspecting"
	}
	return "live"
}

// Selection names the turn being inspected, if any.
type Selection struct {
	Mode           Mode
	TurnID         history.Identity
	ConversationID string
}

// Inspecting reports whether a past turn is selected.
func (s Selection) Inspecting() bool {
	return s.Mode == ModeInspecting
}

// Loading tracks in-progress work per fetch category.
type Loading struct {
	Directory bool
	History   bool
	Sends     int // queued or in-flight sends
	Uploads   int // queued or in-flight uploads
}

// Errors holds the last failure per category; nil means the last attempt succeeded.
type Errors struct {
	Directory error
	History   error
	Send      error
	Upload    error
}

// State is an immutable snapshot of everything the host UI renders.
// Methods return modified copies; slices are never shared with a previous
// value after a change.
type State struct {
	Conversations        []history.Conversation
	Turns                []history.Turn
	Live                 Buffer
	Uploads              Buffer
	Selection            Selection
	ActiveConversationID string
	Input                string
	Loading              Loading
	Errors               Errors
	// Generation counts successfully applied refresh cycles.
	Generation uint64
}

// Sending reports whether any send is queued or in flight.
func (s State) Sending() bool {
	return s.Loading.Sends > 0
}

// Uploading reports whether any upload is queued or in flight.
func (s State) Uploading() bool {
	return s.Loading.Uploads > 0
}

// WithHistory returns a state carrying a freshly built history snapshot.
func (s State) WithHistory(convs []history.Conversation, turns []history.Turn) State {
	s.Conversations = slices.Clone(convs)
	s.Turns = slices.Clone(turns)
	s.Generation++
	return s
}

// SelectedTurn returns the turn being inspected. It reports false when in
// live mode or when the selected turn is no longer in the history snapshot.
func (s State) SelectedTurn() (history.Turn, bool) {
	if !s.Selection.Inspecting() {
		return history.Turn{}, false
	}
	return history.FindTurn(s.Turns, s.Selection.TurnID)
}

// Conversation returns the cached conversation with the given id.
func (s State) Conversation(id string) (history.Conversation, bool) {
	idx := slices.IndexFunc(s.Conversations, func(c history.Conversation) bool { return c.ID == id })
	if idx < 0 {
		return history.Conversation{}, false
	}
	return s.Conversations[idx], true
}
