// ABOUTME: Selection/resend state machine: Live <-> Inspecting(turn, conversation)
// ABOUTME: Transitions are pure functions on State; illegal ones leave state unchanged

package view

import (
	"errors"
	"fmt"

	"github.com/2389/coven-chat/internal/history"
)

// ErrIllegalTransition is returned for transitions the machine does not allow.
var ErrIllegalTransition = errors.New("illegal selection transition")

// ErrTurnNotFound is returned when selecting a turn that is not in the snapshot.
var ErrTurnNotFound = errors.New("turn not found")

// Select moves Live -> Inspecting(t, c). The input is pre-filled with the
// turn's prompt (when it has one) and the active conversation becomes the
// turn's conversation.
func Select(s State, id history.Identity) (State, error) {
	if s.Selection.Inspecting() {
		return s, fmt.Errorf("%w: select while inspecting %s", ErrIllegalTransition, s.Selection.TurnID)
	}
	turn, ok := history.FindTurn(s.Turns, id)
	if !ok {
		return s, fmt.Errorf("%w: %s", ErrTurnNotFound, id)
	}

	s.Selection = Selection{
		Mode:           ModeInspecting,
		TurnID:         turn.ID,
		ConversationID: turn.ConversationID,
	}
	if turn.Prompt != "" {
		s.Input = turn.Prompt
	}
	s.ActiveConversationID = turn.ConversationID
	return s, nil
}

// Back moves Inspecting -> Live. The input is left as it is.
func Back(s State) (State, error) {
	if !s.Selection.Inspecting() {
		return s, fmt.Errorf("%w: back while live", ErrIllegalTransition)
	}
	s.Selection = Selection{}
	return s, nil
}

// Submit records a new outbound prompt: the message is appended to the live
// buffer and any selection is cleared (Inspecting -> Live). The send itself
// targets whatever conversation is active when it is dispatched.
func Submit(s State, text string) (State, LiveMessage) {
	m := NewLiveMessage(history.RoleUser, text, OriginTyped)
	s.Live = s.Live.Append(m)
	s.Selection = Selection{}
	return s, m
}

// SubmitUpload records an upload prompt in the upload buffer and clears any
// selection.
func SubmitUpload(s State, text string) (State, LiveMessage) {
	m := NewLiveMessage(history.RoleUser, text, OriginUpload)
	s.Uploads = s.Uploads.Append(m)
	s.Selection = Selection{}
	return s, m
}
