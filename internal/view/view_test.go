// ABOUTME: Tests for the live buffer, selection state machine, composer, and topics
// ABOUTME: Asserts selection replaces the live view and Back restores it unchanged

package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/history"
)

func sampleTurns() []history.Turn {
	return []history.Turn{
		{
			ID:             history.Identified("m3"),
			Kind:           history.TurnPrompt,
			Prompt:         "What is the weather?",
			Response:       "Sunny.",
			ConversationID: "c2",
		},
		{
			ID:             history.SyntheticIndex("c1", 0),
			Kind:           history.TurnPrompt,
			Prompt:         "Hello",
			ConversationID: "c1",
		},
	}
}

func liveState() State {
	s := State{Turns: sampleTurns(), ActiveConversationID: "c1", Input: "draft"}
	s, _ = Submit(s, "typed one")
	s.Live = s.Live.Append(NewLiveMessage(history.RoleAssistant, "reply one", OriginTyped))
	s, _ = SubmitUpload(s, "[file] notes.txt")
	return s
}

func TestBuffer_AppendDoesNotShareStorage(t *testing.T) {
	a := NewBuffer(NewLiveMessage(history.RoleUser, "one", OriginTyped))
	b := a.Append(NewLiveMessage(history.RoleUser, "two", OriginTyped))
	c := a.Append(NewLiveMessage(history.RoleUser, "three", OriginTyped))

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, "two", b.Messages()[1].Text)
	assert.Equal(t, "three", c.Messages()[1].Text)
}

func TestBuffer_InsertAfterKeepsRepliesUnderTheirPrompts(t *testing.T) {
	x := NewLiveMessage(history.RoleUser, "X", OriginTyped)
	y := NewLiveMessage(history.RoleUser, "Y", OriginTyped)
	b := NewBuffer(x, y)

	b = b.InsertAfter(x.ID, NewLiveMessage(history.RoleAssistant, "reply X", OriginTyped))
	b = b.InsertAfter(y.ID, NewLiveMessage(history.RoleAssistant, "reply Y", OriginTyped))

	var texts []string
	for _, m := range b.Messages() {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"X", "reply X", "Y", "reply Y"}, texts)
}

func TestBuffer_InsertAfterUnknownAppends(t *testing.T) {
	b := NewBuffer(NewLiveMessage(history.RoleUser, "X", OriginTyped))
	b = b.InsertAfter("missing", NewLiveMessage(history.RoleAssistant, "late", OriginTyped))
	assert.Equal(t, "late", b.Messages()[1].Text)
}

func TestBuffer_RemoveAndAnnotate(t *testing.T) {
	x := NewLiveMessage(history.RoleUser, "X", OriginTyped)
	y := NewLiveMessage(history.RoleUser, "Y", OriginTyped)
	b := NewBuffer(x, y)

	annotated := b.Annotate(x.ID, "send failed")
	assert.Equal(t, "send failed", annotated.Messages()[0].Err)
	assert.Empty(t, b.Messages()[0].Err, "original buffer must not change")

	removed := b.Remove(x.ID)
	require.Equal(t, 1, removed.Len())
	assert.Equal(t, "Y", removed.Messages()[0].Text)
	assert.Equal(t, 2, b.Len())
}

func TestNewLiveMessage_IDsAreTimeOrdered(t *testing.T) {
	a := NewLiveMessage(history.RoleUser, "a", OriginTyped)
	time.Sleep(2 * time.Millisecond)
	b := NewLiveMessage(history.RoleUser, "b", OriginTyped)
	assert.Less(t, a.ID, b.ID)
}

func TestSelect_PrefillsInputAndSwitchesConversation(t *testing.T) {
	s := liveState()

	next, err := Select(s, history.Identified("m3"))
	require.NoError(t, err)

	assert.Equal(t, ModeInspecting, next.Selection.Mode)
	assert.Equal(t, "c2", next.Selection.ConversationID)
	assert.Equal(t, "c2", next.ActiveConversationID)
	assert.Equal(t, "What is the weather?", next.Input)

	// The original value is untouched.
	assert.Equal(t, ModeLive, s.Selection.Mode)
	assert.Equal(t, "draft", s.Input)
}

func TestSelect_EmptyPromptKeepsInput(t *testing.T) {
	s := State{
		Turns: []history.Turn{{ID: history.Identified("e"), ConversationID: "c1"}},
		Input: "keep me",
	}
	next, err := Select(s, history.Identified("e"))
	require.NoError(t, err)
	assert.Equal(t, "keep me", next.Input)
}

func TestSelect_UnknownTurn(t *testing.T) {
	s := liveState()
	next, err := Select(s, history.Identified("nope"))
	assert.ErrorIs(t, err, ErrTurnNotFound)
	assert.Equal(t, s, next)
}

func TestSelect_WhileInspectingIsIllegal(t *testing.T) {
	s, err := Select(liveState(), history.Identified("m3"))
	require.NoError(t, err)

	next, err := Select(s, history.SyntheticIndex("c1", 0))
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, s, next)
}

func TestBack_WhileLiveIsIllegal(t *testing.T) {
	s := liveState()
	next, err := Back(s)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, s, next)
}

func TestSelectThenBack_RestoresLiveViewExactly(t *testing.T) {
	s := liveState()
	before := s.Compose()

	inspecting, err := Select(s, history.Identified("m3"))
	require.NoError(t, err)
	back, err := Back(inspecting)
	require.NoError(t, err)

	assert.Equal(t, before, back.Compose())
	assert.Equal(t, ModeLive, back.Selection.Mode)
	// Back leaves the pre-filled input alone.
	assert.Equal(t, "What is the weather?", back.Input)
}

func TestSubmit_ClearsSelection(t *testing.T) {
	s, err := Select(liveState(), history.Identified("m3"))
	require.NoError(t, err)

	next, m := Submit(s, "edited question")

	assert.Equal(t, ModeLive, next.Selection.Mode)
	assert.Equal(t, "c2", next.ActiveConversationID, "resend targets the active conversation")
	msgs := next.Live.Messages()
	assert.Equal(t, m, msgs[len(msgs)-1])
	assert.Equal(t, history.RoleUser, m.Role)
}

func TestCompose_LiveModeRendersLiveThenUploads(t *testing.T) {
	s := liveState()
	out := s.Compose()

	require.Len(t, out, 3)
	assert.Equal(t, "typed one", out[0].Text)
	assert.Equal(t, SourceLive, out[0].Source)
	assert.Equal(t, "reply one", out[1].Text)
	assert.Equal(t, "[file] notes.txt", out[2].Text)
	assert.Equal(t, SourceUpload, out[2].Source)
}

func TestCompose_SelectionReplacesLiveView(t *testing.T) {
	s, err := Select(liveState(), history.Identified("m3"))
	require.NoError(t, err)

	out := s.Compose()

	require.Len(t, out, 2)
	for _, r := range out {
		assert.Equal(t, SourceTurn, r.Source)
	}
	assert.Equal(t, "What is the weather?", out[0].Text)
	assert.Equal(t, history.RoleUser, out[0].Role)
	assert.Equal(t, "Sunny.", out[1].Text)
	assert.Equal(t, history.RoleAssistant, out[1].Role)
}

func TestCompose_SelectedTurnWithoutResponse(t *testing.T) {
	s, err := Select(liveState(), history.SyntheticIndex("c1", 0))
	require.NoError(t, err)

	out := s.Compose()
	require.Len(t, out, 1)
	assert.Equal(t, "Hello", out[0].Text)
}

func TestCompose_VanishedSelectionFallsBackToLive(t *testing.T) {
	s, err := Select(liveState(), history.Identified("m3"))
	require.NoError(t, err)
	s = s.WithHistory(nil, nil)

	_, ok := s.SelectedTurn()
	assert.False(t, ok)
	assert.Len(t, s.Compose(), 3)
}

func TestState_WithHistoryBumpsGeneration(t *testing.T) {
	s := State{}
	convs := []history.Conversation{{ID: "c1"}}
	next := s.WithHistory(convs, sampleTurns())

	assert.Equal(t, uint64(1), next.Generation)
	convs[0].ID = "mutated"
	c, ok := next.Conversation("c1")
	assert.True(t, ok)
	assert.Equal(t, "c1", c.ID)
}

func TestTopic(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"empty", "", "Conversation"},
		{"short", "Hello there", "Hello there"},
		{"long", "one two three four five six seven eight", "one two three four five six…"},
		{"first line only", "Summary please\nwith details on the second line", "Summary please"},
		{"markdown stripped", "## **Quarterly** report", "Quarterly report"},
		{"link text", "See [the docs](https://example.com) now", "See the docs now"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Topic(tt.prompt))
		})
	}
}
