// ABOUTME: Tests for the engine's refresh queue, send worker, uploads and subscriptions
// ABOUTME: Uses an in-memory backend whose calls can be gated and failed per conversation

package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/backend"
	"github.com/2389/coven-chat/internal/history"
	"github.com/2389/coven-chat/internal/view"
)

type sentTurn struct {
	text           string
	conversationID string
}

type fakeBackend struct {
	mu         sync.Mutex
	convs      []history.Conversation
	histories  map[string][]history.Message
	listErr    error
	historyErr map[string]error
	listGate   chan struct{}
	sendGate   chan struct{}
	sendErr    error
	replyConv  string
	sent       []sentTurn

	listCalls atomic.Int32
	sendCalls atomic.Int32
}

func newFakeBackend() *fakeBackend {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return &fakeBackend{
		convs: []history.Conversation{
			{ID: "c1", Title: "Weather"},
			{ID: "c2", Title: "Recipes"},
		},
		histories: map[string][]history.Message{
			"c1": {
				{ID: "m1", Role: history.RoleUser, Content: "Is it sunny?", CreatedAt: t0},
				{ID: "m2", Role: history.RoleAssistant, Content: "Yes.", CreatedAt: t0.Add(time.Minute)},
			},
			"c2": {
				{ID: "m3", Role: history.RoleUser, Content: "Pancakes?", CreatedAt: t0.Add(2 * time.Minute)},
				{ID: "m4", Role: history.RoleAssistant, Content: "Flour, eggs, milk.", CreatedAt: t0.Add(3 * time.Minute)},
			},
		},
		historyErr: map[string]error{},
	}
}

func (f *fakeBackend) ListConversations(ctx context.Context) ([]history.Conversation, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	gate := f.listGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]history.Conversation(nil), f.convs...), nil
}

func (f *fakeBackend) GetHistory(ctx context.Context, conversationID string) ([]history.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.historyErr[conversationID]; err != nil {
		return nil, err
	}
	return append([]history.Message(nil), f.histories[conversationID]...), nil
}

func (f *fakeBackend) SendTurn(ctx context.Context, text, conversationID string) (backend.Reply, error) {
	f.sendCalls.Add(1)
	f.mu.Lock()
	gate := f.sendGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return backend.Reply{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentTurn{text: text, conversationID: conversationID})
	if f.sendErr != nil {
		return backend.Reply{}, f.sendErr
	}
	convID := conversationID
	if convID == "" {
		convID = f.replyConv
	}
	return backend.Reply{Text: "reply to " + text, ConversationID: convID}, nil
}

func (f *fakeBackend) sentTurns() []sentTurn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentTurn(nil), f.sent...)
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type fakeUploader struct {
	err   error
	calls []UploadRequest
}

func (u *fakeUploader) SendMultiModalTurn(ctx context.Context, question string, file *backend.File, conversationID string) (backend.MultiModalReply, error) {
	u.calls = append(u.calls, UploadRequest{Question: question, File: file})
	if u.err != nil {
		return backend.MultiModalReply{}, u.err
	}
	return backend.MultiModalReply{Answer: "summary of " + file.Name, ConversationID: "c1"}, nil
}

// gatedUploader answers in c1 once gate is closed. started is closed when
// the first upload reaches it.
type gatedUploader struct {
	gate    chan struct{}
	started chan struct{}
}

func (u *gatedUploader) SendMultiModalTurn(ctx context.Context, question string, file *backend.File, conversationID string) (backend.MultiModalReply, error) {
	close(u.started)
	select {
	case <-u.gate:
	case <-ctx.Done():
		return backend.MultiModalReply{}, ctx.Err()
	}
	return backend.MultiModalReply{Answer: "summary of " + file.Name, ConversationID: conversationID}, nil
}

func newEngine(t *testing.T, b *fakeBackend, opts Options) *Engine {
	t.Helper()
	e := New(b, &fakeUploader{}, opts)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func liveTexts(b view.Buffer) []string {
	var out []string
	for _, m := range b.Messages() {
		out = append(out, m.Text)
	}
	return out
}

func TestRefresh_BuildsTurnsAndSelectsFirstConversation(t *testing.T) {
	e := newEngine(t, newFakeBackend(), Options{})

	require.NoError(t, e.Refresh(t.Context()))

	s := e.Snapshot()
	assert.Equal(t, uint64(1), s.Generation)
	assert.Equal(t, "c1", s.ActiveConversationID)
	assert.False(t, s.Loading.Directory)
	assert.False(t, s.Loading.History)
	assert.NoError(t, s.Errors.History)

	turns := e.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "Pancakes?", turns[0].Prompt)
	assert.Equal(t, "Flour, eggs, milk.", turns[0].Response)
	assert.Equal(t, "Recipes", turns[0].ConversationTitle)
	assert.Equal(t, "Is it sunny?", turns[1].Prompt)
}

func TestRefresh_FailingConversationExposesNoTurns(t *testing.T) {
	b := newFakeBackend()
	b.historyErr["c2"] = errors.New("boom")
	e := newEngine(t, b, Options{})

	err := e.Refresh(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, history.ErrHistoryFetchFailed)

	var hfe *history.HistoryFetchError
	require.ErrorAs(t, err, &hfe)
	assert.Equal(t, "c2", hfe.ConversationID)

	s := e.Snapshot()
	assert.Empty(t, s.Turns, "no partial history from the healthy conversation")
	assert.ErrorIs(t, s.Errors.History, history.ErrHistoryFetchFailed)
	assert.Equal(t, uint64(0), s.Generation)
	assert.Equal(t, "c1", s.ActiveConversationID, "default selection comes from the directory")
}

func TestSend_TargetsDefaultConversationWhileHistoryFails(t *testing.T) {
	b := newFakeBackend()
	b.historyErr["c2"] = errors.New("boom")
	e := newEngine(t, b, Options{})
	require.Error(t, e.Refresh(t.Context()))

	require.NoError(t, e.Send(t.Context(), "still there?"))
	assert.Equal(t, []sentTurn{{text: "still there?", conversationID: "c1"}}, b.sentTurns())
}

func TestRefresh_FailureKeepsLastGoodSnapshot(t *testing.T) {
	b := newFakeBackend()
	e := newEngine(t, b, Options{})
	require.NoError(t, e.Refresh(t.Context()))
	good := e.Snapshot()

	b.set(func(f *fakeBackend) {
		f.historyErr["c1"] = errors.New("timeout")
		f.histories["c2"] = append(f.histories["c2"], history.Message{ID: "m5", Role: history.RoleUser, Content: "new"})
	})
	require.Error(t, e.Refresh(t.Context()))

	s := e.Snapshot()
	assert.Equal(t, good.Turns, s.Turns)
	assert.Equal(t, good.Conversations, s.Conversations)
	assert.Equal(t, good.Generation, s.Generation)
	assert.Error(t, s.Errors.History)

	// Recovery clears the flag and applies the new history.
	b.set(func(f *fakeBackend) { delete(f.historyErr, "c1") })
	require.NoError(t, e.Refresh(t.Context()))
	s = e.Snapshot()
	assert.NoError(t, s.Errors.History)
	assert.Len(t, s.Turns, 3)
}

func TestRefresh_DirectoryFailure(t *testing.T) {
	b := newFakeBackend()
	e := newEngine(t, b, Options{})
	require.NoError(t, e.Refresh(t.Context()))

	b.set(func(f *fakeBackend) { f.listErr = errors.New("connection refused") })
	err := e.Refresh(t.Context())
	assert.ErrorIs(t, err, history.ErrDirectoryUnavailable)

	s := e.Snapshot()
	assert.ErrorIs(t, s.Errors.Directory, history.ErrDirectoryUnavailable)
	assert.Empty(t, s.Conversations, "no conversations known")
	assert.Len(t, s.Turns, 2)
	assert.Equal(t, "c1", s.ActiveConversationID)

	b.set(func(f *fakeBackend) { f.listErr = nil })
	require.NoError(t, e.Refresh(t.Context()))
	s = e.Snapshot()
	assert.NoError(t, s.Errors.Directory)
	assert.Len(t, s.Conversations, 2)
}

func TestRefresh_ConcurrentCallsCoalesce(t *testing.T) {
	b := newFakeBackend()
	gate := make(chan struct{})
	b.listGate = gate
	e := newEngine(t, b, Options{})

	var wg sync.WaitGroup
	wg.Go(func() { assert.NoError(t, e.Refresh(t.Context())) })

	require.Eventually(t, func() bool { return b.listCalls.Load() == 1 }, time.Second, time.Millisecond)

	for range 5 {
		wg.Go(func() { assert.NoError(t, e.Refresh(t.Context())) })
	}
	require.Eventually(t, func() bool {
		e.refreshMu.Lock()
		defer e.refreshMu.Unlock()
		return e.pending != nil
	}, time.Second, time.Millisecond)

	close(gate)
	wg.Wait()

	assert.Equal(t, int32(2), b.listCalls.Load(), "one running cycle plus one shared pending cycle")
	assert.Equal(t, uint64(2), e.Snapshot().Generation)
}

func TestRefresh_CallerContextDoesNotCancelCycle(t *testing.T) {
	b := newFakeBackend()
	gate := make(chan struct{})
	b.listGate = gate
	e := newEngine(t, b, Options{})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, e.Refresh(ctx), context.Canceled)

	close(gate)
	require.NoError(t, e.Refresh(t.Context()))
	assert.NotEmpty(t, e.Turns())
}

func TestSend_EmptyInput(t *testing.T) {
	e := newEngine(t, newFakeBackend(), Options{})
	assert.ErrorIs(t, e.Send(t.Context(), "   \n"), ErrEmptyInput)
	assert.Equal(t, 0, e.Snapshot().Live.Len())
}

func TestSend_AppendsPromptAndReply(t *testing.T) {
	b := newFakeBackend()
	e := newEngine(t, b, Options{})
	require.NoError(t, e.Refresh(t.Context()))
	e.SetInput("  hello  ")

	require.NoError(t, e.Send(t.Context(), "  hello  "))

	s := e.Snapshot()
	assert.Equal(t, []string{"hello", "reply to hello"}, liveTexts(s.Live))
	assert.Empty(t, s.Input)
	assert.False(t, s.Sending())
	assert.Equal(t, []sentTurn{{text: "hello", conversationID: "c1"}}, b.sentTurns())
}

func TestSend_DoubleSubmitRepliesFollowTheirPrompts(t *testing.T) {
	b := newFakeBackend()
	gate := make(chan struct{})
	b.sendGate = gate
	e := newEngine(t, b, Options{})

	var wg sync.WaitGroup
	wg.Go(func() { assert.NoError(t, e.Send(t.Context(), "X")) })
	require.Eventually(t, func() bool { return e.Snapshot().Live.Len() == 1 }, time.Second, time.Millisecond)
	wg.Go(func() { assert.NoError(t, e.Send(t.Context(), "Y")) })
	require.Eventually(t, func() bool { return e.Snapshot().Loading.Sends == 2 }, time.Second, time.Millisecond)

	close(gate)
	wg.Wait()

	assert.Equal(t, []string{"X", "reply to X", "Y", "reply to Y"}, liveTexts(e.Snapshot().Live))
	sent := b.sentTurns()
	require.Len(t, sent, 2)
	assert.Equal(t, "X", sent[0].text)
	assert.Equal(t, "Y", sent[1].text)
}

func TestSend_NewConversationIsUsedByQueuedSend(t *testing.T) {
	b := newFakeBackend()
	b.convs = nil
	b.replyConv = "conv_new"
	e := newEngine(t, b, Options{})

	require.NoError(t, e.Send(t.Context(), "first"))
	require.NoError(t, e.Send(t.Context(), "second"))

	sent := b.sentTurns()
	require.Len(t, sent, 2)
	assert.Equal(t, "", sent[0].conversationID)
	assert.Equal(t, "conv_new", sent[1].conversationID)
	assert.Equal(t, "conv_new", e.Snapshot().ActiveConversationID)
}

func TestSend_FailureAnnotatesPrompt(t *testing.T) {
	b := newFakeBackend()
	b.sendErr = &backend.StatusError{Op: "send turn", StatusCode: 502, Body: "bad gateway"}
	e := newEngine(t, b, Options{})
	e.SetInput("hi")

	err := e.Send(t.Context(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSendFailed)

	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "backend returned status 502", se.Reason)

	var status *backend.StatusError
	assert.ErrorAs(t, err, &status)

	s := e.Snapshot()
	msgs := s.Live.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Contains(t, msgs[0].Err, "502")
	assert.ErrorIs(t, s.Errors.Send, ErrSendFailed)
	assert.Equal(t, "hi", s.Input, "input kept for a retry")
	assert.False(t, s.Sending())
}

func TestSend_RetractOnFailure(t *testing.T) {
	b := newFakeBackend()
	b.sendErr = errors.New("offline")
	e := newEngine(t, b, Options{RetractOnFailure: true})

	require.ErrorIs(t, e.Send(t.Context(), "hi"), ErrSendFailed)
	assert.Equal(t, 0, e.Snapshot().Live.Len())
}

func TestSend_ClearsSelectionAndTargetsTurnConversation(t *testing.T) {
	b := newFakeBackend()
	e := newEngine(t, b, Options{})
	require.NoError(t, e.Refresh(t.Context()))

	turn := e.Turns()[0]
	require.NoError(t, e.Select(turn.ID))
	s := e.Snapshot()
	assert.Equal(t, view.ModeInspecting, s.Selection.Mode)
	assert.Equal(t, "Pancakes?", s.Input)

	require.NoError(t, e.Send(t.Context(), s.Input+" with syrup"))

	s = e.Snapshot()
	assert.Equal(t, view.ModeLive, s.Selection.Mode)
	assert.Equal(t, "c2", b.sentTurns()[0].conversationID)
}

func TestSend_SelectDuringSendKeepsTarget(t *testing.T) {
	b := newFakeBackend()
	gate := make(chan struct{})
	e := newEngine(t, b, Options{})
	require.NoError(t, e.Refresh(t.Context()))
	require.Equal(t, "c1", e.Snapshot().ActiveConversationID)
	b.set(func(f *fakeBackend) { f.sendGate = gate })

	var wg sync.WaitGroup
	wg.Go(func() { assert.NoError(t, e.Send(t.Context(), "in flight")) })
	require.Eventually(t, func() bool { return b.sendCalls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, e.Select(history.Identified("m3")))
	assert.Equal(t, "c2", e.Snapshot().ActiveConversationID)

	close(gate)
	wg.Wait()

	s := e.Snapshot()
	assert.Equal(t, "c2", s.ActiveConversationID, "reply must not undo the selection")
	assert.Equal(t, []string{"in flight", "reply to in flight"}, liveTexts(s.Live))

	require.NoError(t, e.Send(t.Context(), s.Input+" edited"))
	assert.Equal(t, []sentTurn{
		{text: "in flight", conversationID: "c1"},
		{text: "Pancakes? edited", conversationID: "c2"},
	}, b.sentTurns())
}

func TestUpload_SelectDuringUploadKeepsTarget(t *testing.T) {
	b := newFakeBackend()
	up := &gatedUploader{gate: make(chan struct{}), started: make(chan struct{})}
	e := New(b, up, Options{})
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.Refresh(t.Context()))

	file := &backend.File{Name: "notes.txt", MIMEType: "text/plain", Data: []byte("hello")}
	var wg sync.WaitGroup
	wg.Go(func() { assert.NoError(t, e.Upload(t.Context(), UploadRequest{File: file})) })
	<-up.started

	require.NoError(t, e.Select(history.Identified("m3")))
	close(up.gate)
	wg.Wait()

	assert.Equal(t, "c2", e.Snapshot().ActiveConversationID)
}

func TestSend_RefreshAfterSend(t *testing.T) {
	b := newFakeBackend()
	e := newEngine(t, b, Options{RefreshAfterSend: true})
	require.NoError(t, e.Refresh(t.Context()))

	require.NoError(t, e.Send(t.Context(), "hi"))
	require.Eventually(t, func() bool { return e.Snapshot().Generation == 2 }, time.Second, time.Millisecond)
}

func TestSelectAndBack(t *testing.T) {
	e := newEngine(t, newFakeBackend(), Options{})
	require.NoError(t, e.Refresh(t.Context()))

	assert.ErrorIs(t, e.Back(), view.ErrIllegalTransition)
	assert.ErrorIs(t, e.Select(history.Identified("nope")), view.ErrTurnNotFound)

	require.NoError(t, e.Select(history.Identified("m1")))
	assert.Len(t, e.Compose(), 2)
	require.NoError(t, e.Back())
	assert.Empty(t, e.Compose())
}

func TestUseConversation(t *testing.T) {
	e := newEngine(t, newFakeBackend(), Options{})
	require.NoError(t, e.Refresh(t.Context()))

	require.NoError(t, e.UseConversation("c2"))
	assert.Equal(t, "c2", e.Snapshot().ActiveConversationID)

	assert.ErrorIs(t, e.UseConversation("missing"), ErrUnknownConversation)
	assert.Equal(t, "c2", e.Snapshot().ActiveConversationID)

	require.NoError(t, e.UseConversation(""))
	assert.Empty(t, e.Snapshot().ActiveConversationID)
}

func TestUpload(t *testing.T) {
	b := newFakeBackend()
	up := &fakeUploader{}
	e := New(b, up, Options{})
	t.Cleanup(func() { _ = e.Close() })

	file := &backend.File{Name: "notes.txt", MIMEType: "text/plain", Data: []byte("hello")}
	require.NoError(t, e.Upload(t.Context(), UploadRequest{Question: "summarize", File: file}))

	s := e.Snapshot()
	assert.Equal(t, []string{"summarize\n[attached: notes.txt]", "summary of notes.txt"}, liveTexts(s.Uploads))
	assert.Equal(t, 0, s.Live.Len())
	assert.Equal(t, "c1", s.ActiveConversationID)
	require.Len(t, up.calls, 1)

	assert.ErrorIs(t, e.Upload(t.Context(), UploadRequest{}), ErrEmptyInput)
}

func TestUpload_Failure(t *testing.T) {
	up := &fakeUploader{err: errors.New("too large")}
	e := New(newFakeBackend(), up, Options{})
	t.Cleanup(func() { _ = e.Close() })

	file := &backend.File{Name: "scan.png", MIMEType: "image/png", Data: []byte{1}}
	err := e.Upload(t.Context(), UploadRequest{File: file})
	require.ErrorIs(t, err, ErrUploadFailed)

	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "scan.png", ue.FileName)

	msgs := e.Snapshot().Uploads.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Err, "too large")
}

func TestUpload_NotConfigured(t *testing.T) {
	e := New(newFakeBackend(), nil, Options{})
	t.Cleanup(func() { _ = e.Close() })

	err := e.Upload(t.Context(), UploadRequest{Question: "hi"})
	assert.ErrorIs(t, err, ErrNoUploader)
}

func TestSubscribe_ReceivesRefresh(t *testing.T) {
	e := newEngine(t, newFakeBackend(), Options{})
	events := e.Subscribe(t.Context())

	require.NoError(t, e.Refresh(t.Context()))

	var kinds []EventKind
	for len(kinds) < 2 {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Equal(t, []EventKind{EventRefreshStarted, EventRefreshed}, kinds)
}

func TestClose(t *testing.T) {
	e := New(newFakeBackend(), nil, Options{})
	events := e.Subscribe(context.Background())
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, open := <-events
	assert.False(t, open)
	assert.ErrorIs(t, e.Send(t.Context(), "hi"), ErrClosed)
	assert.ErrorIs(t, e.Refresh(t.Context()), ErrClosed)
}

func TestClose_FailsQueuedSends(t *testing.T) {
	b := newFakeBackend()
	b.sendGate = make(chan struct{})
	e := New(b, nil, Options{})

	var wg sync.WaitGroup
	wg.Go(func() { assert.Error(t, e.Send(t.Context(), "X")) })
	require.Eventually(t, func() bool { return b.sendCalls.Load() == 1 }, time.Second, time.Millisecond)
	wg.Go(func() { assert.Error(t, e.Send(t.Context(), "Y")) })
	require.Eventually(t, func() bool { return e.Snapshot().Loading.Sends == 2 }, time.Second, time.Millisecond)

	require.NoError(t, e.Close())
	wg.Wait()

	s := e.Snapshot()
	assert.Equal(t, 0, s.Loading.Sends)
	assert.False(t, s.Sending())
	msgs := s.Live.Messages()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.NotEmpty(t, m.Err, "prompt %q should carry its failure", m.Text)
	}
	assert.ErrorIs(t, s.Errors.Send, ErrSendFailed)
}
