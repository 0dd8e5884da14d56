// ABOUTME: Engine owns the view state and runs refreshes, sends and uploads against the backend
// ABOUTME: Snapshots are swapped atomically; writers are serialized by a mutex

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/2389/coven-chat/internal/backend"
	"github.com/2389/coven-chat/internal/history"
	"github.com/2389/coven-chat/internal/view"
)

const jobQueueSize = 64

// Backend is the assistant backend the engine talks to.
type Backend interface {
	history.ConversationLister
	history.HistoryGetter
	SendTurn(ctx context.Context, text, conversationID string) (backend.Reply, error)
}

// MultiModalSender answers a question about an uploaded file.
type MultiModalSender interface {
	SendMultiModalTurn(ctx context.Context, question string, file *backend.File, conversationID string) (backend.MultiModalReply, error)
}

// Options configures an Engine.
type Options struct {
	// IngestionMarkers are text prefixes that make a system message open a turn.
	IngestionMarkers []string
	// RefreshAfterSend triggers a history refresh after each successful send or upload.
	RefreshAfterSend bool
	// RetractOnFailure removes the optimistic prompt when its send fails
	// instead of keeping it annotated with the error.
	RetractOnFailure bool
	Logger           *slog.Logger
}

// Engine is the conversation aggregation engine behind a chat UI.
type Engine struct {
	backend   Backend
	uploader  MultiModalSender
	directory *history.Directory
	fetcher   *history.Fetcher
	builder   *history.Builder
	opts      Options
	logger    *slog.Logger

	state atomic.Pointer[view.State]
	mu    sync.Mutex // serializes snapshot writers

	events *broadcaster

	refreshMu sync.Mutex
	running   *cycle
	pending   *cycle

	jobs   chan job
	jobsMu sync.RWMutex // held exclusively by Close while draining jobs

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates an engine and starts its send worker. uploader may be nil, in
// which case Upload returns ErrNoUploader.
func New(b Backend, uploader MultiModalSender, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		backend:   b,
		uploader:  uploader,
		directory: history.NewDirectory(b, logger),
		fetcher:   history.NewFetcher(b, logger),
		builder:   history.NewBuilder(opts.IngestionMarkers...),
		opts:      opts,
		logger:    logger.With("component", "engine"),
		events:    newBroadcaster(logger),
		jobs:      make(chan job, jobQueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	e.state.Store(&view.State{})

	e.wg.Go(e.worker)
	return e
}

// Close stops the worker, waits for in-flight work, fails queued sends and
// closes subscriber channels.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		// Holding refreshMu keeps requestRefresh from starting a cycle
		// after the wait group is being waited on.
		e.refreshMu.Lock()
		e.cancel()
		e.refreshMu.Unlock()

		e.jobsMu.Lock()
		e.wg.Wait()
		e.drainJobs()
		e.jobsMu.Unlock()

		e.events.close()
		e.logger.Debug("engine closed")
	})
	return nil
}

// Snapshot returns the current view state.
func (e *Engine) Snapshot() view.State {
	return *e.state.Load()
}

// Compose returns what the main pane should render right now.
func (e *Engine) Compose() []view.Renderable {
	return e.Snapshot().Compose()
}

// Turns returns the history turns, most recent first.
func (e *Engine) Turns() []history.Turn {
	return slices.Clone(e.Snapshot().Turns)
}

// Subscribe returns a channel of state changes. It is closed when ctx ends
// or the engine is closed.
func (e *Engine) Subscribe(ctx context.Context) <-chan Event {
	return e.events.subscribe(ctx)
}

// Select inspects a past turn: the main pane shows only that turn, the input
// is pre-filled with its prompt and its conversation becomes active.
func (e *Engine) Select(id history.Identity) error {
	return e.transition(EventSelection, func(s view.State) (view.State, error) {
		return view.Select(s, id)
	})
}

// Back leaves inspection and returns to the live view.
func (e *Engine) Back() error {
	return e.transition(EventSelection, view.Back)
}

// SetInput replaces the input text.
func (e *Engine) SetInput(text string) {
	e.update(EventInput, func(s view.State) view.State {
		s.Input = text
		return s
	})
}

// UseConversation makes id the target of later sends. An empty id starts a
// new conversation on the next send.
func (e *Engine) UseConversation(id string) error {
	return e.transition(EventSelection, func(s view.State) (view.State, error) {
		if id != "" {
			if _, ok := s.Conversation(id); !ok {
				return s, fmt.Errorf("%w: %s", ErrUnknownConversation, id)
			}
		}
		s.ActiveConversationID = id
		return s, nil
	})
}

// update applies fn to the current state, stores the result and publishes it.
func (e *Engine) update(kind EventKind, fn func(view.State) view.State) view.State {
	e.mu.Lock()
	next := fn(*e.state.Load())
	e.state.Store(&next)
	e.mu.Unlock()

	e.events.publish(Event{Kind: kind, State: next})
	return next
}

// transition is update for fallible state-machine steps. On error nothing
// is stored or published.
func (e *Engine) transition(kind EventKind, fn func(view.State) (view.State, error)) error {
	e.mu.Lock()
	next, err := fn(*e.state.Load())
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.state.Store(&next)
	e.mu.Unlock()

	e.events.publish(Event{Kind: kind, State: next})
	return nil
}
