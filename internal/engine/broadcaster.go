// ABOUTME: In-memory fan-out of engine events to UI subscribers
// ABOUTME: Publishing never blocks; slow subscribers lose events, not the engine

package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/view"
)

const subscriberBufferSize = 64

// EventKind names what changed in the snapshot.
type EventKind string

const (
	EventRefreshStarted EventKind = "refresh_started"
	EventRefreshed      EventKind = "refreshed"
	EventRefreshFailed  EventKind = "refresh_failed"
	EventSendQueued     EventKind = "send_queued"
	EventReply          EventKind = "reply"
	EventSendFailed     EventKind = "send_failed"
	EventUploadQueued   EventKind = "upload_queued"
	EventUploadAnswered EventKind = "upload_answered"
	EventUploadFailed   EventKind = "upload_failed"
	EventSelection      EventKind = "selection"
	EventInput          EventKind = "input"
)

// Event carries the snapshot produced by one state change.
type Event struct {
	Kind  EventKind
	State view.State
}

// broadcaster fans events out to every subscriber.
type broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
	done        chan struct{}
	logger      *slog.Logger
}

func newBroadcaster(logger *slog.Logger) *broadcaster {
	return &broadcaster{
		subscribers: make(map[string]chan Event),
		done:        make(chan struct{}),
		logger:      logger.With("component", "broadcaster"),
	}
}

// subscribe registers a subscriber. The channel is closed when ctx ends or
// the broadcaster is closed.
func (b *broadcaster) subscribe(ctx context.Context) <-chan Event {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(subID)
		case <-b.done:
		}
	}()

	return ch
}

// publish delivers ev to every subscriber without blocking. The read lock is
// held across the sends so a channel cannot be closed underneath them.
func (b *broadcaster) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"sub_id", id,
				"kind", ev.Kind)
		}
	}
}

func (b *broadcaster) unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// close closes every subscriber channel. Later subscriptions get a closed channel.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.closed = true
	close(b.done)
}
