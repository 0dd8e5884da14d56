// ABOUTME: Single-flight refresh queue: one cycle in flight, at most one pending
// ABOUTME: A cycle lists conversations, fetches and merges history, rebuilds turns and swaps the snapshot

package engine

import (
	"context"
	"time"

	"github.com/2389/coven-chat/internal/history"
	"github.com/2389/coven-chat/internal/view"
)

// cycle is one refresh run. done is closed when err is final.
type cycle struct {
	done chan struct{}
	err  error
}

// Refresh reloads the conversation directory and every history and waits
// for the result. Concurrent calls coalesce: a call made while a cycle is
// running waits for the next cycle, which all such callers share.
//
// Failures are also recorded in the snapshot's error flags and the last
// good turns stay in place. A directory failure leaves no conversations
// known; a history failure still applies the default selection.
func (e *Engine) Refresh(ctx context.Context) error {
	c := e.requestRefresh()
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerRefresh schedules a refresh without waiting for it.
func (e *Engine) TriggerRefresh() {
	e.requestRefresh()
}

func (e *Engine) requestRefresh() *cycle {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	if e.ctx.Err() != nil {
		c := &cycle{done: make(chan struct{}), err: ErrClosed}
		close(c.done)
		return c
	}
	if e.pending != nil {
		return e.pending
	}

	c := &cycle{done: make(chan struct{})}
	if e.running != nil {
		e.pending = c
		return c
	}
	e.running = c
	e.wg.Go(func() { e.runCycles(c) })
	return c
}

// runCycles runs c and then whatever became pending meanwhile, until the
// queue is empty.
func (e *Engine) runCycles(c *cycle) {
	for c != nil {
		c.err = e.runCycle(e.ctx)
		close(c.done)

		e.refreshMu.Lock()
		c = e.pending
		e.pending = nil
		e.running = c
		e.refreshMu.Unlock()
	}
}

func (e *Engine) runCycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return ErrClosed
	}

	start := time.Now()
	e.update(EventRefreshStarted, func(s view.State) view.State {
		s.Loading.Directory = true
		s.Loading.History = true
		return s
	})

	convs, err := e.directory.List(ctx)
	if err != nil {
		e.logger.Warn("refresh: directory unavailable", "error", err)
		e.update(EventRefreshFailed, func(s view.State) view.State {
			s.Conversations = nil
			s.Loading.Directory = false
			s.Loading.History = false
			s.Errors.Directory = err
			return s
		})
		return err
	}

	merged, err := e.fetcher.FetchAll(ctx, convs)
	if err != nil {
		e.logger.Warn("refresh: history fetch failed", "error", err)
		e.update(EventRefreshFailed, func(s view.State) view.State {
			s.ActiveConversationID = history.DefaultSelection(s.ActiveConversationID, convs)
			s.Loading.Directory = false
			s.Loading.History = false
			s.Errors.Directory = nil
			s.Errors.History = err
			return s
		})
		return err
	}

	turns := e.builder.Build(history.Ascending(merged))

	next := e.update(EventRefreshed, func(s view.State) view.State {
		s = s.WithHistory(convs, turns)
		s.ActiveConversationID = history.DefaultSelection(s.ActiveConversationID, convs)
		s.Loading.Directory = false
		s.Loading.History = false
		s.Errors.Directory = nil
		s.Errors.History = nil
		return s
	})

	e.logger.Debug("refresh complete",
		"conversations", len(convs),
		"messages", len(merged),
		"turns", len(turns),
		"generation", next.Generation,
		"duration", time.Since(start))
	return nil
}
