// ABOUTME: Concurrent per-conversation history retrieval with a fail-fast policy
// ABOUTME: One failing conversation fails the whole aggregate; no partial result escapes

package history

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// HistoryGetter is the backend operation the fetcher depends on.
type HistoryGetter interface {
	GetHistory(ctx context.Context, conversationID string) ([]Message, error)
}

// Fetcher retrieves and merges the histories of many conversations.
type Fetcher struct {
	getter HistoryGetter
	logger *slog.Logger
}

// NewFetcher creates a fetcher. Pass nil logger for default.
func NewFetcher(getter HistoryGetter, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		getter: getter,
		logger: logger.With("component", "fetcher"),
	}
}

// FetchAll retrieves every conversation's history concurrently and returns
// the merged sequence, most recent first. Retrievals are unbounded in
// parallelism. If any retrieval fails the remaining ones are cancelled and
// a *HistoryFetchError naming that conversation is returned.
func (f *Fetcher) FetchAll(ctx context.Context, convs []Conversation) ([]AnnotatedMessage, error) {
	start := time.Now()
	results := make([][]AnnotatedMessage, len(convs))

	g, gctx := errgroup.WithContext(ctx)
	for i, conv := range convs {
		g.Go(func() error {
			msgs, err := f.getter.GetHistory(gctx, conv.ID)
			if err != nil {
				return &HistoryFetchError{ConversationID: conv.ID, Err: err}
			}
			results[i] = Annotate(conv, i, msgs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		f.logger.Warn("history refresh failed", "error", err, "conversations", len(convs))
		return nil, err
	}

	merged := Merge(results...)
	f.logger.Debug("history fetched",
		"conversations", len(convs),
		"messages", len(merged),
		"duration", time.Since(start))
	return merged, nil
}
