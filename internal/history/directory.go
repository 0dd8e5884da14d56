// ABOUTME: Conversation directory backed by the backend's conversation list
// ABOUTME: Concurrent List calls share one backend request via singleflight

package history

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/singleflight"
)

// ConversationLister is the backend operation the directory depends on.
type ConversationLister interface {
	ListConversations(ctx context.Context) ([]Conversation, error)
}

// Directory lists known conversations.
type Directory struct {
	lister ConversationLister
	group  singleflight.Group
	logger *slog.Logger
}

// NewDirectory creates a directory. Pass nil logger for default.
func NewDirectory(lister ConversationLister, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		lister: lister,
		logger: logger.With("component", "directory"),
	}
}

// List returns the conversations in backend order. Any backend failure is
// reported as ErrDirectoryUnavailable wrapping the cause.
func (d *Directory) List(ctx context.Context) ([]Conversation, error) {
	v, err, shared := d.group.Do("list", func() (any, error) {
		return d.lister.ListConversations(ctx)
	})
	if err != nil {
		d.logger.Warn("listing conversations failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	convs, _ := v.([]Conversation)
	d.logger.Debug("conversations listed", "count", len(convs), "shared", shared)

	// Shared results are handed to several callers; give each its own slice.
	return slices.Clone(convs), nil
}

// DefaultSelection returns the conversation that should be active. The
// current selection is kept when set; otherwise the first entry in
// directory order is chosen. Returns "" when nothing can be selected.
func DefaultSelection(current string, convs []Conversation) string {
	if current != "" {
		return current
	}
	if len(convs) == 0 {
		return ""
	}
	return convs[0].ID
}
