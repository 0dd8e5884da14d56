// ABOUTME: Error kinds raised while aggregating conversation history
// ABOUTME: DirectoryUnavailable and HistoryFetchFailed wrap the underlying backend error

package history

import (
	"errors"
	"fmt"
)

// ErrDirectoryUnavailable is returned when the conversation list cannot be fetched.
var ErrDirectoryUnavailable = errors.New("conversation directory unavailable")

// ErrHistoryFetchFailed matches any HistoryFetchError via errors.Is.
var ErrHistoryFetchFailed = errors.New("history fetch failed")

// HistoryFetchError reports which conversation's history could not be fetched.
type HistoryFetchError struct {
	ConversationID string
	Err            error
}

func (e *HistoryFetchError) Error() string {
	return fmt.Sprintf("history fetch failed for conversation %s: %v", e.ConversationID, e.Err)
}

func (e *HistoryFetchError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrHistoryFetchFailed) true for every HistoryFetchError.
func (e *HistoryFetchError) Is(target error) bool {
	return target == ErrHistoryFetchFailed
}
