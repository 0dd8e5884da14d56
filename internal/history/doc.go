// Package history reconstructs a navigable conversation history from the
// backend's per-conversation message lists.
//
// # Pipeline
//
//	Directory.List -> Fetcher.FetchAll -> Merge -> Ascending -> Builder.Build
//
// The Directory lists known conversations. The Fetcher retrieves every
// conversation's messages concurrently and fails the whole call when any
// single retrieval fails (HistoryFetchError names the conversation). Merge
// produces one sequence ordered most recent first; Ascending reorders it for
// pairing with deterministic tie-breaks. The Builder folds the ascending
// sequence into Turns.
//
// # Turns
//
// A Turn is opened by a user message, or by a system message whose text
// starts with an ingestion marker (a document added to the knowledge base).
// The response is the text of the immediately following message in
// ascending order when it is an assistant message, or empty. Assistant messages that do not follow
// a prompt are dropped from the turn list.
//
// Turn identity is the server message id when present, otherwise a synthetic
// (conversation, position) index. See Identity.
package history
