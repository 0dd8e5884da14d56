// Package store provides persistence for the reference chat backend.
//
// # Data Models
//
//   - Conversation: a chat thread with a title and activity timestamp
//   - Message: one user, assistant or system message in a conversation
//
// # SQLite Configuration
//
// Open accepts either database/sql driver:
//
//   - "sqlite": modernc.org/sqlite, pure Go (default)
//   - "sqlite3": github.com/mattn/go-sqlite3, requires cgo
//
// File databases run in WAL mode. Timestamps are stored as fixed-width UTC
// text so that ordering by column matches ordering by time.
//
// # Error Handling
//
//   - ErrNotFound: requested conversation does not exist
//   - ErrDuplicateConversation: conversation ID already taken
//
// # Testing
//
// Use NewMockStore() for unit tests, or Open(DriverModernc, ":memory:") for
// a real database that lives only as long as the store.
package store
