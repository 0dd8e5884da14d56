// Package backend is the JSON/HTTP contract with the assistant backend: the
// wire types and a client for listing conversations, reading history,
// sending turns and ingesting documents.
package backend
