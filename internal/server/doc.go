// Package server is a small reference implementation of the assistant
// backend API. It stores conversations in SQLite and answers each prompt
// with a Responder, which lets the chat client be run and tested without
// a real model behind it.
//
// Routes:
//
//	GET  /health
//	GET  /api/conversations
//	GET  /api/history?conversationId=ID
//	POST /api/chat               {"text", "conversationId"?, "userId"?}
//	POST /api/documents/ingest   {"text", "conversationId"?}
//
// A chat request carrying an Idempotency-Key that was already seen within
// the configured TTL is rejected with 409 Conflict.
package server
