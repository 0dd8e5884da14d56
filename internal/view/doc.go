// Package view holds the immutable view state of a chat session and the pure
// functions that transform it.
//
// State is one value: history snapshot, live and upload buffers, selection,
// active conversation, input text, and per-category loading/error flags.
// Nothing in it is mutated in place; the engine swaps whole values.
//
// The selection machine has two modes. Select moves Live -> Inspecting and
// pre-fills the input with the turn's prompt; Back returns to Live without
// touching the input; Submit records a new prompt and always ends in Live.
//
// Compose decides what the main pane shows: the live stream, or exactly one
// selected turn.
package view
