// Package engine drives a chat session against an assistant backend.
//
// An Engine holds one view.State snapshot. Readers call Snapshot (or
// Compose and Turns) and never block; every change swaps in a new value and
// is published to subscribers.
//
// Refresh runs through a single-flight queue: at most one cycle runs and at
// most one waits behind it, so a burst of refresh requests costs at most two
// cycles. A failed cycle leaves the last good conversations and turns in
// place and records the failure in State.Errors.
//
// Send and Upload append the prompt at once and hand the network call to a
// single worker that dispatches in submission order. Each reply is inserted
// directly after its own prompt.
package engine
