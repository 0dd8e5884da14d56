// Package dedupe provides a time-windowed cache of request keys used to
// reject replayed requests that carry the same idempotency key.
package dedupe
