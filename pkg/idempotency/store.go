// Package idempotency replays prior responses for repeated POSTs carrying
// the same Idempotency-Key. Entries are keyed by (principal, endpoint, key)
// and expire after a fixed window.
//
// Semantics are first-writer-wins: the first completed response is stored
// and replayed; concurrent duplicates may each execute upstream if they
// race, and the store keeps whichever finished first.
package idempotency

import (
	"context"
	"time"
)

// DefaultWindow is how long a stored response stays replayable.
const DefaultWindow = 24 * time.Hour

// MaxKeyLength bounds the client-supplied key.
const MaxKeyLength = 255

// Entry is one stored response.
type Entry struct {
	// Status is the HTTP status of the stored response.
	Status int

	// Body is the exact response body; replays are byte-identical.
	Body []byte

	// CreatedAt is when the response was stored.
	CreatedAt time.Time
}

// Store is the replay store. Implementations must be safe for concurrent
// use.
type Store interface {
	// Get returns the stored entry for the key, if present and unexpired.
	Get(ctx context.Context, principal, endpoint, key string) (*Entry, bool, error)

	// Put stores a completed response. If an entry already exists the
	// call is a no-op (first writer wins).
	Put(ctx context.Context, principal, endpoint, key string, entry Entry) error

	// Sweep removes entries older than the window; returns how many.
	Sweep(ctx context.Context, window time.Duration) (int, error)

	// Close releases store resources.
	Close() error
}
