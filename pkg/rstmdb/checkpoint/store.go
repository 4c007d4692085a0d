// Package checkpoint persists the last-delivered WAL offset per watch so
// consumers can resume event processing after a restart or reconnect.
//
// Events that occur while a client is disconnected are not replayed by the
// server; tracking WAL offsets is how a consumer detects the gap and
// backfills via WAL_READ.
package checkpoint

import (
	"errors"
	"time"
)

// Store persists WAL offsets for named watches.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores the offset for a named watch, overwriting any previous
	// value. Offsets are expected to be monotonically increasing; Save does
	// not enforce this because duplicates across a reconnect boundary may
	// legitimately rewind by a few entries.
	Save(watch string, offset int64) error

	// Load retrieves the offset for a named watch.
	// Returns ErrNotFound if no offset has been saved.
	Load(watch string) (int64, error)

	// List returns all saved watches ordered by name.
	List() ([]Info, error)

	// Delete removes a watch's offset.
	// Returns nil if the watch doesn't exist.
	Delete(watch string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides offset metadata for a named watch.
type Info struct {
	Watch     string
	Offset    int64
	UpdatedAt time.Time
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates no offset has been saved for the watch.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)
