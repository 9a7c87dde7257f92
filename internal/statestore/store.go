// Package statestore provides the durable key-value store backing the live
// workout session, plus change notifications so that several clients of the
// same store stay consistent. Writes are last-write-wins; concurrent writers
// are expected and tolerated.
package statestore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists under the key.
var ErrNotFound = errors.New("statestore: key not found")

// Event describes a change made by some writer of the shared store.
// Origin identifies the writer; consumers compare it against their own
// store's origin to skip self-inflicted events.
type Event struct {
	Key     string
	Value   string
	Origin  string
	Deleted bool
}

// Store is a string key-value store with change notifications.
//
// Watch delivers events for writes made by other origins; a store never
// reports its own writes. The channel is closed when ctx is cancelled or
// the store is closed.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Watch(ctx context.Context) (<-chan Event, error)

	// Origin returns the unique identifier this store stamps on its writes.
	Origin() string

	Close() error
}
