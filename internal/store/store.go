// Package store provides the persistence interfaces and backends used by
// the queue and session registry. The interfaces abstract the underlying
// storage mechanism, enabling implementations backed by process memory for
// single-instance deployments or Redis for multi-instance deployments.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when attempting to create a key that already exists.
var ErrAlreadyExists = errors.New("already exists")

// ErrStaleData is returned when a versioned save detects that the data
// has been modified by another process.
var ErrStaleData = errors.New("stale data detected")

// Store provides generic key-value persistence operations.
// Keys use "/" as path separators (e.g. "sessions/room-1").
type Store interface {
	// Save persists data with the given key. If the key already exists,
	// the data is overwritten.
	Save(ctx context.Context, key string, data []byte) error

	// Load retrieves data for the given key.
	// Returns ErrNotFound if the key does not exist.
	Load(ctx context.Context, key string) ([]byte, error)

	// Delete removes the data associated with the given key.
	// Returns ErrNotFound if the key does not exist.
	Delete(ctx context.Context, key string) error

	// List returns all keys matching the given prefix.
	// An empty prefix returns all keys.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks if a key exists without loading its data.
	Exists(ctx context.Context, key string) (bool, error)
}

// AtomicStore extends Store with compare-and-swap operations. Deployments
// that share pool/queue state across processes must use an AtomicStore so
// the admission critical section's guarantees hold across instances.
type AtomicStore interface {
	Store

	// SaveIfNotExists saves data only if the key does not already exist.
	// Returns ErrAlreadyExists if the key exists.
	SaveIfNotExists(ctx context.Context, key string, data []byte) error

	// SaveWithVersion saves data with optimistic concurrency control.
	// The expected version must match the stored version or ErrStaleData
	// is returned. Version 0 means the key must not exist yet. The new
	// version is returned on success.
	SaveWithVersion(ctx context.Context, key string, data []byte, expectedVersion int64) (int64, error)

	// LoadWithVersion retrieves data together with its current version.
	LoadWithVersion(ctx context.Context, key string) ([]byte, int64, error)
}
