// Package storage defines the narrow capability boundary to the underlying
// log engine: append, scan, snapshot, flush, close. The engine's internals
// (compaction, write-ahead persistence, file formats) stay behind this
// boundary; the client layer above it never depends on more than what is
// declared here.
package storage

import (
	"context"
	"errors"
)

// ErrReadOnly is returned by Append on an engine opened without write
// capability.
var ErrReadOnly = errors.New("storage: engine is read-only")

// Write is a single record crossing the boundary on append. The value is
// stored verbatim; any encoding happens above this layer.
type Write struct {
	Key   []byte
	Value []byte
}

// Entry is a single stored record returned by a scan.
type Entry struct {
	Sequence uint64
	Value    []byte
}

// Engine is the storage handle owned by one log instance.
//
// Implementations must assign per-key zero-based, gapless, strictly
// increasing sequence numbers in append order, keep distinct keys fully
// independent, and commit each batch atomically. Appends to one key are
// serialized; appends to distinct keys may proceed concurrently. Scan never
// blocks and returns only currently visible entries.
type Engine interface {
	// Append commits the batch atomically and returns the sequence number
	// assigned to each write, in batch order. It blocks until the engine
	// acknowledges durability for the whole batch.
	Append(ctx context.Context, batch []Write) ([]uint64, error)

	// Scan returns up to limit entries for key with sequence >= start, in
	// sequence order. A short or empty result is not an error.
	Scan(key []byte, start uint64, limit int) ([]Entry, error)

	// NewSnapshot captures a consistent point-in-time view. The caller must
	// Close the snapshot.
	NewSnapshot() (Snapshot, error)

	// Flush forces engine-held in-memory writes to the fully durable tier.
	// Idempotent.
	Flush(ctx context.Context) error

	// Close releases the engine. Idempotent.
	Close() error
}

// Snapshot is a read-only point-in-time view of an engine.
type Snapshot interface {
	Scan(key []byte, start uint64, limit int) ([]Entry, error)
	Close() error
}
