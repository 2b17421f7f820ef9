// Package pebblestore implements the storage boundary on Pebble.
//
// It has two layers: DB, a thin Pebble wrapper with fsync policy, batches,
// snapshots, and a minimal metrics hook; and Engine, the per-key append-only
// log built on DB with zero-based sequence assignment, prefix-ordered entry
// keys, and optional time-based segment sealing running in its own
// goroutine.
//
// The object-store substrate of the configuration maps onto the Pebble VFS:
// the in-memory object store runs on vfs.NewMem, the local object store on
// the real filesystem under its configured root. Cloud object stores are
// rejected at open; the embedded engine carries no bucket transport.
package pebblestore
