// Package logdb is the client access layer for opendata log stores.
//
// A Log owns one storage engine and provides the per-key append-only
// contract: zero-based, gapless sequence numbers per key, atomic batch
// appends, non-blocking scans, flush, and a terminal close. Readers come in
// two flavors: storage-sharing (always latest state) and independently
// opened (bounded staleness governed by a refresh interval).
//
// Every value crossing the storage boundary carries a transparent 8-byte
// big-endian timestamp header holding the record's creation time, so
// end-to-end latency is measurable without the caller doing anything
// special.
package logdb
