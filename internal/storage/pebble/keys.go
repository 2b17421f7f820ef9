package pebblestore

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
//   - e/{klen_be4}{key}{seq_be8}   log entry
//   - m/{klen_be4}{key}            stream meta (next sequence, 8 bytes BE)
//   - s/{klen_be4}{key}{ts_be8}    seal marker (sealed-through sequence)
//
// The length prefix keeps streams whose keys share a byte prefix from
// colliding; the big-endian sequence and timestamp suffixes give scans the
// correct order.

var (
	entryPrefix = []byte("e/")
	metaPrefix  = []byte("m/")
	sealPrefix  = []byte("s/")
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func keyBase(prefix, key []byte) []byte {
	k := make([]byte, 0, len(prefix)+4+len(key)+8)
	k = append(k, prefix...)
	k = appendBE4(k, uint32(len(key)))
	return append(k, key...)
}

// entryKey builds the key for one log entry.
func entryKey(key []byte, seq uint64) []byte {
	return appendBE8(keyBase(entryPrefix, key), seq)
}

// entryBounds returns the [lower, upper) iterator bounds covering every
// entry of one stream.
func entryBounds(key []byte) (lo, hi []byte) {
	lo = entryKey(key, 0)
	hi = append(entryKey(key, ^uint64(0)), 0x00)
	return lo, hi
}

// seqFromEntryKey extracts the sequence from an entry key.
func seqFromEntryKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[len(k)-8:])
}

// metaKey builds the stream metadata key.
func metaKey(key []byte) []byte {
	return keyBase(metaPrefix, key)
}

// sealKey builds a seal-marker key for one stream at the given time.
func sealKey(key []byte, tsMillis int64) []byte {
	return appendBE8(keyBase(sealPrefix, key), uint64(tsMillis))
}

// sealBounds returns the iterator bounds covering every seal marker of one
// stream.
func sealBounds(key []byte) (lo, hi []byte) {
	lo = sealKey(key, 0)
	hi = append(keyBase(sealPrefix, key), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00)
	return lo, hi
}

// tsFromSealKey extracts the seal timestamp (ms) from a seal-marker key.
func tsFromSealKey(k []byte) int64 {
	return int64(binary.BigEndian.Uint64(k[len(k)-8:]))
}
