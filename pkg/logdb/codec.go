package logdb

import (
	"encoding/binary"
	"fmt"
)

// Value header: 8-byte big-endian epoch-millisecond timestamp prepended to
// every value before it crosses the storage boundary and stripped on read.
// The caller never sees the header; the round-trip is byte-exact.
const headerSize = 8

// encodeValue prepends the timestamp header to the payload.
func encodeValue(tsMillis int64, value []byte) []byte {
	out := make([]byte, headerSize+len(value))
	binary.BigEndian.PutUint64(out[:headerSize], uint64(tsMillis))
	copy(out[headerSize:], value)
	return out
}

// decodeValue strips the timestamp header and returns it alongside the
// original payload. A stored value shorter than the header is a protocol
// error, never silently coerced.
func decodeValue(stored []byte) (int64, []byte, error) {
	if len(stored) < headerSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrShortValue, len(stored))
	}
	ts := int64(binary.BigEndian.Uint64(stored[:headerSize]))
	return ts, stored[headerSize:], nil
}
