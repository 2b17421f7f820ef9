package logdb

import "errors"

var (
	// ErrClosed is returned by every operation on a closed Log or Reader.
	ErrClosed = errors.New("logdb: closed")

	// ErrEmptyBatch is returned by Append when the batch holds no records.
	ErrEmptyBatch = errors.New("logdb: append batch must not be empty")

	// ErrShortValue is returned when a stored value is too short to carry
	// the timestamp header. It is never coerced to a zero timestamp or a
	// truncated payload.
	ErrShortValue = errors.New("logdb: stored value shorter than timestamp header")
)
