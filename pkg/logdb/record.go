package logdb

import "time"

// Record is a value to be appended under a key. The timestamp is captured at
// record construction, not at append call time, so batching records before
// an append does not distort end-to-end latency measurements.
type Record struct {
	Key   []byte
	Value []byte
	// Timestamp is the record creation time in epoch milliseconds.
	Timestamp int64
}

// NewRecord builds a Record stamped with the current wall-clock time.
func NewRecord(key, value []byte) Record {
	return Record{Key: key, Value: value, Timestamp: time.Now().UnixMilli()}
}

// LogEntry is a single entry read back from the log. Immutable once returned.
type LogEntry struct {
	Sequence uint64
	// Timestamp is the originating record's creation time in epoch
	// milliseconds, recovered from the value header.
	Timestamp int64
	Key       []byte
	Value     []byte
}

// AppendResult reports the outcome of a batch append: the sequence and
// creation timestamp of the first record in the batch.
type AppendResult struct {
	Sequence  uint64
	Timestamp int64
}
