package logdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opendata-oss/opendata-go/internal/storage"
	"github.com/opendata-oss/opendata-go/pkg/config"
)

// Config configures a Log.
type Config struct {
	// Storage selects the persistence tier. Nil defaults to in-memory.
	Storage config.Storage
	// Segmentation governs time-based segment sealing.
	Segmentation config.Segment
}

// validate checks the config recursively before anything touches storage.
func (c Config) validate() error {
	if c.Storage != nil {
		if err := c.Storage.Validate(); err != nil {
			return err
		}
	}
	return c.Segmentation.Validate()
}

// Log is the write/read handle for one log store. It owns its storage
// engine exclusively; any number of storage-sharing Readers may read it
// concurrently within the same process.
type Log struct {
	eng       storage.Engine
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open validates the config and opens the storage engine. A config error is
// reported before the storage boundary is reached.
func Open(cfg Config) (*Log, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	st := cfg.Storage
	if st == nil {
		st = config.InMemory{}
	}
	eng, err := openEngine(st, cfg.Segmentation, false)
	if err != nil {
		return nil, err
	}
	return &Log{eng: eng}, nil
}

// Append appends the batch to the log and blocks until the engine
// acknowledges durability. Sequence numbers are assigned atomically and in
// order; appends to one key are serialized, distinct keys may proceed
// concurrently. There is no partial success: either the whole batch commits
// and the first record's sequence range is returned, or none of it does.
func (l *Log) Append(ctx context.Context, records []Record) (AppendResult, error) {
	if l.closed.Load() {
		return AppendResult{}, ErrClosed
	}
	if len(records) == 0 {
		return AppendResult{}, ErrEmptyBatch
	}

	batch := make([]storage.Write, len(records))
	for i, r := range records {
		batch[i] = storage.Write{
			Key:   r.Key,
			Value: encodeValue(r.Timestamp, r.Value),
		}
	}
	seqs, err := l.eng.Append(ctx, batch)
	if err != nil {
		return AppendResult{}, fmt.Errorf("append: %w", err)
	}
	return AppendResult{Sequence: seqs[0], Timestamp: records[0].Timestamp}, nil
}

// Scan returns up to maxEntries currently available entries for key with
// sequence >= startSequence. It never blocks; a short or empty result is
// not an error.
func (l *Log) Scan(key []byte, startSequence uint64, maxEntries int) ([]LogEntry, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if maxEntries <= 0 {
		return nil, fmt.Errorf("%w: maxEntries must be positive, got %d", config.ErrInvalid, maxEntries)
	}
	raw, err := l.eng.Scan(key, startSequence, maxEntries)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return decodeEntries(key, raw)
}

// Flush forces engine-held in-memory writes to the fully durable tier.
// Idempotent, safe to call repeatedly.
func (l *Log) Flush(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := l.eng.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Reader returns a storage-sharing reader. It observes the latest state
// with no extra open cost and must be closed independently.
func (l *Log) Reader() (*Reader, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	return &Reader{eng: l.eng}, nil
}

// Close releases the log. Idempotent; every subsequent operation fails with
// ErrClosed. Close must not race in-flight operations on the same instance;
// racers may observe ErrClosed.
func (l *Log) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.closeErr = l.eng.Close()
	})
	return l.closeErr
}

// decodeEntries strips the timestamp header from each stored value.
func decodeEntries(key []byte, raw []storage.Entry) ([]LogEntry, error) {
	entries := make([]LogEntry, 0, len(raw))
	for _, r := range raw {
		ts, payload, err := decodeValue(r.Value)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", r.Sequence, err)
		}
		entries = append(entries, LogEntry{
			Sequence:  r.Sequence,
			Timestamp: ts,
			Key:       append([]byte(nil), key...),
			Value:     payload,
		})
	}
	return entries, nil
}
