package logdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opendata-oss/opendata-go/internal/storage"
	"github.com/opendata-oss/opendata-go/pkg/config"
)

// DefaultRefreshInterval is used by independently opened readers when the
// config leaves the refresh interval unset.
const DefaultRefreshInterval = time.Second

// ReaderConfig configures an independently opened Reader.
type ReaderConfig struct {
	// Storage selects the persistence tier. Nil defaults to in-memory.
	Storage config.Storage
	// RefreshInterval bounds how stale the reader's view may be relative to
	// a separate writer. Zero uses DefaultRefreshInterval.
	RefreshInterval time.Duration
}

func (c ReaderConfig) validate() error {
	if c.Storage != nil {
		if err := c.Storage.Validate(); err != nil {
			return err
		}
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("%w: reader: refresh interval must be positive", config.ErrInvalid)
	}
	return nil
}

// Reader is a sequential cursor-based reader over a log store.
//
// A storage-sharing reader (from Log.Reader) scans the live engine and
// always observes the latest state. An independently opened reader owns its
// engine handle, has no append capability, and serves scans from a snapshot
// rotated at most once per refresh interval, so writes from another writer
// become visible within that bound.
type Reader struct {
	eng storage.Engine
	// owned marks an independently opened reader: the engine handle and
	// snapshots belong to this Reader and are released on Close.
	owned bool
	// snapshotted forces snapshot-rotating reads without engine ownership.
	snapshotted bool
	refresh     time.Duration

	mu          sync.Mutex
	view        storage.Snapshot
	lastRefresh time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// OpenReader opens a reader with its own storage handle, independent of any
// writer in this process. The reader is read-only.
func OpenReader(cfg ReaderConfig) (*Reader, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	st := cfg.Storage
	if st == nil {
		st = config.InMemory{}
	}
	eng, err := openEngine(st, config.Segment{}, true)
	if err != nil {
		return nil, err
	}
	refresh := cfg.RefreshInterval
	if refresh == 0 {
		refresh = DefaultRefreshInterval
	}
	return &Reader{eng: eng, owned: true, refresh: refresh}, nil
}

// newSnapshotReader attaches a snapshot-rotating reader to a live engine.
// Used to model an out-of-process reader against an in-process writer.
func newSnapshotReader(eng storage.Engine, refresh time.Duration) *Reader {
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}
	return &Reader{eng: eng, refresh: refresh, snapshotted: true}
}

// Read returns up to maxEntries entries for key with sequence >=
// startSequence, per the same contract as Log.Scan. It never blocks.
func (r *Reader) Read(key []byte, startSequence uint64, maxEntries int) ([]LogEntry, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if maxEntries <= 0 {
		return nil, fmt.Errorf("%w: maxEntries must be positive, got %d", config.ErrInvalid, maxEntries)
	}

	var raw []storage.Entry
	var err error
	if r.owned || r.snapshotted {
		view, verr := r.currentView()
		if verr != nil {
			return nil, fmt.Errorf("read: %w", verr)
		}
		raw, err = view.Scan(key, startSequence, maxEntries)
	} else {
		raw, err = r.eng.Scan(key, startSequence, maxEntries)
	}
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return decodeEntries(key, raw)
}

// currentView returns the reader's snapshot, rotating it when the refresh
// interval has elapsed.
func (r *Reader) currentView() (storage.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.view != nil && time.Since(r.lastRefresh) < r.refresh {
		return r.view, nil
	}
	snap, err := r.eng.NewSnapshot()
	if err != nil {
		return nil, err
	}
	if r.view != nil {
		_ = r.view.Close()
	}
	r.view = snap
	r.lastRefresh = time.Now()
	return r.view, nil
}

// ReadWait polls until at least one entry is available or the timeout
// expires. Expiry returns an empty result, not an error; context
// cancellation returns the context error. This is an explicit
// poll-plus-backoff primitive, a placeholder for a future push interface.
func (r *Reader) ReadWait(ctx context.Context, key []byte, startSequence uint64, maxEntries int, timeout time.Duration) ([]LogEntry, error) {
	deadline := time.Now().Add(timeout)
	for {
		entries, err := r.Read(key, startSequence, maxEntries)
		if err != nil || len(entries) > 0 {
			return entries, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		pause := 10 * time.Millisecond
		if remaining < pause {
			pause = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pause):
		}
	}
}

// Close releases the reader. Idempotent; a shared reader's Close never
// closes the writer's engine.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.mu.Lock()
		if r.view != nil {
			_ = r.view.Close()
			r.view = nil
		}
		r.mu.Unlock()
		if r.owned {
			r.closeErr = r.eng.Close()
		}
	})
	return r.closeErr
}
