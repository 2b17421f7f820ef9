package pebblestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/opendata-oss/opendata-go/internal/storage"
	"github.com/opendata-oss/opendata-go/pkg/config"
)

// EngineConfig configures a Pebble-backed log engine.
type EngineConfig struct {
	// DataPath is the data directory prefix inside the object store.
	DataPath string
	// ObjectStore selects the substrate the store runs on.
	ObjectStore config.ObjectStore
	// SettingsPath optionally points to a JSON tuning file.
	SettingsPath string
	// SealInterval enables time-based segment sealing when positive.
	SealInterval time.Duration
	// Fsync selects the WAL sync policy. Defaults to FsyncModeAlways.
	Fsync FsyncMode
	// FsyncInterval applies when Fsync is FsyncModeInterval.
	FsyncInterval time.Duration
	// ReadOnly opens the engine without append capability.
	ReadOnly bool
	// Metrics optionally observes storage latencies.
	Metrics MetricsHook
}

// Engine is the Pebble-backed storage engine: one append-only, zero-based
// sequence space per key.
type Engine struct {
	db       *DB
	seal     time.Duration
	readOnly bool

	mu      sync.Mutex
	streams map[string]*stream

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
	wg        sync.WaitGroup
}

// stream tracks one key's sequence state. next is loaded lazily from the
// stream's meta record; the mutex is the key's append critical section.
type stream struct {
	mu     sync.Mutex
	loaded bool
	next   uint64
	sealed uint64
}

var errEngineClosed = errors.New("pebble: engine closed")

// OpenEngine opens (or creates) a Pebble-backed engine for the given
// object-store substrate.
func OpenEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.DataPath == "" {
		return nil, errors.New("pebble: data path is required")
	}

	var fs vfs.FS
	var dir string
	switch os := cfg.ObjectStore.(type) {
	case config.InMemoryObjectStore:
		fs = vfs.NewMem()
		dir = cfg.DataPath
	case config.Local:
		dir = filepath.Join(os.Path, cfg.DataPath)
	case config.Cloud:
		return nil, fmt.Errorf("pebble: cloud object store (%s/%s) is not supported by the embedded engine", os.Region, os.Bucket)
	case nil:
		return nil, errors.New("pebble: object store is required")
	default:
		return nil, fmt.Errorf("pebble: unsupported object store %T", cfg.ObjectStore)
	}

	var tuning *Settings
	if cfg.SettingsPath != "" {
		var err error
		tuning, err = LoadSettings(cfg.SettingsPath)
		if err != nil {
			return nil, err
		}
	}

	fsync := cfg.Fsync
	if fsync == FsyncModeUnspecified {
		fsync = FsyncModeAlways
	}

	db, err := Open(Options{
		DataDir:       dir,
		FS:            fs,
		Fsync:         fsync,
		FsyncInterval: cfg.FsyncInterval,
		ReadOnly:      cfg.ReadOnly,
		Tuning:        tuning,
		Metrics:       cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		db:       db,
		seal:     cfg.SealInterval,
		readOnly: cfg.ReadOnly,
		streams:  map[string]*stream{},
		done:     make(chan struct{}),
	}
	if e.seal > 0 && !e.readOnly {
		e.wg.Add(1)
		go e.runSealer()
	}
	return e, nil
}

// Append commits the batch atomically, assigning per-key consecutive
// zero-based sequence numbers in batch order.
func (e *Engine) Append(ctx context.Context, batch []storage.Write) ([]uint64, error) {
	if e.closed.Load() {
		return nil, errEngineClosed
	}
	if e.readOnly {
		return nil, storage.ErrReadOnly
	}
	if len(batch) == 0 {
		return nil, nil
	}

	// Resolve the touched streams, then lock them in sorted key order so
	// concurrent multi-key batches cannot deadlock.
	touched := make(map[string]*stream, len(batch))
	keys := make([]string, 0, len(batch))
	e.mu.Lock()
	for _, w := range batch {
		k := string(w.Key)
		if _, ok := touched[k]; ok {
			continue
		}
		s, ok := e.streams[k]
		if !ok {
			s = &stream{}
			e.streams[k] = s
		}
		touched[k] = s
		keys = append(keys, k)
	}
	e.mu.Unlock()
	sort.Strings(keys)
	for _, k := range keys {
		touched[k].mu.Lock()
	}
	defer func() {
		for i := len(keys) - 1; i >= 0; i-- {
			touched[keys[i]].mu.Unlock()
		}
	}()

	starts := make(map[string]uint64, len(keys))
	for _, k := range keys {
		s := touched[k]
		if err := e.ensureLoaded([]byte(k), s); err != nil {
			return nil, err
		}
		starts[k] = s.next
	}

	b := e.db.NewBatch()
	defer b.Close()

	seqs := make([]uint64, len(batch))
	for i, w := range batch {
		s := touched[string(w.Key)]
		seq := s.next
		if err := b.Set(entryKey(w.Key, seq), w.Value, nil); err != nil {
			e.revert(touched, starts)
			return nil, err
		}
		seqs[i] = seq
		s.next++
	}
	for _, k := range keys {
		var meta [8]byte
		binary.BigEndian.PutUint64(meta[:], touched[k].next)
		if err := b.Set(metaKey([]byte(k)), meta[:], nil); err != nil {
			e.revert(touched, starts)
			return nil, err
		}
	}

	if err := e.db.CommitBatch(ctx, b); err != nil {
		e.revert(touched, starts)
		return nil, err
	}
	return seqs, nil
}

// revert restores stream sequence counters after a failed commit. Callers
// hold the stream locks.
func (e *Engine) revert(touched map[string]*stream, starts map[string]uint64) {
	for k, s := range touched {
		s.next = starts[k]
	}
}

// ensureLoaded populates the stream's next sequence from its meta record.
// Caller holds the stream lock.
func (e *Engine) ensureLoaded(key []byte, s *stream) error {
	if s.loaded {
		return nil
	}
	meta, err := e.db.Get(metaKey(key))
	switch {
	case err == nil && len(meta) >= 8:
		s.next = binary.BigEndian.Uint64(meta[:8])
	case err != nil && !errors.Is(err, pebble.ErrNotFound):
		return err
	}
	s.loaded = true
	return nil
}

// iterSource is satisfied by both *pebble.DB wrappers and snapshots.
type iterSource interface {
	NewIter(*pebble.IterOptions) (*pebble.Iterator, error)
}

// Scan returns up to limit entries for key with sequence >= start.
func (e *Engine) Scan(key []byte, start uint64, limit int) ([]storage.Entry, error) {
	if e.closed.Load() {
		return nil, errEngineClosed
	}
	return scanEntries(e.db, key, start, limit)
}

func scanEntries(src iterSource, key []byte, start uint64, limit int) ([]storage.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	lo, hi := entryBounds(key)
	iter, err := src.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]storage.Entry, 0, limit)
	for ok := iter.SeekGE(entryKey(key, start)); ok && len(out) < limit; ok = iter.Next() {
		out = append(out, storage.Entry{
			Sequence: seqFromEntryKey(iter.Key()),
			Value:    append([]byte(nil), iter.Value()...),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

// pebSnapshot adapts a pebble snapshot to the boundary Snapshot interface.
type pebSnapshot struct {
	snap *pebble.Snapshot
}

// NewSnapshot captures a consistent point-in-time view.
func (e *Engine) NewSnapshot() (storage.Snapshot, error) {
	if e.closed.Load() {
		return nil, errEngineClosed
	}
	return &pebSnapshot{snap: e.db.NewSnapshot()}, nil
}

func (ps *pebSnapshot) Scan(key []byte, start uint64, limit int) ([]storage.Entry, error) {
	return scanEntries(ps.snap, key, start, limit)
}

func (ps *pebSnapshot) Close() error { return ps.snap.Close() }

// Flush forces memtable contents to durable sstables. Idempotent.
func (e *Engine) Flush(context.Context) error {
	if e.closed.Load() {
		return errEngineClosed
	}
	if e.readOnly {
		return nil
	}
	return e.db.Flush()
}

// Close stops the sealer and releases the store. Idempotent.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
		e.wg.Wait()
		e.closeErr = e.db.Close()
	})
	return e.closeErr
}
