// Package memory implements the storage boundary with an in-process engine.
// Streams live in a map of append-only slices; nothing survives the process.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/opendata-oss/opendata-go/internal/storage"
)

// Engine is an in-memory storage engine.
type Engine struct {
	mu      sync.RWMutex
	streams map[string]*stream
	closed  atomic.Bool
}

// stream is one key's append-only log. Entries are immutable once appended;
// the slice only ever grows, so readers holding an old length can index it
// without further locking.
type stream struct {
	mu      sync.Mutex
	entries [][]byte
}

// Open returns a fresh, empty in-memory engine.
func Open() *Engine {
	return &Engine{streams: map[string]*stream{}}
}

// Append commits the batch, assigning per-key consecutive sequence numbers.
func (e *Engine) Append(_ context.Context, batch []storage.Write) ([]uint64, error) {
	if e.closed.Load() {
		return nil, errors.New("memory: engine closed")
	}
	if len(batch) == 0 {
		return nil, nil
	}

	// Lock the touched streams in sorted key order so concurrent multi-key
	// batches cannot deadlock.
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

	seqs := make([]uint64, len(batch))
	for i, w := range batch {
		s := touched[string(w.Key)]
		seqs[i] = uint64(len(s.entries))
		s.entries = append(s.entries, append([]byte(nil), w.Value...))
	}
	return seqs, nil
}

// Scan returns up to limit entries for key starting at start.
func (e *Engine) Scan(key []byte, start uint64, limit int) ([]storage.Entry, error) {
	if e.closed.Load() {
		return nil, errors.New("memory: engine closed")
	}
	e.mu.RLock()
	s := e.streams[string(key)]
	e.mu.RUnlock()
	if s == nil {
		return nil, nil
	}
	s.mu.Lock()
	ents := s.entries
	s.mu.Unlock()
	return readRange(ents, start, uint64(len(ents)), limit), nil
}

// readRange copies entries [start, end) up to limit. ents must be a slice
// header captured under the stream lock: a concurrent append reassigns the
// stream's slice, but the captured header and its elements never change.
func readRange(ents [][]byte, start, end uint64, limit int) []storage.Entry {
	if limit <= 0 || start >= end {
		return nil
	}
	out := make([]storage.Entry, 0, limit)
	for seq := start; seq < end && len(out) < limit; seq++ {
		out = append(out, storage.Entry{
			Sequence: seq,
			Value:    append([]byte(nil), ents[seq]...),
		})
	}
	return out
}

// snapshot freezes the visible length of every stream at capture time.
type snapshot struct {
	eng     *Engine
	visible map[string]uint64
}

// NewSnapshot captures the current visible length of every stream.
func (e *Engine) NewSnapshot() (storage.Snapshot, error) {
	if e.closed.Load() {
		return nil, errors.New("memory: engine closed")
	}
	vis := map[string]uint64{}
	e.mu.RLock()
	for k, s := range e.streams {
		s.mu.Lock()
		vis[k] = uint64(len(s.entries))
		s.mu.Unlock()
	}
	e.mu.RUnlock()
	return &snapshot{eng: e, visible: vis}, nil
}

func (sn *snapshot) Scan(key []byte, start uint64, limit int) ([]storage.Entry, error) {
	end, ok := sn.visible[string(key)]
	if !ok {
		return nil, nil
	}
	sn.eng.mu.RLock()
	s := sn.eng.streams[string(key)]
	sn.eng.mu.RUnlock()
	if s == nil {
		return nil, nil
	}
	s.mu.Lock()
	ents := s.entries
	s.mu.Unlock()
	return readRange(ents, start, end, limit), nil
}

func (sn *snapshot) Close() error { return nil }

// Flush is a no-op: in-memory data is as durable as it gets.
func (e *Engine) Flush(context.Context) error {
	if e.closed.Load() {
		return errors.New("memory: engine closed")
	}
	return nil
}

// Close marks the engine closed. Idempotent.
func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}
