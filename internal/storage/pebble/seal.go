package pebblestore

import (
	"encoding/binary"
	"time"

	"github.com/cockroachdb/pebble"
)

// SegmentSpan is one sealed chunk of a stream: everything up to (but not
// including) Through was sealed at SealedAtMillis.
type SegmentSpan struct {
	SealedAtMillis int64
	Through        uint64
}

// runSealer periodically writes seal markers for streams that grew since
// their last seal. It runs in its own goroutine, isolated from foreground
// appends, and stops when the engine closes. Sealing is bookkeeping for
// retention and range queries; appends and scans never consult it.
func (e *Engine) runSealer() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.seal)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.sealOnce(time.Now().UnixMilli())
		}
	}
}

// sealOnce writes one seal marker per stream whose sequence advanced since
// the previous marker.
func (e *Engine) sealOnce(nowMillis int64) {
	e.mu.Lock()
	keys := make([]string, 0, len(e.streams))
	for k := range e.streams {
		keys = append(keys, k)
	}
	e.mu.Unlock()

	for _, k := range keys {
		e.mu.Lock()
		s := e.streams[k]
		e.mu.Unlock()
		if s == nil {
			continue
		}
		s.mu.Lock()
		next, sealed, loaded := s.next, s.sealed, s.loaded
		s.mu.Unlock()
		if !loaded || next == 0 || next == sealed {
			continue
		}
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], next)
		if err := e.db.Set(sealKey([]byte(k), nowMillis), v[:]); err != nil {
			continue
		}
		s.mu.Lock()
		if next > s.sealed {
			s.sealed = next
		}
		s.mu.Unlock()
	}
}

// Segments returns the recorded seal spans for a key, oldest first.
func (e *Engine) Segments(key []byte) ([]SegmentSpan, error) {
	if e.closed.Load() {
		return nil, errEngineClosed
	}
	lo, hi := sealBounds(key)
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var spans []SegmentSpan
	for ok := iter.First(); ok; ok = iter.Next() {
		if len(iter.Value()) < 8 {
			continue
		}
		spans = append(spans, SegmentSpan{
			SealedAtMillis: tsFromSealKey(iter.Key()),
			Through:        binary.BigEndian.Uint64(iter.Value()[:8]),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return spans, nil
}
