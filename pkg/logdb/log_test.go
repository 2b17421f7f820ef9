package logdb

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opendata-oss/opendata-go/pkg/config"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func appendOne(t *testing.T, l *Log, key, value string) AppendResult {
	t.Helper()
	res, err := l.Append(context.Background(), []Record{NewRecord([]byte(key), []byte(value))})
	if err != nil {
		t.Fatalf("append %s=%s: %v", key, value, err)
	}
	return res
}

func TestOpenRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{Storage: config.Persistent{DataPath: " ", ObjectStore: config.InMemoryObjectStore{}}},
		{Storage: config.Persistent{DataPath: "p"}},
		{Storage: config.Persistent{DataPath: "p", ObjectStore: config.Cloud{Region: "", Bucket: "b"}}},
		{Segmentation: config.Segment{SealInterval: -time.Second}},
	}
	for i, cfg := range cases {
		if _, err := Open(cfg); !errors.Is(err, config.ErrInvalid) {
			t.Fatalf("case %d: want config.ErrInvalid, got %v", i, err)
		}
	}
}

func TestSequencesAreZeroBasedAndGapless(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 10; i++ {
		res := appendOne(t, l, "k", "v")
		if res.Sequence != uint64(i) {
			t.Fatalf("append %d: want seq %d, got %d", i, i, res.Sequence)
		}
	}
}

func TestDistinctKeysIndependent(t *testing.T) {
	l := newTestLog(t)
	// Alternate three appends each to "a" and "b".
	for i := 0; i < 3; i++ {
		appendOne(t, l, "a", "av")
		appendOne(t, l, "b", "bv")
	}
	for _, k := range []string{"a", "b"} {
		entries, err := l.Scan([]byte(k), 0, 10)
		if err != nil {
			t.Fatalf("scan %q: %v", k, err)
		}
		if len(entries) != 3 {
			t.Fatalf("key %q: want 3 entries, got %d", k, len(entries))
		}
		for i, e := range entries {
			if e.Sequence != uint64(i) {
				t.Fatalf("key %q: want seq %d, got %d", k, i, e.Sequence)
			}
		}
	}
}

func TestScanScenario(t *testing.T) {
	l := newTestLog(t)
	appendOne(t, l, "a", "v1")
	appendOne(t, l, "a", "v2")

	entries, err := l.Scan([]byte("a"), 0, 10)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(entries))
	}
	if entries[0].Sequence != 0 || string(entries[0].Value) != "v1" {
		t.Fatalf("entry 0: %+v", entries[0])
	}
	if entries[1].Sequence != 1 || string(entries[1].Value) != "v2" {
		t.Fatalf("entry 1: %+v", entries[1])
	}
}

func TestScanEmptyKeyReturnsEmpty(t *testing.T) {
	l := newTestLog(t)
	entries, err := l.Scan([]byte("nothing-here"), 0, 10)
	if err != nil {
		t.Fatalf("scan of empty key must not error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("want empty result, got %d entries", len(entries))
	}
}

func TestBatchAppendConsecutive(t *testing.T) {
	l := newTestLog(t)
	appendOne(t, l, "k", "pre")

	recs := []Record{
		NewRecord([]byte("k"), []byte("b0")),
		NewRecord([]byte("k"), []byte("b1")),
		NewRecord([]byte("k"), []byte("b2")),
	}
	res, err := l.Append(context.Background(), recs)
	if err != nil {
		t.Fatalf("batch append: %v", err)
	}
	if res.Sequence != 1 {
		t.Fatalf("want first sequence 1, got %d", res.Sequence)
	}
	if res.Timestamp != recs[0].Timestamp {
		t.Fatalf("result timestamp %d != first record timestamp %d", res.Timestamp, recs[0].Timestamp)
	}

	entries, err := l.Scan([]byte("k"), 1, 10)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("want 3 batch entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Sequence != uint64(i+1) {
			t.Fatalf("batch entry %d: want seq %d, got %d", i, i+1, e.Sequence)
		}
	}
}

func TestRoundTripPreservesValueAndCreationTime(t *testing.T) {
	l := newTestLog(t)

	rec := NewRecord([]byte("k"), []byte("payload-bytes"))
	created := rec.Timestamp
	time.Sleep(5 * time.Millisecond) // append later than creation
	if _, err := l.Append(context.Background(), []Record{rec}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := l.Scan([]byte("k"), 0, 1)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("want 1 entry")
	}
	if !bytes.Equal(entries[0].Value, []byte("payload-bytes")) {
		t.Fatalf("value not byte-identical: %q", entries[0].Value)
	}
	if entries[0].Timestamp != created {
		t.Fatalf("timestamp %d, want record creation time %d", entries[0].Timestamp, created)
	}
}

func TestEmptyBatchRejected(t *testing.T) {
	l := newTestLog(t)
	if _, err := l.Append(context.Background(), nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("want ErrEmptyBatch, got %v", err)
	}
}

func TestScanRequiresPositiveLimit(t *testing.T) {
	l := newTestLog(t)
	for _, limit := range []int{0, -1} {
		if _, err := l.Scan([]byte("k"), 0, limit); !errors.Is(err, config.ErrInvalid) {
			t.Fatalf("maxEntries=%d: want config.ErrInvalid, got %v", limit, err)
		}
	}
	r, err := l.Reader()
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	if _, err := r.Read([]byte("k"), 0, 0); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("reader maxEntries=0: want config.ErrInvalid, got %v", err)
	}
}

func TestClosedLogFailsDeterministically(t *testing.T) {
	l := newTestLog(t)
	appendOne(t, l, "k", "v")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close must be idempotent: %v", err)
	}

	if _, err := l.Append(context.Background(), []Record{NewRecord([]byte("k"), []byte("v"))}); !errors.Is(err, ErrClosed) {
		t.Fatalf("append after close: want ErrClosed, got %v", err)
	}
	if _, err := l.Scan([]byte("k"), 0, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("scan after close: want ErrClosed, got %v", err)
	}
	if err := l.Flush(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("flush after close: want ErrClosed, got %v", err)
	}
	if _, err := l.Reader(); !errors.Is(err, ErrClosed) {
		t.Fatalf("reader after close: want ErrClosed, got %v", err)
	}
}

func TestFlushIdempotent(t *testing.T) {
	l := newTestLog(t)
	appendOne(t, l, "k", "v")
	for i := 0; i < 3; i++ {
		if err := l.Flush(context.Background()); err != nil {
			t.Fatalf("flush %d: %v", i, err)
		}
	}
}

func TestPersistentLogSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Storage: config.Persistent{
		DataPath:    "log",
		ObjectStore: config.Local{Path: dir},
	}}

	l, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	appendOne(t, l, "k", "v0")
	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	l2, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = l2.Close() })
	res := appendOne(t, l2, "k", "v1")
	if res.Sequence != 1 {
		t.Fatalf("sequence not restored across reopen: got %d", res.Sequence)
	}
	entries, err := l2.Scan([]byte("k"), 0, 10)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 2 || string(entries[0].Value) != "v0" || string(entries[1].Value) != "v1" {
		t.Fatalf("unexpected entries after reopen: %+v", entries)
	}
}
