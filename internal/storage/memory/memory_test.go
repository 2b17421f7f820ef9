package memory

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/opendata-oss/opendata-go/internal/storage"
)

func TestAppendAssignsZeroBasedSequences(t *testing.T) {
	e := Open()
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seqs, err := e.Append(ctx, []storage.Write{{Key: []byte("a"), Value: []byte("v")}})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if seqs[0] != uint64(i) {
			t.Fatalf("want seq %d, got %d", i, seqs[0])
		}
	}
}

func TestKeysAreIndependent(t *testing.T) {
	e := Open()
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		for _, k := range []string{"a", "b"} {
			if _, err := e.Append(ctx, []storage.Write{{Key: []byte(k), Value: []byte("v")}}); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
	}
	for _, k := range []string{"a", "b"} {
		entries, err := e.Scan([]byte(k), 0, 10)
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("key %q: want 3 entries, got %d", k, len(entries))
		}
		for i, en := range entries {
			if en.Sequence != uint64(i) {
				t.Fatalf("key %q: want seq %d, got %d", k, i, en.Sequence)
			}
		}
	}
}

func TestMultiKeyBatchAtomic(t *testing.T) {
	e := Open()
	t.Cleanup(func() { _ = e.Close() })

	seqs, err := e.Append(context.Background(), []storage.Write{
		{Key: []byte("a"), Value: []byte("a0")},
		{Key: []byte("b"), Value: []byte("b0")},
		{Key: []byte("a"), Value: []byte("a1")},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	want := []uint64{0, 0, 1}
	for i := range want {
		if seqs[i] != want[i] {
			t.Fatalf("seqs = %v, want %v", seqs, want)
		}
	}
}

func TestScanBounds(t *testing.T) {
	e := Open()
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := e.Append(ctx, []storage.Write{{Key: []byte("k"), Value: []byte{byte(i)}}}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	entries, err := e.Scan([]byte("k"), 2, 2)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 2 || entries[0].Sequence != 2 || entries[1].Sequence != 3 {
		t.Fatalf("unexpected scan result: %+v", entries)
	}
	if entries, _ := e.Scan([]byte("missing"), 0, 10); len(entries) != 0 {
		t.Fatalf("scan of missing key should be empty")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	e := Open()
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()

	if _, err := e.Append(ctx, []storage.Write{{Key: []byte("k"), Value: []byte("v0")}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	snap, err := e.NewSnapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	t.Cleanup(func() { _ = snap.Close() })

	if _, err := e.Append(ctx, []storage.Write{{Key: []byte("k"), Value: []byte("v1")}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	fromSnap, err := snap.Scan([]byte("k"), 0, 10)
	if err != nil {
		t.Fatalf("snap scan: %v", err)
	}
	if len(fromSnap) != 1 || !bytes.Equal(fromSnap[0].Value, []byte("v0")) {
		t.Fatalf("snapshot should see only the first entry, got %+v", fromSnap)
	}
	fromLive, _ := e.Scan([]byte("k"), 0, 10)
	if len(fromLive) != 2 {
		t.Fatalf("live scan should see both entries, got %d", len(fromLive))
	}
}

func TestScanDuringConcurrentAppends(t *testing.T) {
	e := Open()
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()

	const total = 2000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			if _, err := e.Append(ctx, []storage.Write{{Key: []byte("k"), Value: []byte{byte(i)}}}); err != nil {
				t.Errorf("append: %v", err)
				return
			}
		}
	}()

	// Scan repeatedly while the writer grows the stream. Every result must
	// be a gapless prefix continuation with values matching their sequence.
	var cursor uint64
	for cursor < total {
		entries, err := e.Scan([]byte("k"), cursor, 128)
		if err != nil {
			t.Fatalf("scan at %d: %v", cursor, err)
		}
		for _, en := range entries {
			if en.Sequence != cursor {
				t.Fatalf("sequence gap: got %d, want %d", en.Sequence, cursor)
			}
			if len(en.Value) != 1 || en.Value[0] != byte(cursor) {
				t.Fatalf("value mismatch at %d: %v", cursor, en.Value)
			}
			cursor++
		}
	}
	<-done

	snap, err := e.NewSnapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	t.Cleanup(func() { _ = snap.Close() })
	if entries, err := snap.Scan([]byte("k"), 0, total); err != nil || len(entries) != total {
		t.Fatalf("snapshot scan: %d entries, err %v", len(entries), err)
	}
}

func TestConcurrentAppendsSingleKey(t *testing.T) {
	e := Open()
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := e.Append(ctx, []storage.Write{{Key: []byte("k"), Value: []byte("v")}}); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	entries, err := e.Scan([]byte("k"), 0, workers*perWorker+1)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != workers*perWorker {
		t.Fatalf("want %d entries, got %d", workers*perWorker, len(entries))
	}
	for i, en := range entries {
		if en.Sequence != uint64(i) {
			t.Fatalf("sequence gap at %d: got %d", i, en.Sequence)
		}
	}
}
