package bench

import (
	"context"
	"testing"
	"time"
)

func TestRunnerShortRun(t *testing.T) {
	cfg := Default()
	cfg.Partitions = 2
	cfg.Producers = 2
	cfg.PayloadBytes = 32
	cfg.DurationMs = 200
	cfg.DrainMs = 2000

	r, err := NewRunner(cfg, nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	snap, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if snap.Published == 0 {
		t.Fatal("no messages published")
	}
	if snap.Consumed != snap.Published {
		t.Fatalf("consumed %d of %d published", snap.Consumed, snap.Published)
	}
	if snap.Errors != 0 {
		t.Fatalf("errors = %d", snap.Errors)
	}
	if snap.EndToEnd.Count == 0 {
		t.Fatal("no end-to-end latency samples")
	}
}

func TestRunnerPersistentRun(t *testing.T) {
	cfg := Default()
	cfg.Producers = 1
	cfg.Partitions = 1
	cfg.PayloadBytes = 16
	cfg.DurationMs = 100
	cfg.DrainMs = 2000
	cfg.Storage = StorageConfig{
		Type:            "persistent",
		DataPath:        "bench",
		ObjectStore:     "local",
		ObjectStorePath: t.TempDir(),
	}

	r, err := NewRunner(cfg, nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	snap, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if snap.Published == 0 || snap.Consumed != snap.Published {
		t.Fatalf("publish/consume mismatch: %d/%d", snap.Published, snap.Consumed)
	}
}

func TestRunnerRespectsFilter(t *testing.T) {
	cfg := Default()
	cfg.Producers = 1
	cfg.Partitions = 2
	cfg.PayloadBytes = 16
	cfg.DurationMs = 100
	cfg.DrainMs = 500
	cfg.Filter = "partition == 0"

	r, err := NewRunner(cfg, nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	snap, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Only partition 0 passes the filter, so roughly half the round-robin
	// traffic is delivered.
	if snap.Consumed == 0 {
		t.Fatal("filter dropped everything")
	}
	if snap.Consumed >= snap.Published {
		t.Fatalf("filter delivered %d of %d; expected a strict subset", snap.Consumed, snap.Published)
	}
}

func TestRunnerRejectsInvalidConfig(t *testing.T) {
	cfg := Default()
	cfg.Partitions = 0
	if _, err := NewRunner(cfg, nil); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRunnerCancellation(t *testing.T) {
	cfg := Default()
	cfg.DurationMs = 60_000
	cfg.DrainMs = 60_000

	r, err := NewRunner(cfg, nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := r.Run(ctx); err != context.Canceled {
			t.Errorf("run error = %v, want context.Canceled", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
}
