package bench

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opendata-oss/opendata-go/pkg/id"
	"github.com/opendata-oss/opendata-go/pkg/logdb"
)

func openTestLog(t *testing.T) *logdb.Log {
	t.Helper()
	l, err := logdb.Open(logdb.Config{})
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestPartitionKey(t *testing.T) {
	if got := string(PartitionKey("orders", 0)); got != "orders/0" {
		t.Fatalf("key = %q, want orders/0", got)
	}
	if got := string(PartitionKey("orders", 12)); got != "orders/12" {
		t.Fatalf("key = %q, want orders/12", got)
	}
}

func TestCreateTopicBookkeeping(t *testing.T) {
	d := NewDriver(openTestLog(t), nil)

	d.CreateTopic("orders", 8)
	if n := d.partitions("orders"); n != 8 {
		t.Fatalf("partitions = %d, want 8", n)
	}

	// Unregistered topics default to a single partition.
	if n := d.partitions("unknown"); n != 1 {
		t.Fatalf("partitions = %d, want 1", n)
	}

	// Zero or negative counts are clamped.
	d.CreateTopic("tiny", 0)
	if n := d.partitions("tiny"); n != 1 {
		t.Fatalf("partitions = %d, want 1", n)
	}
}

func TestProducerRoundRobin(t *testing.T) {
	d := NewDriver(openTestLog(t), nil)
	d.CreateTopic("rr", 3)
	p, err := d.CreateProducer("rr")
	if err != nil {
		t.Fatalf("create producer: %v", err)
	}

	ctx := context.Background()
	seqs := map[int]uint64{}
	for i := 0; i < 9; i++ {
		res, err := p.Send(ctx, "", []byte("x"))
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		// Empty message keys cycle the partitions, so each partition's
		// sequence advances by one per full round.
		_ = res
	}
	for part := 0; part < 3; part++ {
		entries, err := d.log.Scan(PartitionKey("rr", part), 0, 100)
		if err != nil {
			t.Fatalf("scan partition %d: %v", part, err)
		}
		if len(entries) != 3 {
			t.Fatalf("partition %d got %d entries, want 3", part, len(entries))
		}
		seqs[part] = entries[len(entries)-1].Sequence
	}
	for part, last := range seqs {
		if last != 2 {
			t.Fatalf("partition %d last sequence = %d, want 2", part, last)
		}
	}
}

func TestProducerKeyRouting(t *testing.T) {
	d := NewDriver(openTestLog(t), nil)
	d.CreateTopic("keyed", 4)
	p, err := d.CreateProducer("keyed")
	if err != nil {
		t.Fatalf("create producer: %v", err)
	}

	// The same message key must land on the same partition every time.
	ctx := context.Background()
	want := p.route("customer-42")
	for i := 0; i < 5; i++ {
		if got := p.route("customer-42"); got != want {
			t.Fatalf("route changed: %d then %d", want, got)
		}
	}
	for i := 0; i < 10; i++ {
		if _, err := p.Send(ctx, "customer-42", []byte("v")); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	entries, err := d.log.Scan(PartitionKey("keyed", want), 0, 100)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("got %d entries on partition %d, want 10", len(entries), want)
	}
}

func TestConsumerDeliversInOrder(t *testing.T) {
	d := NewDriver(openTestLog(t), nil)
	d.CreateTopic("t", 2)
	p, err := d.CreateProducer("t")
	if err != nil {
		t.Fatalf("create producer: %v", err)
	}

	ctx := context.Background()
	const perPartition = 20
	for i := 0; i < 2*perPartition; i++ {
		if _, err := p.Send(ctx, "", []byte("payload")); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	var mu sync.Mutex
	seen := map[int][]uint64{}
	done := make(chan struct{})
	c, err := d.CreateConsumer("t", "sub", func(partition int, _ id.ID, e logdb.LogEntry) {
		mu.Lock()
		seen[partition] = append(seen[partition], e.Sequence)
		total := len(seen[0]) + len(seen[1])
		mu.Unlock()
		if total == 2*perPartition {
			close(done)
		}
	})
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}
	c.Start(ctx)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close consumer: %v", err)
	}

	for part, seqs := range seen {
		if len(seqs) != perPartition {
			t.Fatalf("partition %d delivered %d entries, want %d", part, len(seqs), perPartition)
		}
		for i, s := range seqs {
			if s != uint64(i) {
				t.Fatalf("partition %d out of order at %d: sequence %d", part, i, s)
			}
		}
	}
}

func TestConsumerRequiresCallback(t *testing.T) {
	d := NewDriver(openTestLog(t), nil)
	if _, err := d.CreateConsumer("t", "sub", nil); err == nil {
		t.Fatal("expected error for nil callback")
	}
}

func TestMessagesCarrySortableIDs(t *testing.T) {
	d := NewDriver(openTestLog(t), nil)
	d.CreateTopic("ids", 2)
	p, err := d.CreateProducer("ids")
	if err != nil {
		t.Fatalf("create producer: %v", err)
	}

	ctx := context.Background()
	const total = 30
	for i := 0; i < total; i++ {
		if _, err := p.Send(ctx, "", []byte("payload")); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	var mu sync.Mutex
	ids := map[int][]id.ID{}
	count := 0
	done := make(chan struct{})
	c, err := d.CreateConsumer("ids", "sub", func(partition int, msgID id.ID, e logdb.LogEntry) {
		if string(e.Value) != "payload" {
			t.Errorf("payload not stripped of id frame: %q", e.Value)
		}
		mu.Lock()
		ids[partition] = append(ids[partition], msgID)
		if count++; count == total {
			close(done)
		}
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}
	c.Start(ctx)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close consumer: %v", err)
	}

	// Within a partition, one producer's IDs arrive strictly increasing.
	seen := map[id.ID]bool{}
	for part, got := range ids {
		for i, msgID := range got {
			if msgID == (id.ID{}) {
				t.Fatalf("partition %d message %d has a zero id", part, i)
			}
			if seen[msgID] {
				t.Fatalf("duplicate message id %s", msgID)
			}
			seen[msgID] = true
			if i > 0 && got[i-1].Compare(msgID) >= 0 {
				t.Fatalf("partition %d ids not increasing: %s then %s", part, got[i-1], msgID)
			}
		}
	}
	if len(seen) != total {
		t.Fatalf("saw %d distinct ids, want %d", len(seen), total)
	}
}

func TestConsumerSkipsUnframedValues(t *testing.T) {
	l := openTestLog(t)
	d := NewDriver(l, nil)
	d.CreateTopic("mixed", 1)

	// One raw value too short to carry an id frame, then a framed message.
	ctx := context.Background()
	key := PartitionKey("mixed", 0)
	if _, err := l.Append(ctx, []logdb.Record{logdb.NewRecord(key, []byte("raw"))}); err != nil {
		t.Fatalf("append raw: %v", err)
	}
	p, err := d.CreateProducer("mixed")
	if err != nil {
		t.Fatalf("create producer: %v", err)
	}
	if _, err := p.Send(ctx, "", []byte("good")); err != nil {
		t.Fatalf("send: %v", err)
	}

	got := make(chan logdb.LogEntry, 2)
	c, err := d.CreateConsumer("mixed", "sub", func(_ int, _ id.ID, e logdb.LogEntry) {
		got <- e
	})
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}
	c.Start(ctx)
	defer c.Close()

	select {
	case e := <-got:
		if string(e.Value) != "good" || e.Sequence != 1 {
			t.Fatalf("delivered wrong entry: seq %d value %q", e.Sequence, e.Value)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out; malformed value stalled the poller")
	}
	select {
	case e := <-got:
		t.Fatalf("malformed value was delivered: seq %d value %q", e.Sequence, e.Value)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConsumerCloseStopsPollers(t *testing.T) {
	d := NewDriver(openTestLog(t), nil)
	d.CreateTopic("idle", 4)
	c, err := d.CreateConsumer("idle", "sub", func(int, id.ID, logdb.LogEntry) {})
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}
	c.Start(context.Background())

	closed := make(chan error, 1)
	go func() { closed <- c.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return; pollers still running")
	}
}
