package bench

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opendata-oss/opendata-go/pkg/id"
	logpkg "github.com/opendata-oss/opendata-go/pkg/log"
	"github.com/opendata-oss/opendata-go/pkg/logdb"
)

const (
	defaultBatchLimit   = 256
	defaultBackoffFloor = time.Millisecond
	defaultBackoffCap   = 10 * time.Millisecond
)

// DeliveryFunc receives one message, in sequence order within its
// partition. The entry's value is the payload with the message ID frame
// already stripped.
type DeliveryFunc func(partition int, msgID id.ID, entry logdb.LogEntry)

// Consumer polls every partition of a topic in parallel and delivers
// entries through the callback. Within one partition, delivery order is
// exactly the log's sequence order; across partitions there is no ordering
// guarantee. Polling with backoff is a placeholder for a future
// push/subscribe interface.
type Consumer struct {
	reader       *logdb.Reader
	topic        string
	subscription string
	partitions   int
	cb           DeliveryFunc
	filter       *Filter
	stats        *Stats
	batchLimit   int
	backoffFloor time.Duration
	backoffCap   time.Duration
	logger       logpkg.Logger

	startOnce sync.Once
	cancel    context.CancelFunc
	group     *errgroup.Group
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithConsumerStats records consume counts and end-to-end latencies.
func WithConsumerStats(s *Stats) ConsumerOption {
	return func(c *Consumer) { c.stats = s }
}

// WithBatchLimit bounds each poll's scan.
func WithBatchLimit(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.batchLimit = n
		}
	}
}

// WithFilter gates delivery through a compiled message filter.
func WithFilter(f *Filter) ConsumerOption {
	return func(c *Consumer) { c.filter = f }
}

// Start launches one poller goroutine per partition. It returns
// immediately; pollers run until the context is cancelled, the consumer is
// closed, or a poller fails.
func (c *Consumer) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		c.group, ctx = errgroup.WithContext(ctx)
		for p := 0; p < c.partitions; p++ {
			partition := p
			c.group.Go(func() error { return c.poll(ctx, partition) })
		}
	})
}

// poll is one partition's delivery loop: scan from the cursor, deliver and
// advance on data, back off on empty results. Errors stop the poller and
// are reported from Close; empty results are retried, errors are not.
func (c *Consumer) poll(ctx context.Context, partition int) error {
	key := PartitionKey(c.topic, partition)
	var cursor uint64
	backoff := c.backoffFloor
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		entries, err := c.reader.Read(key, cursor, c.batchLimit)
		if err != nil {
			c.logger.Error("poll failed", logpkg.Int("partition", partition), logpkg.Err(err))
			return fmt.Errorf("partition %d: %w", partition, err)
		}
		if len(entries) == 0 {
			// Short sleep with jitter; never busy-spin on an idle partition.
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff + time.Duration(rand.Int63n(int64(backoff)))):
			}
			if backoff *= 2; backoff > c.backoffCap {
				backoff = c.backoffCap
			}
			continue
		}

		for _, e := range entries {
			msgID, payload, err := unframeMessage(e.Value)
			if err != nil {
				c.logger.Warn("skipping malformed message",
					logpkg.Int("partition", partition),
					logpkg.Uint64("sequence", e.Sequence),
					logpkg.Err(err))
				continue
			}
			e.Value = payload
			if c.filter != nil && !c.filter.Match(partition, e) {
				continue
			}
			c.cb(partition, msgID, e)
			if c.stats != nil {
				c.stats.RecordConsume(time.Duration(time.Now().UnixMilli()-e.Timestamp)*time.Millisecond, len(payload))
			}
		}
		cursor = entries[len(entries)-1].Sequence + 1
		backoff = c.backoffFloor
	}
}

// Close cancels the pollers, waits for them to drain, and releases the
// reader. Idempotent. The returned error is the first poller failure, if
// any.
func (c *Consumer) Close() error {
	var err error
	if c.cancel != nil {
		c.cancel()
		err = c.group.Wait()
	}
	if cerr := c.reader.Close(); err == nil {
		err = cerr
	}
	return err
}
