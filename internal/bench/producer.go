package bench

import (
	"context"
	"fmt"
	"hash/crc32"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/opendata-oss/opendata-go/pkg/id"
	logpkg "github.com/opendata-oss/opendata-go/pkg/log"
	"github.com/opendata-oss/opendata-go/pkg/logdb"
)

var routingTable = crc32.MakeTable(crc32.Castagnoli)

// Producer routes logical messages onto a topic's partition keys and
// appends them, stamping each message with a sortable ID.
type Producer struct {
	log        *logdb.Log
	topic      string
	partitions int
	name       string
	ids        *id.Generator
	logger     logpkg.Logger

	rr      atomic.Uint64
	limiter *rate.Limiter
	stats   *Stats
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithProducerStats records publish counts and latencies into stats.
func WithProducerStats(s *Stats) ProducerOption {
	return func(p *Producer) { p.stats = s }
}

// WithRate caps the producer at messagesPerSecond. Zero leaves it
// unlimited.
func WithRate(messagesPerSecond float64) ProducerOption {
	return func(p *Producer) {
		if messagesPerSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(messagesPerSecond), 1)
		}
	}
}

// Send frames one message with a fresh ID and appends it. An empty msgKey
// routes round-robin; otherwise
// the partition is chosen by hashing msgKey, so equal keys land on the same
// partition. The returned AppendResult carries the assigned sequence and
// the record's creation timestamp.
func (p *Producer) Send(ctx context.Context, msgKey string, payload []byte) (logdb.AppendResult, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return logdb.AppendResult{}, err
		}
	}

	partition := p.route(msgKey)
	rec := logdb.NewRecord(PartitionKey(p.topic, partition), frameMessage(p.ids.Next(), payload))
	res, err := p.log.Append(ctx, []logdb.Record{rec})
	if err != nil {
		if p.stats != nil {
			p.stats.RecordError()
		}
		p.logger.Error("send failed",
			logpkg.Str("producer", p.name),
			logpkg.Int("partition", partition),
			logpkg.Err(err))
		return logdb.AppendResult{}, fmt.Errorf("send to %s/%d: %w", p.topic, partition, err)
	}
	if p.stats != nil {
		p.stats.RecordPublish(time.Duration(time.Now().UnixMilli()-rec.Timestamp)*time.Millisecond, len(payload))
	}
	return res, nil
}

// route picks the partition for a message key.
func (p *Producer) route(msgKey string) int {
	if p.partitions <= 1 {
		return 0
	}
	if msgKey == "" {
		return int((p.rr.Add(1) - 1) % uint64(p.partitions))
	}
	return int(crc32.Checksum([]byte(msgKey), routingTable) % uint32(p.partitions))
}
