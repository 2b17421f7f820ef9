package bench

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/opendata-oss/opendata-go/pkg/id"
	logpkg "github.com/opendata-oss/opendata-go/pkg/log"
	"github.com/opendata-oss/opendata-go/pkg/logdb"
)

// PartitionKey maps partition p of a topic onto the flat key space.
func PartitionKey(topic string, partition int) []byte {
	return []byte(topic + "/" + strconv.Itoa(partition))
}

// Driver creates producers and consumers for benchmark workloads on one log
// store. It tracks topic partition counts; the store itself has no topic
// concept.
type Driver struct {
	log    *logdb.Log
	logger logpkg.Logger
	ids    *id.Generator

	mu     sync.Mutex
	topics map[string]int
}

// NewDriver wraps an open log store.
func NewDriver(l *logdb.Log, logger logpkg.Logger) *Driver {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Driver{
		log:    l,
		logger: logger.With(logpkg.Component("bench")),
		ids:    id.NewGenerator(),
		topics: map[string]int{},
	}
}

// CreateTopic records the intended partition count for a topic. Pure
// bookkeeping: it always succeeds and touches no storage.
func (d *Driver) CreateTopic(name string, partitions int) {
	if partitions < 1 {
		partitions = 1
	}
	d.mu.Lock()
	d.topics[name] = partitions
	d.mu.Unlock()
	d.logger.Debug("topic registered",
		logpkg.Str("topic", name), logpkg.Int("partitions", partitions))
}

// partitions returns the registered partition count, defaulting to 1 for
// unregistered topics.
func (d *Driver) partitions(topic string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.topics[topic]; ok {
		return n
	}
	return 1
}

// CreateProducer returns a producer routing messages across the topic's
// partition keys.
func (d *Driver) CreateProducer(topic string, opts ...ProducerOption) (*Producer, error) {
	p := &Producer{
		log:        d.log,
		topic:      topic,
		partitions: d.partitions(topic),
		name:       d.ids.Next().String(),
		ids:        d.ids,
		logger:     d.logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// CreateConsumer returns a consumer with one poller per partition.
// Subscription names keep concurrent consumers of the same topic apart in
// logs and stats; delivery state is per consumer instance.
func (d *Driver) CreateConsumer(topic, subscription string, cb DeliveryFunc, opts ...ConsumerOption) (*Consumer, error) {
	if cb == nil {
		return nil, fmt.Errorf("bench: consumer %q needs a delivery callback", subscription)
	}
	reader, err := d.log.Reader()
	if err != nil {
		return nil, fmt.Errorf("bench: consumer %q: %w", subscription, err)
	}
	c := &Consumer{
		reader:       reader,
		topic:        topic,
		subscription: subscription,
		partitions:   d.partitions(topic),
		cb:           cb,
		batchLimit:   defaultBatchLimit,
		backoffFloor: defaultBackoffFloor,
		backoffCap:   defaultBackoffCap,
		logger: d.logger.With(
			logpkg.Str("topic", topic),
			logpkg.Str("subscription", subscription)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}
