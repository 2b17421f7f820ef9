package bench

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opendata-oss/opendata-go/pkg/config"
	"github.com/opendata-oss/opendata-go/pkg/id"
	logpkg "github.com/opendata-oss/opendata-go/pkg/log"
	"github.com/opendata-oss/opendata-go/pkg/logdb"
)

// Runner executes one benchmark run end to end: open the store, start a
// consumer, drive producers for the configured duration, drain, and report.
type Runner struct {
	cfg    Config
	logger logpkg.Logger
}

// NewRunner validates the run configuration.
func NewRunner(cfg Config, logger logpkg.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Runner{cfg: cfg, logger: logger.With(logpkg.Component("bench"))}, nil
}

// Run blocks until the run completes or ctx is cancelled, and returns the
// final snapshot.
func (r *Runner) Run(ctx context.Context) (Snapshot, error) {
	st, err := r.cfg.Storage.ToStorage()
	if err != nil {
		return Snapshot{}, err
	}

	seg := config.DefaultSegment()
	if r.cfg.SealIntervalMs > 0 {
		seg = config.WithSealInterval(time.Duration(r.cfg.SealIntervalMs) * time.Millisecond)
	}
	l, err := logdb.Open(logdb.Config{Storage: st, Segmentation: seg})
	if err != nil {
		return Snapshot{}, fmt.Errorf("open store: %w", err)
	}
	defer l.Close()

	filter, err := NewFilter(r.cfg.Filter)
	if err != nil {
		return Snapshot{}, fmt.Errorf("compile filter: %w", err)
	}

	stats := NewStats()
	driver := NewDriver(l, r.logger)
	driver.CreateTopic(r.cfg.Topic, r.cfg.Partitions)

	consumer, err := driver.CreateConsumer(r.cfg.Topic, "bench",
		func(int, id.ID, logdb.LogEntry) {},
		WithConsumerStats(stats),
		WithBatchLimit(r.cfg.BatchLimit),
		WithFilter(filter))
	if err != nil {
		return Snapshot{}, err
	}
	consumer.Start(ctx)

	r.logger.Info("run starting",
		logpkg.Str("topic", r.cfg.Topic),
		logpkg.Int("partitions", r.cfg.Partitions),
		logpkg.Int("producers", r.cfg.Producers),
		logpkg.Duration("duration", time.Duration(r.cfg.DurationMs)*time.Millisecond))

	produceCtx, cancelProduce := context.WithTimeout(ctx,
		time.Duration(r.cfg.DurationMs)*time.Millisecond)
	defer cancelProduce()

	group, produceCtx := errgroup.WithContext(produceCtx)
	for i := 0; i < r.cfg.Producers; i++ {
		producer, perr := driver.CreateProducer(r.cfg.Topic,
			WithProducerStats(stats), WithRate(r.cfg.RatePerSec))
		if perr != nil {
			cancelProduce()
			consumer.Close()
			return Snapshot{}, perr
		}
		group.Go(func() error { return r.produce(produceCtx, producer) })
	}

	runErr := group.Wait()
	if runErr != nil && !errors.Is(runErr, context.DeadlineExceeded) && !errors.Is(runErr, context.Canceled) {
		consumer.Close()
		return stats.Snapshot(), runErr
	}

	// Let the consumer catch up on the tail before reporting.
	r.drain(ctx, stats)
	if cerr := consumer.Close(); cerr != nil {
		return stats.Snapshot(), cerr
	}
	return stats.Snapshot(), ctx.Err()
}

// produce publishes messages until the context expires.
func (r *Runner) produce(ctx context.Context, p *Producer) error {
	payload := make([]byte, r.cfg.PayloadBytes)
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rnd.Read(payload)
		if _, err := p.Send(ctx, "", payload); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// drain waits until the consumer has caught up with the producers, or the
// drain window elapses.
func (r *Runner) drain(ctx context.Context, stats *Stats) {
	deadline := time.Now().Add(time.Duration(r.cfg.DrainMs) * time.Millisecond)
	for time.Now().Before(deadline) {
		snap := stats.Snapshot()
		if r.cfg.Filter == "" && snap.Consumed >= snap.Published {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
}
