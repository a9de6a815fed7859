package cdcintake

import (
	"context"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/cebartling/orderflow/internal/cdc"
	"github.com/cebartling/orderflow/internal/telemetry"
)

// GroupConfig configures the single logical consumer group spec.md §1
// mandates ("The CDC pipeline is a single logical consumer group; no
// re-sharding beyond the log's own partitioning").
type GroupConfig struct {
	Brokers    []string
	Topic      string
	GroupID    string
	Partitions int
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// Group supervises one PartitionConsumer per partition, restarting any
// that stop due to backpressure (errStoreUnavailable) with exponential
// backoff up to BackoffMax.
type Group struct {
	cfg          GroupConfig
	materializer *cdc.Materializer
}

// NewGroup builds a Group.
func NewGroup(cfg GroupConfig, materializer *cdc.Materializer) *Group {
	if cfg.BackoffMin == 0 {
		cfg.BackoffMin = 500 * time.Millisecond
	}

	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = 30 * time.Second
	}

	return &Group{cfg: cfg, materializer: materializer}
}

// Run starts one goroutine per partition and blocks until ctx is
// cancelled.
func (g *Group) Run(ctx context.Context) {
	for p := 0; p < g.cfg.Partitions; p++ {
		go g.runPartition(ctx, p)
	}

	<-ctx.Done()
}

func (g *Group) runPartition(ctx context.Context, partition int) {
	logger := telemetry.LoggerFromContext(ctx).With("partition", partition)
	backoff := g.cfg.BackoffMin

	for {
		if ctx.Err() != nil {
			return
		}

		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:   g.cfg.Brokers,
			Topic:     g.cfg.Topic,
			Partition: partition,
			GroupID:   "", // explicit partition assignment, not group rebalancing
		})

		pc := &PartitionConsumer{
			Reader:       reader,
			Materializer: g.materializer,
			Topic:        g.cfg.Topic,
			Partition:    partition,
		}

		err := pc.Run(ctx)

		_ = reader.Close()

		if err == nil || ctx.Err() != nil {
			return
		}

		logger.Warnw("partition consumer stopped, backing off before restart", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > g.cfg.BackoffMax {
			backoff = g.cfg.BackoffMax
		}
	}
}
