// Package outboxrelay drains the transactional outbox (SPEC_FULL.md §4.11:
// "asynchronously drained by a publisher goroutine that moves PENDING →
// PROCESSING → PUBLISHED|FAILED rows to RabbitMQ"), grounded on the
// teacher's producer.rabbitmq.go publish path and the reconstructed
// outbox state machine in internal/store/postgres/outbox.go.
package outboxrelay

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/cebartling/orderflow/internal/eventbus"
	"github.com/cebartling/orderflow/internal/store/postgres"
	"github.com/cebartling/orderflow/internal/telemetry"
)

// Store is the narrow subset of postgres.OutboxRepository the relay
// depends on, letting tests substitute a fake.
type Store interface {
	ClaimPending(ctx context.Context, limit int) ([]postgres.PendingRow, error)
	MarkStatus(ctx context.Context, id string, from, to postgres.OutboxStatus) error
	IncrementRetry(ctx context.Context, id string) (int, error)
}

// Relay polls Store for PENDING rows, publishes each to exchange, and
// advances its status. A row whose retry count reaches MaxRetries is moved
// to DLQ instead of being retried forever.
type Relay struct {
	Store      Store
	Publisher  eventbus.Publisher
	Exchange   string
	RoutingKey string
	MaxRetries int
	PollEvery  time.Duration
	Tracer     trace.Tracer
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	interval := r.PollEvery
	if interval == 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drainOnce(ctx)
		}
	}
}

func (r *Relay) drainOnce(ctx context.Context) {
	logger := telemetry.LoggerFromContext(ctx)

	rows, err := r.Store.ClaimPending(ctx, 100)
	if err != nil {
		logger.Errorw("outboxrelay: claim pending failed", "error", err)
		return
	}

	for _, row := range rows {
		r.publishOne(ctx, row)
	}
}

func (r *Relay) publishOne(ctx context.Context, row postgres.PendingRow) {
	ctx, span := r.Tracer.Start(ctx, "outboxrelay.publish")
	defer span.End()

	logger := telemetry.LoggerFromContext(ctx)

	if err := r.Publisher.Publish(ctx, r.Exchange, r.RoutingKey, row.Payload); err != nil {
		telemetry.RecordSpanError(span, "publish outbox row failed", err)

		retries, incErr := r.Store.IncrementRetry(ctx, row.ID)
		if incErr != nil {
			logger.Errorw("outboxrelay: increment retry failed", "id", row.ID, "error", incErr)
		}

		target := postgres.StatusFailed

		markErr := r.Store.MarkStatus(ctx, row.ID, postgres.StatusProcessing, target)
		if markErr != nil && !errors.Is(markErr, sql.ErrNoRows) {
			logger.Errorw("outboxrelay: mark failed failed", "id", row.ID, "error", markErr)
		}

		if retries >= r.MaxRetries {
			if err := r.Store.MarkStatus(ctx, row.ID, postgres.StatusFailed, postgres.StatusDLQ); err != nil && !errors.Is(err, sql.ErrNoRows) {
				logger.Errorw("outboxrelay: mark dlq failed", "id", row.ID, "error", err)
			}
		}

		return
	}

	if err := r.Store.MarkStatus(ctx, row.ID, postgres.StatusProcessing, postgres.StatusPublished); err != nil && !errors.Is(err, sql.ErrNoRows) {
		logger.Errorw("outboxrelay: mark published failed", "id", row.ID, "error", err)
	}
}
