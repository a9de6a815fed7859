package postgres

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/cebartling/orderflow/internal/saga"
	"github.com/cebartling/orderflow/internal/telemetry"
)

const sagaHistoryTable = "saga_history"

// HistoryRepository is the Postgres-backed saga.HistoryStore. History
// rows are append-only and never updated or deleted (spec.md §3 "History
// events are immutable and never deleted").
type HistoryRepository struct {
	Conn   *Connection
	Tracer trace.Tracer
}

func (r *HistoryRepository) Append(ctx context.Context, event *saga.HistoryEvent) error {
	ctx, span := r.Tracer.Start(ctx, "postgres.saga.append_history")
	defer span.End()

	_, err := r.Conn.DB().ExecContext(ctx,
		`INSERT INTO `+sagaHistoryTable+` (id, order_id, saga_execution_id, kind, step_name, payload, error, at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.OrderID, event.SagaExecutionID, event.Kind, event.StepName, event.Payload, event.Error, event.At,
	)
	if err != nil {
		telemetry.RecordSpanError(span, "append history event", err)
		return err
	}

	return nil
}
