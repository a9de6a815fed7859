package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/cebartling/orderflow/internal/saga"
	"github.com/cebartling/orderflow/internal/telemetry"
)

const ordersTable = "orders"

// OrderRepository is the Postgres-backed saga.OrderStore.
type OrderRepository struct {
	Conn   *Connection
	Tracer trace.Tracer
}

func (r *OrderRepository) Create(ctx context.Context, order *saga.Order) error {
	ctx, span := r.Tracer.Start(ctx, "postgres.order.create")
	defer span.End()

	items, err := json.Marshal(order.Items)
	if err != nil {
		telemetry.RecordSpanError(span, "marshal order items", err)
		return err
	}

	_, err = r.Conn.DB().ExecContext(ctx,
		`INSERT INTO `+ordersTable+` (id, status, items, amount_cents, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		order.ID, order.Status, items, order.AmountCents, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		telemetry.RecordSpanError(span, "insert order", err)
		return err
	}

	return nil
}

// FindByID loads an order by primary key, returning (nil, nil) when
// absent (used by the retry orchestrator to rebuild its step list).
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*saga.Order, error) {
	ctx, span := r.Tracer.Start(ctx, "postgres.order.find_by_id")
	defer span.End()

	row := r.Conn.DB().QueryRowContext(ctx,
		`SELECT id, status, items, amount_cents, created_at, updated_at FROM `+ordersTable+` WHERE id = $1`, id)

	order := &saga.Order{}

	var items []byte

	if err := row.Scan(&order.ID, &order.Status, &items, &order.AmountCents, &order.CreatedAt, &order.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		telemetry.RecordSpanError(span, "scan order", err)

		return nil, err
	}

	if err := json.Unmarshal(items, &order.Items); err != nil {
		telemetry.RecordSpanError(span, "unmarshal order items", err)
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status saga.OrderStatus) error {
	ctx, span := r.Tracer.Start(ctx, "postgres.order.update_status")
	defer span.End()

	_, err := r.Conn.DB().ExecContext(ctx,
		`UPDATE `+ordersTable+` SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), orderID,
	)
	if err != nil {
		telemetry.RecordSpanError(span, "update order status", err)
		return err
	}

	return nil
}
