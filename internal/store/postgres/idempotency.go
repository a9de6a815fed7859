package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"go.opentelemetry.io/otel/trace"

	"github.com/cebartling/orderflow/internal/command"
	"github.com/cebartling/orderflow/internal/outcome"
	"github.com/cebartling/orderflow/internal/telemetry"
)

const idempotencyTable = "idempotency_keys"

// IdempotencyRepository is the Postgres-backed command.IdempotencyStore
// (spec.md §6: "idempotency(key PRIMARY KEY, command_type, aggregate_id,
// result, created_at)"), grounded on the same tracer-wrapped
// ExecContext/QueryRowContext style as ProductRepository.
type IdempotencyRepository struct {
	Conn   *Connection
	Tracer trace.Tracer
}

// Find looks up a prior result by idempotency key.
func (r *IdempotencyRepository) Find(ctx context.Context, key string) (*outcome.CommandResult, bool, error) {
	ctx, span := r.Tracer.Start(ctx, "postgres.idempotency.find")
	defer span.End()

	var raw []byte

	row := r.Conn.DB().QueryRowContext(ctx, `SELECT result FROM `+idempotencyTable+` WHERE key = $1`, key)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}

		telemetry.RecordSpanError(span, "scan idempotency result", err)

		return nil, false, err
	}

	var result outcome.CommandResult
	if err := json.Unmarshal(raw, &result); err != nil {
		telemetry.RecordSpanError(span, "unmarshal idempotency result", err)
		return nil, false, err
	}

	return &result, true, nil
}

// Save records the command result under key, in the same transaction as
// the aggregate write (spec.md §4.5). If another transaction already
// committed a row under key first, the ON CONFLICT clause affects zero
// rows and Save returns command.ErrIdempotencyConflict so the caller can
// roll back its own aggregate write and replay the winner's result instead
// of silently letting both writes stand.
func (r *IdempotencyRepository) Save(ctx context.Context, tx *sql.Tx, key, commandType, aggregateID string, result outcome.CommandResult) error {
	ctx, span := r.Tracer.Start(ctx, "postgres.idempotency.save")
	defer span.End()

	raw, err := json.Marshal(result)
	if err != nil {
		telemetry.RecordSpanError(span, "marshal idempotency result", err)
		return err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO `+idempotencyTable+` (key, command_type, aggregate_id, result, created_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (key) DO NOTHING`,
		key, commandType, aggregateID, raw,
	)
	if err != nil {
		telemetry.RecordSpanError(span, "insert idempotency", err)
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return command.ErrIdempotencyConflict
	}

	return nil
}
