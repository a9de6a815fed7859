package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/cebartling/orderflow/internal/command"
	"github.com/cebartling/orderflow/internal/telemetry"
)

// OutboxStatus is the outbox row's publication lifecycle, reconstructed
// from the teacher's outbox state_machine_test.go (PENDING→PROCESSING,
// PROCESSING→{PUBLISHED,FAILED}, FAILED→{PROCESSING,DLQ}; PUBLISHED and
// DLQ are terminal).
type OutboxStatus string

const (
	StatusPending    OutboxStatus = "PENDING"
	StatusProcessing OutboxStatus = "PROCESSING"
	StatusPublished  OutboxStatus = "PUBLISHED"
	StatusFailed     OutboxStatus = "FAILED"
	StatusDLQ        OutboxStatus = "DLQ"
)

// ValidOutboxTransitions enumerates the allowed status transitions.
var ValidOutboxTransitions = map[OutboxStatus][]OutboxStatus{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusPublished, StatusFailed},
	StatusPublished:  {},
	StatusFailed:     {StatusProcessing, StatusDLQ},
	StatusDLQ:        {},
}

// CanTransitionTo reports whether the transition from s to target is
// allowed.
func (s OutboxStatus) CanTransitionTo(target OutboxStatus) bool {
	for _, allowed := range ValidOutboxTransitions[s] {
		if allowed == target {
			return true
		}
	}

	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func (s OutboxStatus) IsTerminal() bool {
	return len(ValidOutboxTransitions[s]) == 0
}

const outboxTable = "outbox_events"

// OutboxRepository is the Postgres-backed command.OutboxStore. Rows are
// inserted PENDING in the same transaction as the aggregate write
// (spec.md §4.5); internal/outboxrelay drains them through
// PROCESSING/PUBLISHED/FAILED/DLQ.
type OutboxRepository struct {
	Conn   *Connection
	Tracer trace.Tracer
}

// PendingRow is a single outbox row claimed for publishing.
type PendingRow struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     []byte
	RetryCount  int
}

// Insert records an outbound event in PENDING status.
func (r *OutboxRepository) Insert(ctx context.Context, tx *sql.Tx, event command.OutboxEvent) error {
	ctx, span := r.Tracer.Start(ctx, "postgres.outbox.insert")
	defer span.End()

	_, err := tx.ExecContext(ctx,
		`INSERT INTO `+outboxTable+` (id, aggregate_id, event_type, payload, status, retry_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, 0, now())`,
		uuid.New().String(), event.AggregateID, event.EventType, event.Payload, StatusPending,
	)
	if err != nil {
		telemetry.RecordSpanError(span, "insert outbox event", err)
		return err
	}

	return nil
}

// MarkStatus transitions an outbox row, rejecting transitions the state
// machine does not allow.
func (r *OutboxRepository) MarkStatus(ctx context.Context, id string, from, to OutboxStatus) error {
	ctx, span := r.Tracer.Start(ctx, "postgres.outbox.mark_status")
	defer span.End()

	if !from.CanTransitionTo(to) {
		err := &invalidOutboxTransitionError{from: from, to: to}
		telemetry.RecordSpanError(span, "invalid outbox transition", err)

		return err
	}

	result, err := r.Conn.DB().ExecContext(ctx,
		`UPDATE `+outboxTable+` SET status = $1 WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		telemetry.RecordSpanError(span, "update outbox status", err)
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// ClaimPending atomically moves up to limit PENDING or FAILED rows to
// PROCESSING and returns them for publishing, oldest first.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]PendingRow, error) {
	ctx, span := r.Tracer.Start(ctx, "postgres.outbox.claim_pending")
	defer span.End()

	tx, err := r.Conn.DB().BeginTx(ctx, nil)
	if err != nil {
		telemetry.RecordSpanError(span, "begin claim tx", err)
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, retry_count FROM `+outboxTable+`
		 WHERE status IN ($1, $2) ORDER BY created_at ASC LIMIT $3 FOR UPDATE SKIP LOCKED`,
		StatusPending, StatusFailed, limit,
	)
	if err != nil {
		telemetry.RecordSpanError(span, "query pending outbox rows", err)
		return nil, err
	}

	var claimed []PendingRow

	for rows.Next() {
		var row PendingRow
		if err := rows.Scan(&row.ID, &row.AggregateID, &row.EventType, &row.Payload, &row.RetryCount); err != nil {
			rows.Close()
			telemetry.RecordSpanError(span, "scan pending outbox row", err)

			return nil, err
		}

		claimed = append(claimed, row)
	}

	if err := rows.Err(); err != nil {
		telemetry.RecordSpanError(span, "iterate pending outbox rows", err)
		return nil, err
	}

	rows.Close()

	for _, row := range claimed {
		if _, err := tx.ExecContext(ctx, `UPDATE `+outboxTable+` SET status = $1 WHERE id = $2`, StatusProcessing, row.ID); err != nil {
			telemetry.RecordSpanError(span, "mark claimed row processing", err)
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		telemetry.RecordSpanError(span, "commit claim tx", err)
		return nil, err
	}

	return claimed, nil
}

// IncrementRetry bumps retry_count and returns its new value.
func (r *OutboxRepository) IncrementRetry(ctx context.Context, id string) (int, error) {
	ctx, span := r.Tracer.Start(ctx, "postgres.outbox.increment_retry")
	defer span.End()

	var retryCount int

	err := r.Conn.DB().QueryRowContext(ctx,
		`UPDATE `+outboxTable+` SET retry_count = retry_count + 1 WHERE id = $1 RETURNING retry_count`, id,
	).Scan(&retryCount)
	if err != nil {
		telemetry.RecordSpanError(span, "increment outbox retry count", err)
		return 0, err
	}

	return retryCount, nil
}

type invalidOutboxTransitionError struct {
	from, to OutboxStatus
}

func (e *invalidOutboxTransitionError) Error() string {
	return "postgres: invalid outbox transition " + string(e.from) + " -> " + string(e.to)
}
