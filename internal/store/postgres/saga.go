package postgres

import (
	"context"
	"database/sql"
	"errors"

	"go.opentelemetry.io/otel/trace"

	"github.com/cebartling/orderflow/internal/saga"
	"github.com/cebartling/orderflow/internal/telemetry"
)

const (
	sagaExecutionsTable  = "saga_executions"
	sagaStepResultsTable = "saga_step_results"
)

// ExecutionRepository is the Postgres-backed saga.ExecutionStore
// (spec.md §6 "saga_executions").
type ExecutionRepository struct {
	Conn   *Connection
	Tracer trace.Tracer
}

func (r *ExecutionRepository) Create(ctx context.Context, exec *saga.Execution) error {
	ctx, span := r.Tracer.Start(ctx, "postgres.saga.create_execution")
	defer span.End()

	_, err := r.Conn.DB().ExecContext(ctx,
		`INSERT INTO `+sagaExecutionsTable+` (id, order_id, phase, current_step, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		exec.ID, exec.OrderID, exec.Phase, exec.CurrentStep, exec.StartedAt,
	)
	if err != nil {
		telemetry.RecordSpanError(span, "insert saga execution", err)
		return err
	}

	return nil
}

func (r *ExecutionRepository) UpdatePhase(ctx context.Context, id string, phase saga.Phase, currentStep int) error {
	ctx, span := r.Tracer.Start(ctx, "postgres.saga.update_phase")
	defer span.End()

	_, err := r.Conn.DB().ExecContext(ctx,
		`UPDATE `+sagaExecutionsTable+` SET phase = $1, current_step = $2 WHERE id = $3`,
		phase, currentStep, id,
	)
	if err != nil {
		telemetry.RecordSpanError(span, "update saga phase", err)
		return err
	}

	return nil
}

func (r *ExecutionRepository) SetCompensationStarted(ctx context.Context, id string) error {
	ctx, span := r.Tracer.Start(ctx, "postgres.saga.set_compensation_started")
	defer span.End()

	_, err := r.Conn.DB().ExecContext(ctx,
		`UPDATE `+sagaExecutionsTable+` SET compensation_started_at = now() WHERE id = $1`, id)
	if err != nil {
		telemetry.RecordSpanError(span, "set compensation started", err)
		return err
	}

	return nil
}

func (r *ExecutionRepository) SetCompleted(ctx context.Context, id string) error {
	ctx, span := r.Tracer.Start(ctx, "postgres.saga.set_completed")
	defer span.End()

	_, err := r.Conn.DB().ExecContext(ctx,
		`UPDATE `+sagaExecutionsTable+` SET phase = $1, completed_at = now() WHERE id = $2`,
		saga.PhaseCompleted, id,
	)
	if err != nil {
		telemetry.RecordSpanError(span, "set saga completed", err)
		return err
	}

	return nil
}

func (r *ExecutionRepository) FindByOrderID(ctx context.Context, orderID string) (*saga.Execution, error) {
	ctx, span := r.Tracer.Start(ctx, "postgres.saga.find_by_order_id")
	defer span.End()

	row := r.Conn.DB().QueryRowContext(ctx,
		`SELECT id, order_id, phase, current_step, started_at, completed_at, compensation_started_at
		 FROM `+sagaExecutionsTable+` WHERE order_id = $1 ORDER BY started_at DESC LIMIT 1`, orderID)

	exec := &saga.Execution{}

	err := row.Scan(&exec.ID, &exec.OrderID, &exec.Phase, &exec.CurrentStep, &exec.StartedAt, &exec.CompletedAt, &exec.CompensationStartedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			telemetry.RecordSpanError(span, "scan saga execution", err)
		}

		return nil, err
	}

	return exec, nil
}

// StepResultRepository is the Postgres-backed saga.StepResultStore
// (spec.md §6 "saga_step_results").
type StepResultRepository struct {
	Conn   *Connection
	Tracer trace.Tracer
}

func (r *StepResultRepository) Insert(ctx context.Context, result *saga.StepResult) error {
	ctx, span := r.Tracer.Start(ctx, "postgres.saga.insert_step_result")
	defer span.End()

	_, err := r.Conn.DB().ExecContext(ctx,
		`INSERT INTO `+sagaStepResultsTable+` (id, saga_execution_id, step_name, step_order, state)
		 VALUES ($1, $2, $3, $4, $5)`,
		result.ID, result.SagaExecutionID, result.StepName, result.StepOrder, result.State,
	)
	if err != nil {
		telemetry.RecordSpanError(span, "insert step result", err)
		return err
	}

	return nil
}

func (r *StepResultRepository) MarkInProgress(ctx context.Context, id string) error {
	return r.setState(ctx, id, saga.StepInProgress, "", nil, true, false)
}

func (r *StepResultRepository) MarkCompleted(ctx context.Context, id string, payload []byte) error {
	return r.setState(ctx, id, saga.StepCompleted, "", payload, false, true)
}

func (r *StepResultRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.setState(ctx, id, saga.StepFailed, errMsg, nil, false, true)
}

func (r *StepResultRepository) MarkCompensated(ctx context.Context, id string) error {
	return r.setState(ctx, id, saga.StepCompensated, "", nil, false, false)
}

func (r *StepResultRepository) setState(ctx context.Context, id string, state saga.StepState, errMsg string, payload []byte, setStarted, setEnded bool) error {
	ctx, span := r.Tracer.Start(ctx, "postgres.saga.set_step_state")
	defer span.End()

	query := `UPDATE ` + sagaStepResultsTable + ` SET state = $1, error_message = $2, payload = $3`
	args := []any{state, errMsg, payload}

	if setStarted {
		query += `, started_at = now()`
	}

	if setEnded {
		query += `, ended_at = now()`
	}

	query += ` WHERE id = $4`
	args = append(args, id)

	_, err := r.Conn.DB().ExecContext(ctx, query, args...)
	if err != nil {
		telemetry.RecordSpanError(span, "update step result state", err)
		return err
	}

	return nil
}

func (r *StepResultRepository) ListByExecution(ctx context.Context, sagaExecutionID string) ([]*saga.StepResult, error) {
	ctx, span := r.Tracer.Start(ctx, "postgres.saga.list_by_execution")
	defer span.End()

	rows, err := r.Conn.DB().QueryContext(ctx,
		`SELECT id, saga_execution_id, step_name, step_order, state, payload, error_message, started_at, ended_at
		 FROM `+sagaStepResultsTable+` WHERE saga_execution_id = $1 ORDER BY step_order ASC`, sagaExecutionID)
	if err != nil {
		telemetry.RecordSpanError(span, "list step results", err)
		return nil, err
	}
	defer rows.Close()

	var results []*saga.StepResult

	for rows.Next() {
		result := &saga.StepResult{}

		if err := rows.Scan(&result.ID, &result.SagaExecutionID, &result.StepName, &result.StepOrder,
			&result.State, &result.Payload, &result.ErrorMessage, &result.StartedAt, &result.EndedAt); err != nil {
			telemetry.RecordSpanError(span, "scan step result", err)
			return nil, err
		}

		results = append(results, result)
	}

	return results, rows.Err()
}
