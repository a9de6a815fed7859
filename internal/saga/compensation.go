package saga

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/cebartling/orderflow/internal/clock"
	"github.com/cebartling/orderflow/internal/idgen"
	"github.com/cebartling/orderflow/internal/telemetry"
)

// CompensationSummary is the compensation orchestrator's result (spec.md
// §4.7).
type CompensationSummary struct {
	CompensatedSteps   []string
	FailedCompensations []string
	// NotRequiredSteps names the step that triggered compensation; it never
	// completed, so it has nothing to compensate.
	NotRequiredSteps   []string
	AllSuccessful      bool
}

// Orchestrator runs compensation over completed steps in reverse order
// (spec.md §4.7).
type Orchestrator struct {
	Executions  ExecutionStore
	Orders      OrderStore
	History     HistoryStore
	Clock       clock.Clock
	IDs         idgen.Generator
	Tracer      trace.Tracer
}

// Compensate rolls back completed steps, most-recent-first, stopping for
// nothing: every completed step is attempted even if an earlier
// compensation failed (spec.md §7 "Compensation failures do not
// cascade"). failedStep is the step that triggered compensation; it is
// never executed (it never completed) and is reported in NotRequiredSteps.
func (o *Orchestrator) Compensate(ctx context.Context, sagaExecutionID string, sagaCtx *Context, completed []Step, failedStep Step, emitSagaFailed bool) (CompensationSummary, error) {
	ctx, span := o.Tracer.Start(ctx, "saga.compensate")
	defer span.End()

	if err := o.Executions.UpdatePhase(ctx, sagaExecutionID, PhaseCompensating, 0); err != nil {
		return CompensationSummary{}, err
	}

	if err := o.Orders.UpdateStatus(ctx, sagaCtx.OrderID, OrderCompensating); err != nil {
		return CompensationSummary{}, err
	}

	if err := o.Executions.SetCompensationStarted(ctx, sagaExecutionID); err != nil {
		return CompensationSummary{}, err
	}

	now := o.Clock.Now()

	if err := o.History.Append(ctx, &HistoryEvent{
		ID:              o.IDs.NewID().String(),
		OrderID:         sagaCtx.OrderID,
		SagaExecutionID: sagaExecutionID,
		Kind:            EventCompensationStarted,
		StepName:        failedStep.Name(),
		At:              now,
	}); err != nil {
		return CompensationSummary{}, err
	}

	summary := CompensationSummary{AllSuccessful: true, NotRequiredSteps: []string{failedStep.Name()}}

	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]

		if err := step.Compensate(ctx, sagaCtx); err != nil {
			telemetry.RecordSpanError(span, "compensation failed", err)

			summary.FailedCompensations = append(summary.FailedCompensations, step.Name())
			summary.AllSuccessful = false

			if appendErr := o.History.Append(ctx, &HistoryEvent{
				ID:              o.IDs.NewID().String(),
				OrderID:         sagaCtx.OrderID,
				SagaExecutionID: sagaExecutionID,
				Kind:            EventCompensationFailed,
				StepName:        step.Name(),
				Error:           err.Error(),
				At:              o.Clock.Now(),
			}); appendErr != nil {
				return summary, appendErr
			}

			continue
		}

		summary.CompensatedSteps = append(summary.CompensatedSteps, step.Name())

		if err := o.History.Append(ctx, &HistoryEvent{
			ID:              o.IDs.NewID().String(),
			OrderID:         sagaCtx.OrderID,
			SagaExecutionID: sagaExecutionID,
			Kind:            EventStepCompensated,
			StepName:        step.Name(),
			At:              o.Clock.Now(),
		}); err != nil {
			return summary, err
		}
	}

	if emitSagaFailed {
		if err := o.History.Append(ctx, &HistoryEvent{
			ID:              o.IDs.NewID().String(),
			OrderID:         sagaCtx.OrderID,
			SagaExecutionID: sagaExecutionID,
			Kind:            EventSagaFailed,
			At:              o.Clock.Now(),
		}); err != nil {
			return summary, err
		}

		if err := o.Orders.UpdateStatus(ctx, sagaCtx.OrderID, OrderFailed); err != nil {
			return summary, err
		}
	}

	return summary, nil
}
