package saga

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/cebartling/orderflow/internal/clock"
	"github.com/cebartling/orderflow/internal/idgen"
)

// Runner composes Executor and Orchestrator into the full happy-path /
// compensation flow (spec.md §4 "step executor → (on failure) compensation
// orchestrator → history recorder"): mark the order RUNNING, create its
// execution row, run the steps, and compensate automatically on the first
// failure.
type Runner struct {
	Orders      OrderStore
	Executions  ExecutionStore
	Executor    *Executor
	Compensator *Orchestrator
	Clock       clock.Clock
	IDs         idgen.Generator
	Tracer      trace.Tracer
}

// RunResult reports how a saga ended.
type RunResult struct {
	ExecutionID string
	Outcome     Outcome
	Compensation *CompensationSummary
}

// Run executes steps against a freshly started saga for orderID. The order
// row must already exist: Run only updates its status.
func (r *Runner) Run(ctx context.Context, orderID string, steps []Step, sagaCtx *Context) (RunResult, error) {
	ctx, span := r.Tracer.Start(ctx, "saga.run")
	defer span.End()

	executionID := r.IDs.NewID().String()
	now := r.Clock.Now()

	if err := r.Orders.UpdateStatus(ctx, orderID, OrderRunning); err != nil {
		return RunResult{}, err
	}

	if err := r.Executions.Create(ctx, &Execution{
		ID:          executionID,
		OrderID:     orderID,
		Phase:       PhaseRunning,
		CurrentStep: 0,
		StartedAt:   now,
	}); err != nil {
		return RunResult{}, err
	}

	return r.runSteps(ctx, executionID, steps, sagaCtx)
}

func (r *Runner) runSteps(ctx context.Context, executionID string, steps []Step, sagaCtx *Context) (RunResult, error) {
	outcome := r.Executor.Execute(ctx, steps, sagaCtx, executionID, NeverSkip)

	if outcome.AllSucceeded {
		if err := r.Executions.SetCompleted(ctx, executionID); err != nil {
			return RunResult{}, err
		}

		if err := r.Orders.UpdateStatus(ctx, sagaCtx.OrderID, OrderCompleted); err != nil {
			return RunResult{}, err
		}

		return RunResult{ExecutionID: executionID, Outcome: outcome}, nil
	}

	completed := steps[:outcome.FailedIndex]
	failedStep := steps[outcome.FailedIndex]

	summary, err := r.Compensator.Compensate(ctx, executionID, sagaCtx, completed, failedStep, true)
	if err != nil {
		return RunResult{ExecutionID: executionID, Outcome: outcome}, err
	}

	return RunResult{ExecutionID: executionID, Outcome: outcome, Compensation: &summary}, nil
}
