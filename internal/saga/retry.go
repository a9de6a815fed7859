package saga

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Verifiable is implemented by steps whose completed effect can be
// checked against the outside world, letting the retry orchestrator
// decide whether a COMPLETED result is still valid ("state COMPLETED
// and its resource still exists"). A step that doesn't implement it is
// treated as still valid and skipped on retry.
type Verifiable interface {
	StillValid(ctx context.Context, sagaCtx *Context) (bool, error)
}

// RetryOrchestrator replays a FAILED saga from its last good step
// (spec.md §4.8). The contract is idempotent: N retries must yield the
// same terminal state as a single successful run.
type RetryOrchestrator struct {
	Executions  ExecutionStore
	StepResults StepResultStore
	Executor    *Executor
	Tracer      trace.Tracer
}

// Retry rebuilds a skip predicate from the saga's last persisted step
// results and re-runs steps through the executor.
func (r *RetryOrchestrator) Retry(ctx context.Context, orderID string, steps []Step, sagaCtx *Context) (Outcome, error) {
	ctx, span := r.Tracer.Start(ctx, "saga.retry")
	defer span.End()

	exec, err := r.Executions.FindByOrderID(ctx, orderID)
	if err != nil {
		return Outcome{}, err
	}

	results, err := r.StepResults.ListByExecution(ctx, exec.ID)
	if err != nil {
		return Outcome{}, err
	}

	lastState := map[string]StepState{}
	for _, res := range results {
		lastState[res.StepName] = res.State
	}

	skip := func(step Step) bool {
		if lastState[step.Name()] != StepCompleted {
			return false
		}

		v, ok := step.(Verifiable)
		if !ok {
			return true
		}

		valid, err := v.StillValid(ctx, sagaCtx)

		return err == nil && valid
	}

	return r.Executor.Execute(ctx, steps, sagaCtx, exec.ID, skip), nil
}
