package saga

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/cebartling/orderflow/internal/clock"
	"github.com/cebartling/orderflow/internal/idgen"
	"github.com/cebartling/orderflow/internal/telemetry"
)

// SkipPredicate decides whether a step should be skipped (spec.md §4.6,
// §4.8: the retry orchestrator supplies one that skips steps whose last
// recorded result is still valid).
type SkipPredicate func(step Step) bool

// NeverSkip always runs every step, the default for a fresh saga.
func NeverSkip(Step) bool { return false }

// Outcome is the step executor's tagged result (spec.md §4.6 "AllSucceeded
// | Failed(step, index, error)").
type Outcome struct {
	AllSucceeded bool
	FailedStep   string
	FailedIndex  int
	Err          error
}

// Executor runs an ordered step list against a saga execution (spec.md
// §4.6).
type Executor struct {
	Executions  ExecutionStore
	StepResults StepResultStore
	History     HistoryStore
	Clock       clock.Clock
	IDs         idgen.Generator
	Tracer      trace.Tracer
}

// Execute runs steps in order, persisting a step-result row and history
// events for each, and returns on the first failure.
func (e *Executor) Execute(ctx context.Context, steps []Step, sagaCtx *Context, sagaExecutionID string, skip SkipPredicate) Outcome {
	if skip == nil {
		skip = NeverSkip
	}

	ctx, span := e.Tracer.Start(ctx, "saga.execute")
	defer span.End()

	for index, step := range steps {
		if skip(step) {
			result := &StepResult{
				ID:              e.IDs.NewID().String(),
				SagaExecutionID: sagaExecutionID,
				StepName:        step.Name(),
				StepOrder:       index,
				State:           StepSkipped,
			}

			if err := e.StepResults.Insert(ctx, result); err != nil {
				return Outcome{Err: err, FailedStep: step.Name(), FailedIndex: index}
			}

			continue
		}

		if err := e.runStep(ctx, step, index, sagaCtx, sagaExecutionID); err != nil {
			return Outcome{FailedStep: step.Name(), FailedIndex: index, Err: err}
		}
	}

	return Outcome{AllSucceeded: true}
}

func (e *Executor) runStep(ctx context.Context, step Step, index int, sagaCtx *Context, sagaExecutionID string) error {
	result := &StepResult{
		ID:              e.IDs.NewID().String(),
		SagaExecutionID: sagaExecutionID,
		StepName:        step.Name(),
		StepOrder:       index,
		State:           StepPending,
	}

	if err := e.StepResults.Insert(ctx, result); err != nil {
		return err
	}

	if err := e.Executions.UpdatePhase(ctx, sagaExecutionID, PhaseRunning, index+1); err != nil {
		return err
	}

	if err := e.StepResults.MarkInProgress(ctx, result.ID); err != nil {
		return err
	}

	if err := e.History.Append(ctx, &HistoryEvent{
		ID:              e.IDs.NewID().String(),
		OrderID:         sagaCtx.OrderID,
		SagaExecutionID: sagaExecutionID,
		Kind:            EventStepStarted,
		StepName:        step.Name(),
		At:              e.Clock.Now(),
	}); err != nil {
		return err
	}

	payload, err := step.Execute(ctx, sagaCtx)
	if err != nil {
		telemetry.RecordSpanError(trace.SpanFromContext(ctx), "step execute failed", err)

		if markErr := e.StepResults.MarkFailed(ctx, result.ID, err.Error()); markErr != nil {
			return markErr
		}

		if appendErr := e.History.Append(ctx, &HistoryEvent{
			ID:              e.IDs.NewID().String(),
			OrderID:         sagaCtx.OrderID,
			SagaExecutionID: sagaExecutionID,
			Kind:            EventStepFailed,
			StepName:        step.Name(),
			Error:           err.Error(),
			At:              e.Clock.Now(),
		}); appendErr != nil {
			return appendErr
		}

		return err
	}

	sagaCtx.Values[step.Name()] = payload

	if err := e.StepResults.MarkCompleted(ctx, result.ID, payload); err != nil {
		return err
	}

	return e.History.Append(ctx, &HistoryEvent{
		ID:              e.IDs.NewID().String(),
		OrderID:         sagaCtx.OrderID,
		SagaExecutionID: sagaExecutionID,
		Kind:            EventStepCompleted,
		StepName:        step.Name(),
		Payload:         payload,
		At:              e.Clock.Now(),
	})
}
