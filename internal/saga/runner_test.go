package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func newTestRunner(orders *memoryOrderStore, executions ExecutionStore, executor *Executor, compensator *Orchestrator) *Runner {
	return &Runner{
		Orders:      orders,
		Executions:  executions,
		Executor:    executor,
		Compensator: compensator,
		Clock:       testClock(),
		IDs:         testIDs(),
		Tracer:      tracenoop.NewTracerProvider().Tracer("test"),
	}
}

func TestRunnerCompletesOrderOnAllStepsSucceeding(t *testing.T) {
	executions := newMemoryExecutionStore()
	stepResults := newMemoryStepResultStore()
	history := newMemoryHistoryStore()
	orders := newMemoryOrderStore()

	executor := newTestExecutor(executions, stepResults, history)
	compensator := newTestOrchestrator(executions, orders, history)
	runner := newTestRunner(orders, executions, executor, compensator)

	require.NoError(t, orders.Create(context.Background(), &Order{ID: "order-1", Status: OrderPending}))

	steps := []Step{
		&ReserveStep{Inventory: &fakeInventory{}, Items: nil},
		&AuthorizeStep{Payment: &fakePayment{}, AmountCents: 1000},
		&ShipStep{Shipping: &fakeShipping{}},
	}

	result, err := runner.Run(context.Background(), "order-1", steps, NewContext("order-1"))
	require.NoError(t, err)

	assert.True(t, result.Outcome.AllSucceeded)
	assert.Nil(t, result.Compensation)
	assert.Equal(t, OrderCompleted, orders.statusOf("order-1"))
}

func TestRunnerCompensatesOnStepFailure(t *testing.T) {
	executions := newMemoryExecutionStore()
	stepResults := newMemoryStepResultStore()
	history := newMemoryHistoryStore()
	orders := newMemoryOrderStore()

	executor := newTestExecutor(executions, stepResults, history)
	compensator := newTestOrchestrator(executions, orders, history)
	runner := newTestRunner(orders, executions, executor, compensator)

	require.NoError(t, orders.Create(context.Background(), &Order{ID: "order-1", Status: OrderPending}))

	inventory := &fakeInventory{}
	payment := &fakePayment{}
	shipping := &fakeShipping{shipErr: errors.New("carrier unavailable")}

	steps := []Step{
		&ReserveStep{Inventory: inventory, Items: nil},
		&AuthorizeStep{Payment: payment, AmountCents: 1000},
		&ShipStep{Shipping: shipping},
	}

	result, err := runner.Run(context.Background(), "order-1", steps, NewContext("order-1"))
	require.NoError(t, err)

	require.NotNil(t, result.Compensation)
	assert.False(t, result.Outcome.AllSucceeded)
	assert.ElementsMatch(t, []string{"reserve", "authorize"}, result.Compensation.CompensatedSteps)
	assert.True(t, result.Compensation.AllSuccessful)
	assert.Equal(t, OrderFailed, orders.statusOf("order-1"))
}
