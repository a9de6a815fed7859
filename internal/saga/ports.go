package saga

import "context"

// Step is the polymorphic unit the executor runs, replacing the source's
// class-based step hierarchy with an interface (spec.md §9 "Saga step
// polymorphism").
type Step interface {
	Name() string
	Execute(ctx context.Context, sagaCtx *Context) (payload []byte, err error)
	Compensate(ctx context.Context, sagaCtx *Context) error
}

// Context carries whatever state steps pass to one another, keyed by
// step name so later steps can read earlier steps' payloads.
type Context struct {
	OrderID string
	Values  map[string]any
}

// NewContext builds an empty step Context for orderID.
func NewContext(orderID string) *Context {
	return &Context{OrderID: orderID, Values: map[string]any{}}
}

// ExecutionStore persists saga executions (spec.md §6 "saga_executions").
type ExecutionStore interface {
	Create(ctx context.Context, exec *Execution) error
	UpdatePhase(ctx context.Context, id string, phase Phase, currentStep int) error
	SetCompensationStarted(ctx context.Context, id string) error
	SetCompleted(ctx context.Context, id string) error
	FindByOrderID(ctx context.Context, orderID string) (*Execution, error)
}

// StepResultStore persists step results (spec.md §6 "saga_step_results").
type StepResultStore interface {
	Insert(ctx context.Context, r *StepResult) error
	MarkInProgress(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, payload []byte) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	MarkCompensated(ctx context.Context, id string) error
	ListByExecution(ctx context.Context, sagaExecutionID string) ([]*StepResult, error)
}

// HistoryStore appends immutable history events (spec.md §6
// "saga_history").
type HistoryStore interface {
	Append(ctx context.Context, event *HistoryEvent) error
}

// OrderStore persists the order aggregate.
type OrderStore interface {
	UpdateStatus(ctx context.Context, orderID string, status OrderStatus) error
}
