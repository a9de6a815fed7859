package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/cebartling/orderflow/internal/clock"
	"github.com/cebartling/orderflow/internal/idgen"
	"github.com/cebartling/orderflow/internal/saga"
)

type testOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*saga.Order
}

func newTestOrderRepo() *testOrderRepo {
	return &testOrderRepo{orders: map[string]*saga.Order{}}
}

func (r *testOrderRepo) Create(_ context.Context, order *saga.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *order
	r.orders[order.ID] = &cp

	return nil
}

func (r *testOrderRepo) FindByID(_ context.Context, id string) (*saga.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.orders[id], nil
}

func (r *testOrderRepo) UpdateStatus(_ context.Context, orderID string, status saga.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o, ok := r.orders[orderID]; ok {
		o.Status = status
	}

	return nil
}

type testExecutionStore struct {
	mu    sync.Mutex
	byID  map[string]*saga.Execution
	byOrd map[string]*saga.Execution
}

func newTestExecutionStore() *testExecutionStore {
	return &testExecutionStore{byID: map[string]*saga.Execution{}, byOrd: map[string]*saga.Execution{}}
}

func (s *testExecutionStore) Create(_ context.Context, exec *saga.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[exec.ID] = exec
	s.byOrd[exec.OrderID] = exec

	return nil
}

func (s *testExecutionStore) UpdatePhase(_ context.Context, id string, phase saga.Phase, currentStep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.byID[id]; ok {
		e.Phase = phase
		e.CurrentStep = currentStep
	}

	return nil
}

func (s *testExecutionStore) SetCompensationStarted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.byID[id]; ok {
		e.Phase = saga.PhaseCompensating
	}

	return nil
}

func (s *testExecutionStore) SetCompleted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.byID[id]; ok {
		e.Phase = saga.PhaseCompleted
	}

	return nil
}

func (s *testExecutionStore) FindByOrderID(_ context.Context, orderID string) (*saga.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.byOrd[orderID], nil
}

type testStepResultStore struct {
	mu      sync.Mutex
	results map[string]*saga.StepResult
	byExec  map[string][]*saga.StepResult
}

func newTestStepResultStore() *testStepResultStore {
	return &testStepResultStore{results: map[string]*saga.StepResult{}, byExec: map[string][]*saga.StepResult{}}
}

func (s *testStepResultStore) Insert(_ context.Context, r *saga.StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[r.ID] = r
	s.byExec[r.SagaExecutionID] = append(s.byExec[r.SagaExecutionID], r)

	return nil
}

func (s *testStepResultStore) MarkInProgress(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.results[id]; ok {
		r.State = saga.StepInProgress
	}

	return nil
}

func (s *testStepResultStore) MarkCompleted(_ context.Context, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.results[id]; ok {
		r.State = saga.StepCompleted
		r.Payload = payload
	}

	return nil
}

func (s *testStepResultStore) MarkFailed(_ context.Context, id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.results[id]; ok {
		r.State = saga.StepFailed
		r.ErrorMessage = errMsg
	}

	return nil
}

func (s *testStepResultStore) MarkCompensated(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.results[id]; ok {
		r.State = saga.StepCompensated
	}

	return nil
}

func (s *testStepResultStore) ListByExecution(_ context.Context, sagaExecutionID string) ([]*saga.StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.byExec[sagaExecutionID], nil
}

type testHistoryStore struct {
	mu     sync.Mutex
	events []*saga.HistoryEvent
}

func (s *testHistoryStore) Append(_ context.Context, event *saga.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)

	return nil
}

type testInventory struct {
	releaseErr error
	released   []string
}

func (f *testInventory) Reserve(_ context.Context, orderID string, _ []saga.OrderItem) (string, error) {
	return "reservation-" + orderID, nil
}

func (f *testInventory) Release(_ context.Context, reservationID string) error {
	f.released = append(f.released, reservationID)
	return f.releaseErr
}

type testPayment struct{ authorizeErr error }

func (f *testPayment) Authorize(_ context.Context, orderID string, _ int64) (string, error) {
	if f.authorizeErr != nil {
		return "", f.authorizeErr
	}

	return "auth-" + orderID, nil
}

func (f *testPayment) Void(_ context.Context, _ string) error { return nil }

type testShipping struct{ shipErr error }

func (f *testShipping) Ship(_ context.Context, orderID, _ string) (string, error) {
	if f.shipErr != nil {
		return "", f.shipErr
	}

	return "shipment-" + orderID, nil
}

func (f *testShipping) Cancel(_ context.Context, _ string) error { return nil }

func newTestOrderHandler() (*OrderHandler, *testOrderRepo, *testExecutionStore, *testStepResultStore) {
	orders := newTestOrderRepo()
	executions := newTestExecutionStore()
	stepResults := newTestStepResultStore()
	history := &testHistoryStore{}

	tracer := tracenoop.NewTracerProvider().Tracer("test")

	executor := &saga.Executor{
		Executions:  executions,
		StepResults: stepResults,
		History:     history,
		Clock:       clock.System{},
		IDs:         idgen.UUIDGenerator{},
		Tracer:      tracer,
	}

	compensator := &saga.Orchestrator{
		Executions: executions,
		Orders:     orders,
		History:    history,
		Clock:      clock.System{},
		IDs:        idgen.UUIDGenerator{},
		Tracer:     tracer,
	}

	runner := &saga.Runner{
		Orders:      orders,
		Executions:  executions,
		Executor:    executor,
		Compensator: compensator,
		Clock:       clock.System{},
		IDs:         idgen.UUIDGenerator{},
		Tracer:      tracer,
	}

	retrier := &saga.RetryOrchestrator{
		Executions:  executions,
		StepResults: stepResults,
		Executor:    executor,
		Tracer:      tracer,
	}

	handler := &OrderHandler{
		OrderRepo: orders,
		Runner:    runner,
		Retrier:   retrier,
		Inventory: &testInventory{},
		Payment:   &testPayment{},
		Shipping:  &testShipping{},
		Tracer:    tracer,
	}

	return handler, orders, executions, stepResults
}

func TestCreateOrderRunsHappySagaToCompletion(t *testing.T) {
	handler, orders, _, _ := newTestOrderHandler()

	app := NewRouter(&ProductHandler{Commands: nil, Products: newTestProductRepo(), Tracer: tracenoop.NewTracerProvider().Tracer("test")}, handler, nopLogger{})

	body, _ := json.Marshal(map[string]any{
		"orderId":     "order-1",
		"items":       []map[string]any{{"sku": "sku-1", "quantity": 2}},
		"amountCents": 1000,
	})

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var runResp orderRunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runResp))
	assert.True(t, runResp.Succeeded)

	stored, _ := orders.FindByID(context.Background(), "order-1")
	require.NotNil(t, stored)
	assert.Equal(t, saga.OrderCompleted, stored.Status)
}

func TestCreateOrderRejectsMissingItems(t *testing.T) {
	handler, _, _, _ := newTestOrderHandler()

	app := NewRouter(&ProductHandler{Products: newTestProductRepo(), Tracer: tracenoop.NewTracerProvider().Tracer("test")}, handler, nopLogger{})

	body, _ := json.Marshal(map[string]any{"orderId": "order-1"})

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateOrderCompensatesWhenShipmentFails(t *testing.T) {
	handler, orders, _, _ := newTestOrderHandler()
	handler.Shipping = &testShipping{shipErr: testAssertError("shipping down")}

	app := NewRouter(&ProductHandler{Products: newTestProductRepo(), Tracer: tracenoop.NewTracerProvider().Tracer("test")}, handler, nopLogger{})

	body, _ := json.Marshal(map[string]any{
		"orderId":     "order-2",
		"items":       []map[string]any{{"sku": "sku-1", "quantity": 1}},
		"amountCents": 500,
	})

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var runResp orderRunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runResp))
	assert.False(t, runResp.Succeeded)
	assert.Equal(t, []string{"authorize", "reserve"}, runResp.CompensatedSteps)

	stored, _ := orders.FindByID(context.Background(), "order-2")
	require.NotNil(t, stored)
	assert.Equal(t, saga.OrderFailed, stored.Status)
}

func TestRetryOrderNotFoundReturns404(t *testing.T) {
	handler, _, _, _ := newTestOrderHandler()

	app := NewRouter(&ProductHandler{Products: newTestProductRepo(), Tracer: tracenoop.NewTracerProvider().Tracer("test")}, handler, nopLogger{})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/orders/missing/retry", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type testAssertError string

func (e testAssertError) Error() string { return string(e) }
