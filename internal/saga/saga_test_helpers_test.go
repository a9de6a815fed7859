package saga

import (
	"context"
	"sync"

	"github.com/cebartling/orderflow/internal/clock"
	"github.com/cebartling/orderflow/internal/idgen"
)

type memoryExecutionStore struct {
	mu   sync.Mutex
	execs map[string]*Execution
}

func newMemoryExecutionStore() *memoryExecutionStore {
	return &memoryExecutionStore{execs: map[string]*Execution{}}
}

func (s *memoryExecutionStore) Create(_ context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs[exec.ID] = exec

	return nil
}

func (s *memoryExecutionStore) UpdatePhase(_ context.Context, id string, phase Phase, currentStep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.execs[id]; ok {
		e.Phase = phase
		e.CurrentStep = currentStep
	}

	return nil
}

func (s *memoryExecutionStore) SetCompensationStarted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.execs[id]; ok {
		e.Phase = PhaseCompensating
	}

	return nil
}

func (s *memoryExecutionStore) SetCompleted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.execs[id]; ok {
		e.Phase = PhaseCompleted
	}

	return nil
}

func (s *memoryExecutionStore) FindByOrderID(_ context.Context, orderID string) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.execs {
		if e.OrderID == orderID {
			return e, nil
		}
	}

	return nil, nil
}

type memoryStepResultStore struct {
	mu      sync.Mutex
	results map[string]*StepResult
}

func newMemoryStepResultStore() *memoryStepResultStore {
	return &memoryStepResultStore{results: map[string]*StepResult{}}
}

func (s *memoryStepResultStore) Insert(_ context.Context, r *StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.ID] = r

	return nil
}

func (s *memoryStepResultStore) MarkInProgress(_ context.Context, id string) error {
	return s.setState(id, StepInProgress)
}

func (s *memoryStepResultStore) MarkCompleted(_ context.Context, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.results[id]; ok {
		r.State = StepCompleted
		r.Payload = payload
	}

	return nil
}

func (s *memoryStepResultStore) MarkFailed(_ context.Context, id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.results[id]; ok {
		r.State = StepFailed
		r.ErrorMessage = errMsg
	}

	return nil
}

func (s *memoryStepResultStore) MarkCompensated(_ context.Context, id string) error {
	return s.setState(id, StepCompensated)
}

func (s *memoryStepResultStore) setState(id string, state StepState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.results[id]; ok {
		r.State = state
	}

	return nil
}

func (s *memoryStepResultStore) ListByExecution(_ context.Context, sagaExecutionID string) ([]*StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*StepResult

	for _, r := range s.results {
		if r.SagaExecutionID == sagaExecutionID {
			out = append(out, r)
		}
	}

	return out, nil
}

type memoryHistoryStore struct {
	mu     sync.Mutex
	events []*HistoryEvent
}

func newMemoryHistoryStore() *memoryHistoryStore {
	return &memoryHistoryStore{}
}

func (s *memoryHistoryStore) Append(_ context.Context, event *HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)

	return nil
}

func (s *memoryHistoryStore) kinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()

	kinds := make([]EventKind, len(s.events))
	for i, e := range s.events {
		kinds[i] = e.Kind
	}

	return kinds
}

type memoryOrderStore struct {
	mu       sync.Mutex
	statuses map[string]OrderStatus
}

func newMemoryOrderStore() *memoryOrderStore {
	return &memoryOrderStore{statuses: map[string]OrderStatus{}}
}

func (s *memoryOrderStore) Create(_ context.Context, order *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[order.ID] = order.Status

	return nil
}

func (s *memoryOrderStore) UpdateStatus(_ context.Context, orderID string, status OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[orderID] = status

	return nil
}

func (s *memoryOrderStore) statusOf(orderID string) OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.statuses[orderID]
}

type fakeInventory struct {
	reserveErr   error
	released     []string
	reserveCalls int
}

func (f *fakeInventory) Reserve(_ context.Context, orderID string, items []OrderItem) (string, error) {
	f.reserveCalls++

	if f.reserveErr != nil {
		return "", f.reserveErr
	}

	return "reservation-" + orderID, nil
}

func (f *fakeInventory) Release(_ context.Context, reservationID string) error {
	f.released = append(f.released, reservationID)
	return nil
}

type fakePayment struct {
	authorizeErr error
	voided       []string
}

func (f *fakePayment) Authorize(_ context.Context, orderID string, amountCents int64) (string, error) {
	if f.authorizeErr != nil {
		return "", f.authorizeErr
	}

	return "auth-" + orderID, nil
}

func (f *fakePayment) Void(_ context.Context, authorizationID string) error {
	f.voided = append(f.voided, authorizationID)
	return nil
}

type fakeShipping struct {
	shipErr   error
	cancelled []string
}

func (f *fakeShipping) Ship(_ context.Context, orderID, reservationID string) (string, error) {
	if f.shipErr != nil {
		return "", f.shipErr
	}

	return "shipment-" + orderID, nil
}

func (f *fakeShipping) Cancel(_ context.Context, shipmentID string) error {
	f.cancelled = append(f.cancelled, shipmentID)
	return nil
}

func testClock() clock.Clock { return clock.Frozen{} }

func testIDs() idgen.Generator { return idgen.UUIDGenerator{} }
