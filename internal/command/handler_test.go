package command

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/cebartling/orderflow/internal/clock"
	"github.com/cebartling/orderflow/internal/idgen"
	"github.com/cebartling/orderflow/internal/outcome"
	"github.com/cebartling/orderflow/internal/product"
	"github.com/cebartling/orderflow/internal/resiliency"
)

type fakeProductRepo struct {
	bySKU  map[string]*product.Product
	byID   map[string]*product.Product
	saveErr error
	saved  []*product.Product
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{bySKU: map[string]*product.Product{}, byID: map[string]*product.Product{}}
}

func (f *fakeProductRepo) FindByID(_ context.Context, id string) (*product.Product, error) {
	return f.byID[id], nil
}

func (f *fakeProductRepo) FindBySKU(_ context.Context, sku string) (*product.Product, error) {
	return f.bySKU[sku], nil
}

func (f *fakeProductRepo) FindAll(_ context.Context, _ string, _ int) ([]*product.Product, string, error) {
	return nil, "", nil
}

func (f *fakeProductRepo) Save(_ context.Context, _ *sql.Tx, p *product.Product, _ int64) error {
	if f.saveErr != nil {
		return f.saveErr
	}

	f.saved = append(f.saved, p)
	f.byID[p.ID] = p
	f.bySKU[p.SKU] = p

	return nil
}

type fakeIdempotencyStore struct {
	byKey map[string]outcome.CommandResult
	// conflictOnce, when set, makes the next Save report
	// ErrIdempotencyConflict instead of recording result, simulating a
	// concurrent winner that already committed under the same key.
	conflictOnce bool
	// winner, when set, is the result the concurrent winner committed; it
	// becomes visible to Find at the moment Save reports the conflict.
	winner *outcome.CommandResult
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{byKey: map[string]outcome.CommandResult{}}
}

func (f *fakeIdempotencyStore) Find(_ context.Context, key string) (*outcome.CommandResult, bool, error) {
	if r, ok := f.byKey[key]; ok {
		return &r, true, nil
	}

	return nil, false, nil
}

func (f *fakeIdempotencyStore) Save(_ context.Context, _ *sql.Tx, key, _, _ string, result outcome.CommandResult) error {
	if f.conflictOnce {
		f.conflictOnce = false

		if f.winner != nil {
			f.byKey[key] = *f.winner
		}

		return ErrIdempotencyConflict
	}

	f.byKey[key] = result

	return nil
}

type fakeOutbox struct {
	inserted []OutboxEvent
}

func (f *fakeOutbox) Insert(_ context.Context, _ *sql.Tx, event OutboxEvent) error {
	f.inserted = append(f.inserted, event)
	return nil
}

func newTestHandler(t *testing.T, db *sql.DB, products product.Repository, idempotency IdempotencyStore, outbox OutboxStore) *Handler {
	t.Helper()

	return &Handler{
		DB:             db,
		Products:       products,
		Idempotency:    idempotency,
		Outbox:         outbox,
		IdempotencyTTL: time.Hour,
		Clock:          clock.Frozen{At: time.Unix(100, 0)},
		IDs:            idgen.UUIDGenerator{},
		Tracer:         tracenoop.NewTracerProvider().Tracer("test"),
		Limiter:        resiliency.NewRateLimiter(100),
		Retrier:        resiliency.NewRetrier(resiliency.RetrySettings{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 2.0}),
		Breaker:        resiliency.NewCircuitBreaker("test-handler", resiliency.DefaultBreakerSettings()),
	}
}

func TestHandleCreateInsertsProductAndOutboxRowAtomically(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	products := newFakeProductRepo()
	idempotency := newFakeIdempotencyStore()
	outbox := &fakeOutbox{}

	handler := newTestHandler(t, db, products, idempotency, outbox)

	result := handler.Handle(context.Background(), Command{
		Variant:    VariantCreate,
		SKU:        "sku-1",
		Name:       "widget",
		PriceCents: 500,
	})

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, outcome.StatusSuccess, result.Status)
	require.Len(t, products.saved, 1)
	require.Len(t, outbox.inserted, 1)
	assert.Equal(t, "product.CREATE", outbox.inserted[0].EventType)
}

func TestHandleCreateRejectsDuplicateSKU(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	products := newFakeProductRepo()
	products.bySKU["sku-1"] = &product.Product{ID: "p-1", SKU: "sku-1"}

	handler := newTestHandler(t, db, products, newFakeIdempotencyStore(), &fakeOutbox{})

	result := handler.Handle(context.Background(), Command{Variant: VariantCreate, SKU: "sku-1", Name: "widget"})

	assert.Equal(t, outcome.StatusFailure, result.Status)
	require.NotNil(t, result.Failure)
	assert.Equal(t, outcome.KindDuplicateSKU, result.Failure.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleReplaysPriorResultForKnownIdempotencyKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	idempotency := newFakeIdempotencyStore()
	idempotency.byKey["key-1"] = outcome.Success("p-1", 1, "DRAFT")

	handler := newTestHandler(t, db, newFakeProductRepo(), idempotency, &fakeOutbox{})

	result := handler.Handle(context.Background(), Command{
		Variant:        VariantCreate,
		IdempotencyKey: "key-1",
		SKU:            "sku-1",
		Name:           "widget",
	})

	assert.Equal(t, outcome.StatusAlreadyProcessed, result.Status)
	assert.True(t, result.Replayed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleReplaysWinnerResultOnIdempotencySaveConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	idempotency := newFakeIdempotencyStore()
	idempotency.conflictOnce = true
	// The concurrent winner's result: absent from the step-2 lookup, then
	// visible by the time this attempt's Save loses the race and rolls
	// back to re-Find it.
	winner := outcome.Success("p-winner", 1, "DRAFT")
	idempotency.winner = &winner

	handler := newTestHandler(t, db, newFakeProductRepo(), idempotency, &fakeOutbox{})

	result := handler.Handle(context.Background(), Command{
		Variant:        VariantCreate,
		IdempotencyKey: "key-1",
		SKU:            "sku-1",
		Name:           "widget",
	})

	assert.Equal(t, outcome.StatusAlreadyProcessed, result.Status)
	assert.True(t, result.Replayed)
	assert.Equal(t, "p-winner", result.AggregateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleRejectsWhenRateLimited(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := newTestHandler(t, db, newFakeProductRepo(), newFakeIdempotencyStore(), &fakeOutbox{})
	handler.Limiter = resiliency.NewRateLimiter(1)
	handler.Limiter.Allow()

	result := handler.Handle(context.Background(), Command{Variant: VariantCreate, SKU: "sku-1", Name: "widget"})

	assert.Equal(t, outcome.StatusFailure, result.Status)
	require.NotNil(t, result.Failure)
	assert.Equal(t, outcome.KindRateLimited, result.Failure.Kind)
}

func TestHandleActivateReturnsConcurrentModificationOnVersionMismatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	products := newFakeProductRepo()
	products.byID["p-1"] = &product.Product{ID: "p-1", SKU: "sku-1", Status: product.StatusDraft, Version: 1}
	products.saveErr = product.ErrConcurrentWrite

	handler := newTestHandler(t, db, products, newFakeIdempotencyStore(), &fakeOutbox{})

	result := handler.Handle(context.Background(), Command{
		Variant:         VariantActivate,
		ProductID:       "p-1",
		ExpectedVersion: 1,
	})

	assert.Equal(t, outcome.StatusFailure, result.Status)
	require.NotNil(t, result.Failure)
	assert.Equal(t, outcome.KindConcurrentModification, result.Failure.Kind)
}

func TestHandleReturnsProductNotFoundForUnknownID(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := newTestHandler(t, db, newFakeProductRepo(), newFakeIdempotencyStore(), &fakeOutbox{})

	result := handler.Handle(context.Background(), Command{Variant: VariantActivate, ProductID: "missing", ExpectedVersion: 1})

	assert.Equal(t, outcome.StatusFailure, result.Status)
	require.NotNil(t, result.Failure)
	assert.Equal(t, outcome.KindProductNotFound, result.Failure.Kind)
}
