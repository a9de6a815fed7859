package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/cebartling/orderflow/internal/clock"
	"github.com/cebartling/orderflow/internal/command"
	"github.com/cebartling/orderflow/internal/idgen"
	"github.com/cebartling/orderflow/internal/outcome"
	"github.com/cebartling/orderflow/internal/product"
	"github.com/cebartling/orderflow/internal/resiliency"
	"github.com/cebartling/orderflow/internal/telemetry"
)

type testProductRepo struct {
	bySKU map[string]*product.Product
	byID  map[string]*product.Product
}

func newTestProductRepo() *testProductRepo {
	return &testProductRepo{bySKU: map[string]*product.Product{}, byID: map[string]*product.Product{}}
}

func (r *testProductRepo) FindByID(_ context.Context, id string) (*product.Product, error) {
	return r.byID[id], nil
}

func (r *testProductRepo) FindBySKU(_ context.Context, sku string) (*product.Product, error) {
	return r.bySKU[sku], nil
}

func (r *testProductRepo) FindAll(_ context.Context, _ string, _ int) ([]*product.Product, string, error) {
	items := make([]*product.Product, 0, len(r.byID))
	for _, p := range r.byID {
		items = append(items, p)
	}

	return items, "", nil
}

func (r *testProductRepo) Save(_ context.Context, _ *sql.Tx, p *product.Product, _ int64) error {
	r.byID[p.ID] = p
	r.bySKU[p.SKU] = p

	return nil
}

type testIdempotencyStore struct{}

func (testIdempotencyStore) Find(_ context.Context, _ string) (*outcome.CommandResult, bool, error) {
	return nil, false, nil
}

func (testIdempotencyStore) Save(_ context.Context, _ *sql.Tx, _, _, _ string, _ outcome.CommandResult) error {
	return nil
}

type testOutboxStore struct{}

func (testOutboxStore) Insert(_ context.Context, _ *sql.Tx, _ command.OutboxEvent) error { return nil }

type nopLogger struct{}

func (nopLogger) Debugw(string, ...any)          {}
func (nopLogger) Infow(string, ...any)           {}
func (nopLogger) Warnw(string, ...any)           {}
func (nopLogger) Errorw(string, ...any)          {}
func (l nopLogger) With(...any) telemetry.Logger { return l }

func newTestRouter(t *testing.T) (*testProductRepo, *command.Handler, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := newTestProductRepo()

	handler := &command.Handler{
		DB:             db,
		Products:       repo,
		Idempotency:    testIdempotencyStore{},
		Outbox:         testOutboxStore{},
		IdempotencyTTL: time.Hour,
		Clock:          clock.Frozen{At: time.Unix(1000, 0)},
		IDs:            idgen.UUIDGenerator{},
		Tracer:         tracenoop.NewTracerProvider().Tracer("test"),
		Limiter:        resiliency.NewRateLimiter(100),
		Retrier:        resiliency.NewRetrier(resiliency.RetrySettings{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 2.0}),
		Breaker:        resiliency.NewCircuitBreaker("test-router", resiliency.DefaultBreakerSettings()),
	}

	return repo, handler, mock
}

func TestHealthEndpointReturnsOK(t *testing.T) {
	_, commands, _ := newTestRouter(t)

	products := &ProductHandler{Commands: commands, Products: newTestProductRepo(), Tracer: tracenoop.NewTracerProvider().Tracer("test")}

	app := NewRouter(products, nil, nopLogger{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateProductReturns201AndLocation(t *testing.T) {
	repo, commands, mock := newTestRouter(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	products := &ProductHandler{Commands: commands, Products: repo, Tracer: tracenoop.NewTracerProvider().Tracer("test")}
	app := NewRouter(products, nil, nopLogger{})

	body, _ := json.Marshal(map[string]any{"sku": "sku-1", "name": "widget", "priceCents": 500})
	req := httptest.NewRequest(http.MethodPost, "/products", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Location"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProductMissingNameReturnsValidationFailure(t *testing.T) {
	repo, commands, _ := newTestRouter(t)

	products := &ProductHandler{Commands: commands, Products: repo, Tracer: tracenoop.NewTracerProvider().Tracer("test")}
	app := NewRouter(products, nil, nopLogger{})

	body, _ := json.Marshal(map[string]any{"sku": "sku-1", "priceCents": 500})
	req := httptest.NewRequest(http.MethodPost, "/products", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body2 errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body2))
	assert.Equal(t, string(outcome.KindValidationFailed), body2.Kind)
}

func TestGetProductNotFoundReturns404(t *testing.T) {
	repo, commands, _ := newTestRouter(t)

	products := &ProductHandler{Commands: commands, Products: repo, Tracer: tracenoop.NewTracerProvider().Tracer("test")}
	app := NewRouter(products, nil, nopLogger{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/products/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCorrelationIDIsEchoedOnResponse(t *testing.T) {
	repo, commands, _ := newTestRouter(t)

	products := &ProductHandler{Commands: commands, Products: repo, Tracer: tracenoop.NewTracerProvider().Tracer("test")}
	app := NewRouter(products, nil, nopLogger{})

	req := httptest.NewRequest(http.MethodGet, "/products/missing", nil)
	req.Header.Set("X-Correlation-Id", "abc-123")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.Header.Get("X-Correlation-Id"))
}
