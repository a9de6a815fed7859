package resiliency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cebartling/orderflow/internal/outcome"
)

func TestCircuitBreakerTripsAfterFailureRateThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerSettings{
		WindowSize:     4,
		MinCalls:       4,
		HalfOpenProbes: 1,
		OpenWait:       50 * time.Millisecond,
	})

	failing := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 4; i++ {
		_ = cb.Execute(context.Background(), failing)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		t.Fatal("op should not run while breaker is open")
		return nil
	})

	var failure *outcome.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, outcome.KindServiceUnavailable, failure.Kind)
}

func TestCircuitBreakerDoesNotTripOnRejectedDomainOutcomes(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerSettings{
		WindowSize:     4,
		MinCalls:       4,
		HalfOpenProbes: 1,
		OpenWait:       time.Second,
	})

	rejecting := func(ctx context.Context) error {
		return outcome.NewFailure(outcome.KindDuplicateSKU, "sku already exists", nil)
	}

	for i := 0; i < 8; i++ {
		err := cb.Execute(context.Background(), rejecting)

		var failure *outcome.Failure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, outcome.KindDuplicateSKU, failure.Kind)
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerStaysClosedBelowThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerSettings{
		WindowSize:     10,
		MinCalls:       10,
		HalfOpenProbes: 1,
		OpenWait:       time.Second,
	})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

type recordingListener struct {
	events []StateChangeEvent
}

func (r *recordingListener) OnCircuitBreakerStateChange(event StateChangeEvent) {
	r.events = append(r.events, event)
}

func TestCircuitBreakerNotifiesListenersOnStateChange(t *testing.T) {
	listener := &recordingListener{}

	cb := NewCircuitBreaker("test", BreakerSettings{
		WindowSize:     2,
		MinCalls:       2,
		HalfOpenProbes: 1,
		OpenWait:       time.Second,
	}, listener)

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	}

	require.NotEmpty(t, listener.events)
	assert.Equal(t, gobreaker.StateOpen, listener.events[0].ToState)
}
