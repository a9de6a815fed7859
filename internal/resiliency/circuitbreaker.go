// Package resiliency implements the three primitives spec.md §4.9
// composes around every command-handler and saga-step call: rate limiter,
// retry, and circuit breaker (outermost to innermost, §4.9: rate-limiter →
// retry → circuit-breaker → work).
package resiliency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cebartling/orderflow/internal/outcome"
)

// BreakerSettings mirrors spec.md §4.9's circuit-breaker parameters.
type BreakerSettings struct {
	WindowSize        int
	MinCalls          int
	HalfOpenProbes    uint32
	OpenWait          time.Duration
	SlowCallThreshold time.Duration
}

// DefaultBreakerSettings returns the spec.md §4.9 defaults: sliding window
// of 10 calls, minimum 5 before evaluating, open-state wait 5s, half-open
// admits 3 probes, slow threshold 2s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		WindowSize:        10,
		MinCalls:          5,
		HalfOpenProbes:    3,
		OpenWait:          5 * time.Second,
		SlowCallThreshold: 2 * time.Second,
	}
}

// StateListener receives circuit breaker state transitions, mirroring the
// teacher's pkg/mcircuitbreaker adapter that forwards lib-commons
// StateChangeListener callbacks into Midaz's own event shape.
type StateListener interface {
	OnCircuitBreakerStateChange(event StateChangeEvent)
}

// StateChangeEvent describes a single breaker state transition.
type StateChangeEvent struct {
	ServiceName string
	FromState   gobreaker.State
	ToState     gobreaker.State
	Counts      gobreaker.Counts
}

// slidingWindow is a fixed-size ring of the last N call outcomes, giving
// CircuitBreaker a call-count sliding window instead of gobreaker's
// native time-interval or cumulative-since-clear counting.
type slidingWindow struct {
	mu     sync.Mutex
	outcomes []bool // true = failed-or-slow
	size   int
	pos    int
	filled int
}

func newSlidingWindow(size int) *slidingWindow {
	return &slidingWindow{outcomes: make([]bool, size), size: size}
}

func (w *slidingWindow) record(failedOrSlow bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.outcomes[w.pos] = failedOrSlow
	w.pos = (w.pos + 1) % w.size

	if w.filled < w.size {
		w.filled++
	}
}

func (w *slidingWindow) rate() (calls int, badRate float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.filled == 0 {
		return 0, 0
	}

	bad := 0

	for i := 0; i < w.filled; i++ {
		if w.outcomes[i] {
			bad++
		}
	}

	return w.filled, float64(bad) / float64(w.filled)
}

// CircuitBreaker wraps sony/gobreaker's state machine with a call-count
// sliding window trip decision (spec.md §4.9). A call counts as bad when it
// failed (isUnavailability) or ran at least SlowCallThreshold; once MinCalls
// outcomes are in the window, the breaker opens when half or more of them
// are bad. Failures and slow calls share this one rate and are not measured
// separately, and the check runs only after a call returns an error, so
// slow calls that succeed do not open the breaker on their own.
type CircuitBreaker struct {
	name     string
	settings BreakerSettings
	window   *slidingWindow
	cb       *gobreaker.CircuitBreaker
	listeners []StateListener
}

// NewCircuitBreaker builds a named breaker. Name scopes the breaker in the
// Registry and in emitted StateChangeEvents.
func NewCircuitBreaker(name string, settings BreakerSettings, listeners ...StateListener) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:      name,
		settings:  settings,
		window:    newSlidingWindow(settings.WindowSize),
		listeners: listeners,
	}

	cb.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.HalfOpenProbes,
		Timeout:     settings.OpenWait,
		ReadyToTrip: func(gobreaker.Counts) bool {
			calls, badRate := cb.window.rate()

			return calls >= settings.MinCalls && badRate >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			event := StateChangeEvent{ServiceName: name, FromState: from, ToState: to}
			for _, l := range cb.listeners {
				l.OnCircuitBreakerStateChange(event)
			}
		},
	})

	return cb
}

// State reports the current breaker state (Closed, Open, HalfOpen).
func (cb *CircuitBreaker) State() gobreaker.State { return cb.cb.State() }

// Execute runs op through the breaker, recording whether it failed or ran
// slower than SlowCallThreshold into the sliding window before gobreaker
// evaluates ReadyToTrip, so the trip decision always reflects the call
// that just completed. A breaker-open rejection surfaces as
// SERVICE_UNAVAILABLE (spec.md §4.9 "When OPEN, calls fail immediately
// with SERVICE_UNAVAILABLE").
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := cb.cb.Execute(func() (any, error) {
		start := time.Now()
		callErr := op(ctx)
		slow := time.Since(start) >= cb.settings.SlowCallThreshold

		cb.window.record(isUnavailability(callErr) || slow)

		return nil, callErr
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return outcome.NewFailure(outcome.KindServiceUnavailable, "circuit breaker open: "+cb.name, nil)
	}

	return err
}

// isUnavailability reports whether err reflects the dependency actually
// being unavailable rather than a rejected business outcome. A
// *outcome.Failure (DUPLICATE_SKU, CONCURRENT_MODIFICATION, ...) means the
// call reached the dependency and got a legitimate answer, so it doesn't
// count against the breaker's failure rate; any other error does.
func isUnavailability(err error) bool {
	if err == nil {
		return false
	}

	var f *outcome.Failure

	return !errors.As(err, &f)
}
