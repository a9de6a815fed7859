package resiliency

import "context"

// Operation is the shape every resiliency layer wraps.
type Operation func(ctx context.Context) error

// Guard composes the rate limiter, retrier, and circuit breaker around op
// in the order spec.md §4.9 mandates: "outermost to innermost is
// rate-limiter → retry → circuit-breaker → work". This replaces the
// source's annotation-based approach (spec.md §9: "Annotations for
// rate-limit/retry/breaker → explicit middleware composed around the call
// site; a small combinator withRL(withRetry(withCB(fn)))").
func Guard(limiter *RateLimiter, retrier *Retrier, breaker *CircuitBreaker, op Operation) Operation {
	withBreaker := func(ctx context.Context) error {
		return breaker.Execute(ctx, op)
	}

	withRetry := func(ctx context.Context) error {
		return retrier.Execute(ctx, withBreaker)
	}

	return func(ctx context.Context) error {
		return limiter.Execute(ctx, withRetry)
	}
}
