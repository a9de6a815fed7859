package resiliency

import "sync"

// Registry is a name-keyed store of breakers and limiters created at
// startup, replacing the global-singleton pattern spec.md §9 calls out
// ("Global singletons for breakers/limiters → a registry keyed by name,
// created at startup; no mutable module-level state").
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	limiters map[string]*RateLimiter
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		limiters: make(map[string]*RateLimiter),
	}
}

// Breaker returns the named breaker, creating it with the given settings
// on first use.
func (r *Registry) Breaker(name string, settings BreakerSettings, listeners ...StateListener) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := NewCircuitBreaker(name, settings, listeners...)
	r.breakers[name] = cb

	return cb
}

// Limiter returns the named limiter, creating it with `limit` tokens/sec
// on first use.
func (r *Registry) Limiter(name string, limit int) *RateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rl, ok := r.limiters[name]; ok {
		return rl
	}

	rl := NewRateLimiter(limit)
	r.limiters[name] = rl

	return rl
}
