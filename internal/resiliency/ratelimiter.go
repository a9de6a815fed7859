package resiliency

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/cebartling/orderflow/internal/outcome"
)

// RateLimiterSettings mirrors spec.md §4.9: limit=100 tokens, refill every
// 1s, acquire timeout 0s (fail immediately rather than queue).
type RateLimiterSettings struct {
	Limit int
}

// DefaultRateLimiterSettings returns the spec.md §4.9 defaults: 100
// tokens refilled every second.
func DefaultRateLimiterSettings() RateLimiterSettings {
	return RateLimiterSettings{Limit: 100}
}

// RateLimiter is a token-bucket gate backed by golang.org/x/time/rate,
// configured for immediate rejection (no queuing) to match spec.md §4.9's
// "acquire timeout 0s".
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter builds a token bucket refilling `limit` tokens once per
// second with a burst capacity of `limit`.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(limit), limit)}
}

// Allow reports whether a token was available right now. No suspension
// occurs here (spec.md §5 "No suspension occurs inside the rate limiter
// token check").
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.Allow()
}

// Execute runs op if a token is available, otherwise returns RATE_LIMITED
// without invoking op.
func (rl *RateLimiter) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if !rl.Allow() {
		return outcome.NewFailure(outcome.KindRateLimited, "rate limit exceeded", nil)
	}

	return op(ctx)
}
