package redis

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/cebartling/orderflow/internal/telemetry"
)

// IdempotencyCache is the Redis-backed command.IdempotencyCache,
// grounded on create-idempotency-key_test.go's
// `RedisRepo.SetNX(ctx, key, "", ttl)` pattern.
type IdempotencyCache struct {
	Conn   *Connection
	Tracer trace.Tracer
}

// SetNX sets key with an empty value if it doesn't already exist,
// returning true when this call created it (i.e., first sighting of this
// idempotency key).
func (c *IdempotencyCache) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, span := c.Tracer.Start(ctx, "redis.idempotency.setnx")
	defer span.End()

	ok, err := c.Conn.Client.SetNX(ctx, key, "", ttl).Result()
	if err != nil {
		telemetry.RecordSpanError(span, "setnx idempotency key", err)
		return false, err
	}

	return ok, nil
}
