// Package redis implements the idempotency fast-path cache (spec.md §4.4
// step 2, SPEC_FULL.md §2.3), grounded on the teacher's
// common/mredis.RedisConnection connection wrapper and the
// create-idempotency-key_test.go SetNX usage pattern.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cebartling/orderflow/internal/telemetry"
)

// Connection is a hub that deals with the Redis client, mirroring
// common/mredis.RedisConnection.
type Connection struct {
	URI    string
	Client *goredis.Client
}

// Connect parses the connection URI and pings the server.
func (c *Connection) Connect(ctx context.Context) error {
	logger := telemetry.LoggerFromContext(ctx)
	logger.Infow("connecting to redis")

	opts, err := goredis.ParseURL(c.URI)
	if err != nil {
		return fmt.Errorf("redis: parse url: %w", err)
	}

	client := goredis.NewClient(opts)

	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}

	c.Client = client
	logger.Infow("connected to redis")

	return nil
}

// Close closes the client.
func (c *Connection) Close() error {
	if c.Client == nil {
		return nil
	}

	return c.Client.Close()
}
