package command

import (
	"context"
	"database/sql"
	"time"

	"github.com/cebartling/orderflow/internal/outcome"
)

// IdempotencyStore is the postgres-backed idempotency table port (spec.md
// §3, §6: "idempotency(key PRIMARY KEY, command_type, aggregate_id,
// result, created_at)").
type IdempotencyStore interface {
	Find(ctx context.Context, key string) (*outcome.CommandResult, bool, error)
	Save(ctx context.Context, tx *sql.Tx, key, commandType, aggregateID string, result outcome.CommandResult) error
}

// IdempotencyCache is a fast-path dedupe lock ahead of the Postgres table,
// grounded on the teacher's services/command/create-idempotency-key_test.go
// (Redis SetNX with a TTL). A cache miss always falls through to
// IdempotencyStore; the cache only short-circuits the common case of a
// retried request landing on the same process shortly after the first.
type IdempotencyCache interface {
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// ErrIdempotencyConflict is returned by IdempotencyStore.Save when another
// transaction already committed a row under the same key first (the
// INSERT ... ON CONFLICT affected zero rows). It means this command lost a
// race against a concurrent attempt with the same idempotency key, not that
// persistence failed; the caller replays the winner's result instead of
// treating it as a transient error.
var ErrIdempotencyConflict = errIdempotencyConflict{}

type errIdempotencyConflict struct{}

func (errIdempotencyConflict) Error() string { return "command: idempotency key already claimed" }
