package command

import (
	"context"
	"database/sql"
)

// OutboxEvent is an outbound event describing an aggregate state change
// (spec.md §4.4 step 7), persisted transactionally alongside the
// aggregate write (spec.md §4.5, SPEC_FULL.md §2.3 "transactional
// outbox").
type OutboxEvent struct {
	AggregateID string
	EventType   string
	Payload     []byte
}

// OutboxStore inserts outbound events in the same DB transaction as the
// aggregate save (spec.md §4.5: "any outbound event row (transactional
// outbox)").
type OutboxStore interface {
	Insert(ctx context.Context, tx *sql.Tx, event OutboxEvent) error
}
