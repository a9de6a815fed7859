package cdc

import "context"

// DocumentStore is the abstract contract for the downstream document
// store (spec.md §6, implemented by internal/store/mongo).
type DocumentStore interface {
	Find(ctx context.Context, aggregateID string) (*Document, error)
	Upsert(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, aggregateID string) error
}

// DeadLetterSink is the abstract contract for permanently-failed
// envelopes (spec.md §4.1 step 2, §4.10).
type DeadLetterSink interface {
	Publish(ctx context.Context, raw []byte, reason string) error
}
