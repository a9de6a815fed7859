// Package cdc implements the Decoder & Materializer (spec.md §4.1) and its
// Observability Port wiring (spec.md §4.2), grounded on the teacher's
// consumer component: a RabbitMQ-driven commands.UseCase that projects
// incoming events into Postgres/Mongo via per-entity repositories
// (components/consumer/internal/services/commands), generalized here to
// a Kafka-style partitioned log consuming Debezium-shaped envelopes into
// a Mongo materialized-document store.
package cdc

import (
	"encoding/json"
	"fmt"
)

// Operation is the CDC envelope's operation code (spec.md §3).
type Operation string

const (
	OperationCreate  Operation = "c"
	OperationUpdate  Operation = "u"
	OperationDelete  Operation = "d"
	OperationUnknown Operation = "unknown"
)

// Envelope is the Debezium-style change event spec.md §3 describes.
type Envelope struct {
	AggregateID     string          `json:"aggregate_id"`
	Operation       Operation       `json:"operation"`
	Deleted         string          `json:"deleted,omitempty"`
	SourceTimestamp *int64          `json:"source_timestamp,omitempty"`
	Key             string          `json:"key,omitempty"`
	Value           json.RawMessage `json:"value"`
	Partition       int             `json:"partition"`
	Offset          int64           `json:"offset"`
	Topic           string          `json:"-"`
}

// IsTombstone reports whether Value is a null payload (spec.md §3: "A
// null value is a tombstone").
func (e *Envelope) IsTombstone() bool {
	return len(e.Value) == 0 || string(e.Value) == "null"
}

// IsDelete reports whether the envelope represents a delete, per spec.md
// §4.1 step 3: operation=="d" OR deleted=="true".
func (e *Envelope) IsDelete() bool {
	return e.Operation == OperationDelete || e.Deleted == "true"
}

// Decode parses raw into an Envelope. Decode failures are permanent
// (spec.md §4.1 step 2) and are never retried.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope

	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("cdc: decode envelope: %w", err)
	}

	if env.AggregateID == "" {
		return nil, fmt.Errorf("cdc: decode envelope: missing aggregate_id")
	}

	if env.Operation == "" {
		env.Operation = OperationUnknown
	}

	return &env, nil
}

// Fields returns the decoded domain payload fields for an upsert; callers
// should not mutate the returned map in place across goroutines.
func (e *Envelope) Fields() (map[string]any, error) {
	if e.IsTombstone() {
		return nil, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(e.Value, &fields); err != nil {
		return nil, fmt.Errorf("cdc: decode value fields: %w", err)
	}

	return fields, nil
}
