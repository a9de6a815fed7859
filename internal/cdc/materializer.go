package cdc

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cebartling/orderflow/internal/clock"
	"github.com/cebartling/orderflow/internal/outcome"
	"github.com/cebartling/orderflow/internal/resiliency"
	"github.com/cebartling/orderflow/internal/telemetry"
)

// StaleComparator decides whether newTS should be treated as stale
// relative to storedTS. The spec.md §9 Open Question about equal
// timestamps is resolved by making this explicit and swappable instead of
// hard-coded; DefaultStaleComparator matches spec.md scenario B (equal
// timestamps are stale).
type StaleComparator func(newTS, storedTS int64) bool

// DefaultStaleComparator implements `new_ts <= stored_ts` (spec.md §4.1
// step 5 and scenario B).
func DefaultStaleComparator(newTS, storedTS int64) bool { return newTS <= storedTS }

// StrictStaleComparator implements `new_ts < stored_ts`, for deployments
// that want ties to apply rather than skip (spec.md §9 Open Question).
func StrictStaleComparator(newTS, storedTS int64) bool { return newTS < storedTS }

// Materializer implements spec.md §4.1's process(envelope) contract.
type Materializer struct {
	Store       DocumentStore
	DeadLetter  DeadLetterSink
	Clock       clock.Clock
	Locks       *KeyLocks
	StaleCheck  StaleComparator
	Tracer      trace.Tracer
	Metrics     *telemetry.CDCMetrics
	StoreRetrier *resiliency.Retrier
}

// NewMaterializer builds a Materializer with the spec.md §9 default stale
// comparator.
func NewMaterializer(store DocumentStore, dead DeadLetterSink, tracer trace.Tracer, metrics *telemetry.CDCMetrics, retrier *resiliency.Retrier) *Materializer {
	return &Materializer{
		Store:        store,
		DeadLetter:   dead,
		Clock:        clock.System{},
		Locks:        NewKeyLocks(),
		StaleCheck:   DefaultStaleComparator,
		Tracer:       tracer,
		Metrics:      metrics,
		StoreRetrier: retrier,
	}
}

const maxInt64 = int64(^uint64(0) >> 1)

// Process runs spec.md §4.1's algorithm for a single raw log record and
// returns the disposition the caller uses to decide whether to advance
// the partition offset (Ack/Fatal) or hold it back and retry
// (Retryable).
func (m *Materializer) Process(ctx context.Context, raw []byte, partition int, logOffset int64, topic string) outcome.CDCDisposition {
	start := time.Now()

	ctx, span := m.Tracer.Start(ctx, "cdc-consume "+topic, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", topic),
		attribute.Int("partition", partition),
		attribute.Int64("offset", logOffset),
	)

	disposition := m.process(ctx, raw, partition, logOffset, topic, span)

	m.Metrics.ObserveLatency(ctx, topic, partition, time.Since(start).Seconds())

	return disposition
}

func (m *Materializer) process(ctx context.Context, raw []byte, partition int, logOffset int64, topic string, span trace.Span) outcome.CDCDisposition {
	env, err := Decode(raw)

	// Step 1: tombstone short-circuit happens before decode validation
	// would even matter for a null value, but a malformed non-null
	// payload is a decode error (step 2) regardless.
	if err == nil && env.IsTombstone() {
		span.SetAttributes(attribute.String("db.operation", "IGNORE"))
		m.Metrics.IncProcessed(ctx, topic, partition, "ignore")

		return outcome.Ack
	}

	if err != nil {
		m.Metrics.IncErrors(ctx, topic, partition)
		telemetry.RecordSpanError(span, "failed to decode envelope", err)

		if m.DeadLetter != nil {
			_ = m.DeadLetter.Publish(ctx, raw, err.Error())
		}

		return outcome.Fatal
	}

	env.Partition = partition
	env.Offset = logOffset
	env.Topic = topic

	unlock := m.Locks.Lock(env.AggregateID)
	defer unlock()

	isDelete := env.IsDelete()

	current, err := m.Store.Find(ctx, env.AggregateID)
	if err != nil {
		m.Metrics.IncErrors(ctx, topic, partition)
		telemetry.RecordSpanError(span, "failed to load current document", err)

		return outcome.Retryable
	}

	newTS := maxInt64
	if env.SourceTimestamp != nil {
		newTS = *env.SourceTimestamp
	}

	if stored := current.StoredTimestamp(); stored != nil && m.StaleCheck(newTS, *stored) {
		span.SetAttributes(attribute.String("db.operation", "SKIP_STALE"))
		m.Metrics.IncProcessed(ctx, topic, partition, "skip_stale")

		return outcome.Ack
	}

	op := func(ctx context.Context) error {
		if isDelete {
			return m.applyDelete(ctx, env, span, topic, partition)
		}

		return m.applyUpsert(ctx, env, span, topic, partition)
	}

	execute := op
	if m.StoreRetrier != nil {
		execute = func(ctx context.Context) error { return m.StoreRetrier.Execute(ctx, op) }
	}

	if err := execute(ctx); err != nil {
		m.Metrics.IncErrors(ctx, topic, partition)
		telemetry.RecordSpanError(span, "failed to apply envelope to store", err)

		return outcome.Retryable
	}

	return outcome.Ack
}

func (m *Materializer) applyDelete(ctx context.Context, env *Envelope, span trace.Span, topic string, partition int) error {
	if err := m.Store.Delete(ctx, env.AggregateID); err != nil {
		return resiliency.AsTransient(err)
	}

	span.SetAttributes(attribute.String("db.operation", "DELETE"))
	m.Metrics.IncProcessed(ctx, topic, partition, string(env.Operation))
	m.Metrics.IncDBOperation(ctx, "delete")

	return nil
}

func (m *Materializer) applyUpsert(ctx context.Context, env *Envelope, span trace.Span, topic string, partition int) error {
	fields, err := env.Fields()
	if err != nil {
		return err
	}

	doc := &Document{
		ID:     env.AggregateID,
		Fields: fields,
		Metadata: Metadata{
			SourceTimestamp: env.SourceTimestamp,
			Operation:       env.Operation,
			LogOffset:       env.Offset,
			LogPartition:    env.Partition,
			ProcessedAt:     m.Clock.Now(),
		},
	}

	if err := m.Store.Upsert(ctx, doc); err != nil {
		return resiliency.AsTransient(err)
	}

	span.SetAttributes(attribute.String("db.operation", "UPSERT"))
	m.Metrics.IncProcessed(ctx, topic, partition, string(env.Operation))
	m.Metrics.IncDBOperation(ctx, "upsert")

	return nil
}
