package command

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/cebartling/orderflow/internal/clock"
	"github.com/cebartling/orderflow/internal/idgen"
	"github.com/cebartling/orderflow/internal/outcome"
	"github.com/cebartling/orderflow/internal/product"
	"github.com/cebartling/orderflow/internal/resiliency"
)

// Handler is the UseCase-shaped struct the teacher favors
// (components/transaction/internal/services/command.UseCase): a plain
// struct of injected repository/port dependencies with one method per
// concern.
type Handler struct {
	DB              *sql.DB
	Products        product.Repository
	Idempotency     IdempotencyStore
	IdempotencyCache IdempotencyCache
	Outbox          OutboxStore
	IdempotencyTTL  time.Duration
	PriceThreshold  float64
	Clock           clock.Clock
	IDs             idgen.Generator
	Tracer          trace.Tracer

	Limiter *resiliency.RateLimiter
	Retrier *resiliency.Retrier
	Breaker *resiliency.CircuitBreaker
}

// Handle executes a Command end to end per spec.md §4.4. The rate-limit
// gate, idempotency lookup and validation run once per call; steps 4-8
// (load through return) run inside the retry→circuit-breaker guard
// (spec.md §4.9); transient persistence errors are retried, and
// unavailability surfaces as SERVICE_UNAVAILABLE.
func (h *Handler) Handle(ctx context.Context, cmd Command) outcome.CommandResult {
	ctx, span := h.Tracer.Start(ctx, "command.handle."+string(cmd.Variant))
	defer span.End()

	// Step 1: rate-limit gate.
	if !h.Limiter.Allow() {
		return outcome.FailureResult(outcome.NewFailure(outcome.KindRateLimited, "rate limit exceeded", nil))
	}

	// Step 2: idempotency lookup. The cache SetNX short-circuits the
	// common case of a retry landing on the same process shortly after
	// the first attempt; a cache miss (key genuinely new, or cache
	// unavailable) always falls through to the authoritative Postgres
	// table.
	if cmd.IdempotencyKey != "" {
		if h.IdempotencyCache != nil {
			if created, err := h.IdempotencyCache.SetNX(ctx, cmd.IdempotencyKey, h.IdempotencyTTL); err == nil && !created {
				if prior, found, err := h.Idempotency.Find(ctx, cmd.IdempotencyKey); err == nil && found {
					return outcome.AlreadyProcessed(*prior)
				}
			}
		}

		if prior, found, err := h.Idempotency.Find(ctx, cmd.IdempotencyKey); err == nil && found {
			return outcome.AlreadyProcessed(*prior)
		}
	}

	// Step 3: validate.
	if f := Validate(cmd); f != nil {
		return outcome.FailureResult(f)
	}

	var result outcome.CommandResult

	// Steps 4-8 run behind retry+breaker only: the rate-limit gate above
	// already admitted this call (spec.md §4.9 "rate-limiter → retry →
	// circuit-breaker → work" composed once per request, not per retry
	// attempt).
	withBreaker := func(ctx context.Context) error {
		return h.Breaker.Execute(ctx, func(ctx context.Context) error {
			r, err := h.process(ctx, cmd)
			result = r

			return err
		})
	}

	if err := h.Retrier.Execute(ctx, withBreaker); err != nil {
		if f, ok := err.(*outcome.Failure); ok {
			return outcome.FailureResult(f)
		}

		return outcome.FailureResult(outcome.NewFailure(outcome.KindServiceUnavailable, err.Error(), nil))
	}

	return result
}

// process runs steps 4-8 inside a single DB transaction, making the
// aggregate write, idempotency insert, and outbox insert atomic (spec.md
// §4.5).
func (h *Handler) process(ctx context.Context, cmd Command) (outcome.CommandResult, error) {
	now := h.Clock.Now()

	// Step 4: load aggregate (or new for create).
	var (
		agg *product.Product
		f   *outcome.Failure
	)

	if cmd.Variant == VariantCreate {
		if existing, err := h.Products.FindBySKU(ctx, cmd.SKU); err != nil {
			return outcome.CommandResult{}, resiliency.AsTransient(err)
		} else if existing != nil {
			return outcome.CommandResult{}, outcome.NewFailure(outcome.KindDuplicateSKU, "sku already exists", map[string]any{"sku": cmd.SKU})
		}

		agg, f = product.New(h.IDs.NewID().String(), cmd.SKU, cmd.Name, cmd.Description, cmd.PriceCents, now)
	} else {
		loaded, err := h.Products.FindByID(ctx, cmd.ProductID)
		if err != nil {
			return outcome.CommandResult{}, resiliency.AsTransient(err)
		}

		if loaded == nil {
			return outcome.CommandResult{}, outcome.NewFailure(outcome.KindProductNotFound, "product not found", map[string]any{"id": cmd.ProductID})
		}

		agg = loaded
	}

	if f != nil {
		return outcome.CommandResult{}, f
	}

	// Step 5: apply mutation.
	if f := h.applyMutation(agg, cmd, now); f != nil {
		return outcome.CommandResult{}, f
	}

	// Steps 6-7: persist atomically with idempotency + outbound event.
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return outcome.CommandResult{}, resiliency.AsTransient(err)
	}
	defer func() { _ = tx.Rollback() }()

	expectedVersion := agg.Version - 1
	if cmd.Variant == VariantCreate {
		expectedVersion = 0
	}

	if err := h.Products.Save(ctx, tx, agg, expectedVersion); err != nil {
		if err == product.ErrConcurrentWrite {
			return outcome.CommandResult{}, outcome.NewFailure(outcome.KindConcurrentModification, "concurrent modification", map[string]any{
				"expectedVersion": expectedVersion,
			})
		}

		return outcome.CommandResult{}, resiliency.AsTransient(err)
	}

	result := outcome.Success(agg.ID, agg.Version, string(agg.Status))

	if cmd.IdempotencyKey != "" {
		if err := h.Idempotency.Save(ctx, tx, cmd.IdempotencyKey, string(cmd.Variant), agg.ID, result); err != nil {
			if errors.Is(err, ErrIdempotencyConflict) {
				// Lost the race: another transaction committed the same
				// idempotency key first (the SetNX/Find fast path above
				// missed it because that commit hadn't landed yet). Roll
				// back this attempt's aggregate write and replay the
				// winner's result instead of surfacing the conflict as a
				// transient error (spec.md §8 "at most one state change").
				_ = tx.Rollback()

				if prior, found, ferr := h.Idempotency.Find(ctx, cmd.IdempotencyKey); ferr == nil && found {
					return outcome.AlreadyProcessed(*prior), nil
				}

				return outcome.CommandResult{}, resiliency.AsTransient(err)
			}

			return outcome.CommandResult{}, resiliency.AsTransient(err)
		}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return outcome.CommandResult{}, err
	}

	if err := h.Outbox.Insert(ctx, tx, OutboxEvent{
		AggregateID: agg.ID,
		EventType:   "product." + string(cmd.Variant),
		Payload:     payload,
	}); err != nil {
		return outcome.CommandResult{}, resiliency.AsTransient(err)
	}

	if err := tx.Commit(); err != nil {
		return outcome.CommandResult{}, resiliency.AsTransient(err)
	}

	// Step 8: return success.
	return result, nil
}

func (h *Handler) applyMutation(agg *product.Product, cmd Command, now time.Time) *outcome.Failure {
	switch cmd.Variant {
	case VariantCreate:
		return nil
	case VariantUpdate:
		return agg.Update(cmd.Name, cmd.Description, cmd.ExpectedVersion, now)
	case VariantChangePrice:
		return agg.ChangePrice(cmd.PriceCents, cmd.ConfirmLarge, priceThresholdFor(h.PriceThreshold), cmd.ExpectedVersion, now)
	case VariantActivate:
		return agg.Activate(cmd.ExpectedVersion, now)
	case VariantDiscontinue:
		return agg.Discontinue(cmd.Reason, cmd.ExpectedVersion, now)
	case VariantDelete:
		return agg.Delete(cmd.DeletedBy, cmd.ExpectedVersion, now)
	default:
		return outcome.NewFailure(outcome.KindValidationFailed, "unknown command variant", map[string]any{"variant": string(cmd.Variant)})
	}
}
