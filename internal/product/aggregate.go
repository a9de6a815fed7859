package product

import (
	"math"
	"time"

	"github.com/cebartling/orderflow/internal/outcome"
)

// DefaultPriceChangeThreshold is the default guard from spec.md §4.3: a
// price change on an ACTIVE product greater than 20% requires
// confirm_large.
const DefaultPriceChangeThreshold = 0.20

// Product is the CQRS write-side aggregate (spec.md §3).
type Product struct {
	ID          string
	SKU         string
	Name        string
	Description *string
	PriceCents  int64
	Status      Status
	Version     int64
	Deleted     bool
	DeletedBy   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// guardVersion enforces spec.md §4.3's CONCURRENT_MODIFICATION and
// PRODUCT_DELETED invariants common to every mutation.
func (p *Product) guardVersion(expectedVersion int64) *outcome.Failure {
	if p.Deleted {
		return outcome.NewFailure(outcome.KindProductDeleted, "product has been deleted", map[string]any{"id": p.ID})
	}

	if expectedVersion != p.Version {
		return outcome.NewFailure(outcome.KindConcurrentModification, "version mismatch", map[string]any{
			"currentVersion":  p.Version,
			"expectedVersion": expectedVersion,
		})
	}

	return nil
}

// New constructs a DRAFT product (the "create" mutation, spec.md §4.3).
// priceCents must be non-negative (INVARIANT_VIOLATION otherwise).
func New(id, sku, name string, description *string, priceCents int64, now time.Time) (*Product, *outcome.Failure) {
	if priceCents < 0 {
		return nil, outcome.NewFailure(outcome.KindInvariantViolation, "price_cents must be >= 0", map[string]any{"invariant": "price_cents_non_negative"})
	}

	return &Product{
		ID:         id,
		SKU:        sku,
		Name:       name,
		Description: description,
		PriceCents: priceCents,
		Status:     StatusDraft,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Update changes name/description (spec.md §4.3 "update").
func (p *Product) Update(name string, description *string, expectedVersion int64, now time.Time) *outcome.Failure {
	if f := p.guardVersion(expectedVersion); f != nil {
		return f
	}

	p.Name = name
	p.Description = description
	p.Version++
	p.UpdatedAt = now

	return nil
}

// ChangePrice updates price_cents, enforcing the non-negative invariant
// and the large-change guard (spec.md §4.3: "price change ≤ threshold OR
// confirm_large=true (ACTIVE only, default 20%)").
func (p *Product) ChangePrice(newPriceCents int64, confirmLarge bool, threshold float64, expectedVersion int64, now time.Time) *outcome.Failure {
	if f := p.guardVersion(expectedVersion); f != nil {
		return f
	}

	if newPriceCents < 0 {
		return outcome.NewFailure(outcome.KindInvariantViolation, "price_cents must be >= 0", map[string]any{"invariant": "price_cents_non_negative"})
	}

	if p.Status == StatusActive && p.PriceCents > 0 {
		change := math.Abs(float64(newPriceCents-p.PriceCents)) / float64(p.PriceCents)
		if change > threshold && !confirmLarge {
			return outcome.NewFailure(outcome.KindPriceThresholdExceeded, "price change exceeds threshold", map[string]any{
				"currentPriceCents":   p.PriceCents,
				"requestedPriceCents": newPriceCents,
				"changePercent":       change,
				"threshold":           threshold,
			})
		}
	}

	p.PriceCents = newPriceCents
	p.Version++
	p.UpdatedAt = now

	return nil
}

// Activate transitions DRAFT→ACTIVE (spec.md §4.3).
func (p *Product) Activate(expectedVersion int64, now time.Time) *outcome.Failure {
	if f := p.guardVersion(expectedVersion); f != nil {
		return f
	}

	if !p.Status.CanTransitionTo(StatusActive) {
		return invalidTransition(p.Status, StatusActive)
	}

	p.Status = StatusActive
	p.Version++
	p.UpdatedAt = now

	return nil
}

// Discontinue transitions DRAFT/ACTIVE→DISCONTINUED (spec.md §4.3).
func (p *Product) Discontinue(reason string, expectedVersion int64, now time.Time) *outcome.Failure {
	if f := p.guardVersion(expectedVersion); f != nil {
		return f
	}

	if !p.Status.CanTransitionTo(StatusDiscontinued) {
		return invalidTransition(p.Status, StatusDiscontinued)
	}

	p.Status = StatusDiscontinued
	p.Version++
	p.UpdatedAt = now

	return nil
}

// Delete soft-deletes the aggregate; deletion requires a matching version
// (spec.md §3: "deletion requires version match").
func (p *Product) Delete(deletedBy string, expectedVersion int64, now time.Time) *outcome.Failure {
	if f := p.guardVersion(expectedVersion); f != nil {
		return f
	}

	p.Deleted = true
	p.DeletedBy = &deletedBy
	p.Version++
	p.UpdatedAt = now

	return nil
}

func invalidTransition(from, to Status) *outcome.Failure {
	return outcome.NewFailure(outcome.KindInvalidStateTransition, "invalid status transition", map[string]any{
		"currentStatus": string(from),
		"targetStatus":  string(to),
	})
}
