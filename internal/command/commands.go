// Package command implements the CQRS command handler (spec.md §4.4):
// rate-limit → idempotency → validate → load → mutate → save → record,
// wrapped in the resiliency layers (spec.md §4.9). Grounded on the
// teacher's UseCase-struct pattern (components/transaction/internal/services/command)
// and its idempotency-key flow
// (services/command/create-idempotency-key_test.go).
package command

import "github.com/cebartling/orderflow/internal/product"

// Variant enumerates the command kinds spec.md §4.4 covers.
type Variant string

const (
	VariantCreate       Variant = "CREATE"
	VariantUpdate       Variant = "UPDATE"
	VariantChangePrice  Variant = "CHANGE_PRICE"
	VariantActivate     Variant = "ACTIVATE"
	VariantDiscontinue  Variant = "DISCONTINUE"
	VariantDelete       Variant = "DELETE"
)

// Command is a single incoming command-surface request (spec.md §6: "Idempotency-Key
// request header is optional").
type Command struct {
	Variant         Variant
	IdempotencyKey  string
	ProductID       string
	SKU             string
	Name            string `validate:"max=255"`
	Description     *string
	PriceCents      int64
	ConfirmLarge    bool
	Reason          string
	DeletedBy       string
	ExpectedVersion int64
}

// priceThresholdFor resolves the configured price-change threshold,
// falling back to the spec.md §4.3 default.
func priceThresholdFor(threshold float64) float64 {
	if threshold <= 0 {
		return product.DefaultPriceChangeThreshold
	}

	return threshold
}
