package command

import (
	validator "github.com/go-playground/validator"

	"github.com/cebartling/orderflow/internal/outcome"
)

var validate = validator.New()

// Validate is the pure function spec.md §4.4 step 3 requires, yielding
// Valid (nil) or Invalid(errors) as a VALIDATION_FAILED Failure.
func Validate(cmd Command) *outcome.Failure {
	if cmd.Variant == VariantCreate && cmd.SKU == "" {
		return outcome.NewFailure(outcome.KindValidationFailed, "sku is required", map[string]any{"sku": "required"})
	}

	if cmd.Variant == VariantCreate && cmd.Name == "" {
		return outcome.NewFailure(outcome.KindValidationFailed, "name is required", map[string]any{"name": "required"})
	}

	if cmd.PriceCents < 0 {
		return outcome.NewFailure(outcome.KindValidationFailed, "price_cents must be >= 0", map[string]any{"priceCents": "min=0"})
	}

	if cmd.Variant == VariantDiscontinue && cmd.Reason == "" {
		return outcome.NewFailure(outcome.KindValidationFailed, "reason is required", map[string]any{"reason": "required"})
	}

	if err := validate.Struct(cmd); err != nil {
		fields := map[string]any{}

		for _, fe := range err.(validator.ValidationErrors) {
			fields[fe.Field()] = fe.Tag()
		}

		return outcome.NewFailure(outcome.KindValidationFailed, "validation failed", fields)
	}

	return nil
}
