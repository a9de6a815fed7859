package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/cebartling/orderflow/internal/outcome"
)

// errorBody is the JSON error envelope (spec.md §7 lists per-kind detail
// fields; Details carries them verbatim).
type errorBody struct {
	Kind          string         `json:"kind"`
	Message       string         `json:"message"`
	Details       map[string]any `json:"details,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
}

// WithError renders a Failure to its spec.md §7 HTTP status and body,
// attaching Retry-After for RATE_LIMITED/SERVICE_UNAVAILABLE.
func WithError(c *fiber.Ctx, f *outcome.Failure) error {
	status, retryAfter := statusFor(f.Kind)

	correlationID := f.CorrelationID
	if correlationID == "" {
		if v, ok := c.Locals("correlation_id").(string); ok {
			correlationID = v
		}
	}

	if retryAfter > 0 {
		c.Set("Retry-After", strconv.Itoa(retryAfter))
	}

	if f.Kind == outcome.KindInternalError && correlationID == "" {
		correlationID = uuid.NewString()
	}

	return c.Status(status).JSON(errorBody{
		Kind:          string(f.Kind),
		Message:       f.Message,
		Details:       f.Details,
		CorrelationID: correlationID,
	})
}

func statusFor(kind outcome.Kind) (status, retryAfterSeconds int) {
	switch kind {
	case outcome.KindValidationFailed, outcome.KindInvariantViolation:
		return fiber.StatusBadRequest, 0
	case outcome.KindProductNotFound:
		return fiber.StatusNotFound, 0
	case outcome.KindDuplicateSKU, outcome.KindConcurrentModification:
		return fiber.StatusConflict, 0
	case outcome.KindProductDeleted:
		return fiber.StatusGone, 0
	case outcome.KindInvalidStateTransition, outcome.KindPriceThresholdExceeded:
		return fiber.StatusUnprocessableEntity, 0
	case outcome.KindRateLimited:
		return fiber.StatusTooManyRequests, 2
	case outcome.KindServiceUnavailable:
		return fiber.StatusServiceUnavailable, 15
	default:
		return fiber.StatusInternalServerError, 0
	}
}
