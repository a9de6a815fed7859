// Package httpapi exposes the product command surface over HTTP (spec.md
// §6), grounded on the teacher's adapters/http/in handler style
// (gofiber, a narrow UseCase dependency, tracer spans per handler) and
// its http.WithError response-mapping convention.
package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/cebartling/orderflow/internal/telemetry"
)

const correlationHeader = "X-Correlation-Id"

// CorrelationID stamps every request with a correlation id, generating
// one when the caller didn't supply it, and carries it in the response
// header and the request context's logger (spec.md §7 "Every surfaced
// error carries a correlation id that also appears in the trace and log
// lines").
func CorrelationID(logger telemetry.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(correlationHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(correlationHeader, id)
		c.Locals("correlation_id", id)

		ctx := telemetry.ContextWithLogger(c.UserContext(), logger.With("correlationId", id))
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// AccessLog logs each request's method/path/status, skipping /health per
// SPEC_FULL.md §2.3 (the health-check surface is skipped by access
// logging).
func AccessLog() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/health" {
			return c.Next()
		}

		err := c.Next()

		logger := telemetry.LoggerFromContext(c.UserContext())
		logger.Infow("http request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
		)

		return err
	}
}

func queryInt(c *fiber.Ctx, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}

	return v
}
