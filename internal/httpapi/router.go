package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cebartling/orderflow/internal/telemetry"
)

// NewRouter builds the fiber app exposing the command surface (spec.md
// §6), wiring correlation-id stamping and access logging ahead of the
// product routes.
func NewRouter(products *ProductHandler, orders *OrderHandler, logger telemetry.Logger) *fiber.App {
	app := fiber.New()

	app.Use(CorrelationID(logger))
	app.Use(AccessLog())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	app.Post("/products", products.Create)
	app.Get("/products", products.List)
	app.Get("/products/:id", products.Get)
	app.Put("/products/:id", products.Update)
	app.Patch("/products/:id/price", products.ChangePrice)
	app.Post("/products/:id/activate", products.Activate)
	app.Post("/products/:id/discontinue", products.Discontinue)
	app.Delete("/products/:id", products.Delete)

	if orders != nil {
		app.Post("/orders", orders.Create)
		app.Post("/orders/:id/retry", orders.Retry)
	}

	return app
}
