package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/cebartling/orderflow/internal/command"
	"github.com/cebartling/orderflow/internal/outcome"
	"github.com/cebartling/orderflow/internal/product"
)

// ProductHandler adapts command.Handler and product.Repository to HTTP,
// mirroring the teacher's adapters/http/in.ProductHandler (a thin struct
// of use-case dependencies, one method per route).
type ProductHandler struct {
	Commands *command.Handler
	Products product.Repository
	Tracer   trace.Tracer
}

type createProductRequest struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	PriceCents  int64   `json:"priceCents"`
}

type updateProductRequest struct {
	Name            string  `json:"name"`
	Description     *string `json:"description"`
	ExpectedVersion int64   `json:"expectedVersion"`
}

type changePriceRequest struct {
	PriceCents      int64 `json:"priceCents"`
	ConfirmLarge    bool  `json:"confirmLarge"`
	ExpectedVersion int64 `json:"expectedVersion"`
}

type activateRequest struct {
	ExpectedVersion int64 `json:"expectedVersion"`
}

type discontinueRequest struct {
	Reason          string `json:"reason"`
	ExpectedVersion int64  `json:"expectedVersion"`
}

type commandResponse struct {
	AggregateID string `json:"aggregateId"`
	Version     int64  `json:"version"`
	Status      string `json:"status"`
}

// Create handles POST /products (spec.md §6).
func (h *ProductHandler) Create(c *fiber.Ctx) error {
	ctx, span := h.Tracer.Start(c.UserContext(), "handler.create_product")
	defer span.End()

	var req createProductRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, outcome.NewFailure(outcome.KindValidationFailed, "invalid request body", nil))
	}

	result := h.Commands.Handle(ctx, command.Command{
		Variant:        command.VariantCreate,
		IdempotencyKey: c.Get("Idempotency-Key"),
		SKU:            req.SKU,
		Name:           req.Name,
		Description:    req.Description,
		PriceCents:     req.PriceCents,
	})

	if result.Status != outcome.StatusFailure {
		c.Set("Location", "/products/"+result.AggregateID)
	}

	return h.respond(c, fiber.StatusCreated, result)
}

// Update handles PUT /products/{id}.
func (h *ProductHandler) Update(c *fiber.Ctx) error {
	ctx, span := h.Tracer.Start(c.UserContext(), "handler.update_product")
	defer span.End()

	var req updateProductRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, outcome.NewFailure(outcome.KindValidationFailed, "invalid request body", nil))
	}

	result := h.Commands.Handle(ctx, command.Command{
		Variant:         command.VariantUpdate,
		IdempotencyKey:  c.Get("Idempotency-Key"),
		ProductID:       c.Params("id"),
		Name:            req.Name,
		Description:     req.Description,
		ExpectedVersion: req.ExpectedVersion,
	})

	return h.respond(c, fiber.StatusOK, result)
}

// ChangePrice handles PATCH /products/{id}/price.
func (h *ProductHandler) ChangePrice(c *fiber.Ctx) error {
	ctx, span := h.Tracer.Start(c.UserContext(), "handler.change_price")
	defer span.End()

	var req changePriceRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, outcome.NewFailure(outcome.KindValidationFailed, "invalid request body", nil))
	}

	result := h.Commands.Handle(ctx, command.Command{
		Variant:         command.VariantChangePrice,
		IdempotencyKey:  c.Get("Idempotency-Key"),
		ProductID:       c.Params("id"),
		PriceCents:      req.PriceCents,
		ConfirmLarge:    req.ConfirmLarge,
		ExpectedVersion: req.ExpectedVersion,
	})

	return h.respond(c, fiber.StatusOK, result)
}

// Activate handles POST /products/{id}/activate.
func (h *ProductHandler) Activate(c *fiber.Ctx) error {
	ctx, span := h.Tracer.Start(c.UserContext(), "handler.activate_product")
	defer span.End()

	var req activateRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, outcome.NewFailure(outcome.KindValidationFailed, "invalid request body", nil))
	}

	result := h.Commands.Handle(ctx, command.Command{
		Variant:         command.VariantActivate,
		IdempotencyKey:  c.Get("Idempotency-Key"),
		ProductID:       c.Params("id"),
		ExpectedVersion: req.ExpectedVersion,
	})

	return h.respond(c, fiber.StatusOK, result)
}

// Discontinue handles POST /products/{id}/discontinue.
func (h *ProductHandler) Discontinue(c *fiber.Ctx) error {
	ctx, span := h.Tracer.Start(c.UserContext(), "handler.discontinue_product")
	defer span.End()

	var req discontinueRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, outcome.NewFailure(outcome.KindValidationFailed, "invalid request body", nil))
	}

	result := h.Commands.Handle(ctx, command.Command{
		Variant:         command.VariantDiscontinue,
		IdempotencyKey:  c.Get("Idempotency-Key"),
		ProductID:       c.Params("id"),
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
	})

	return h.respond(c, fiber.StatusOK, result)
}

// Delete handles DELETE /products/{id}?expected_version=V.
func (h *ProductHandler) Delete(c *fiber.Ctx) error {
	ctx, span := h.Tracer.Start(c.UserContext(), "handler.delete_product")
	defer span.End()

	expectedVersion := int64(queryInt(c, "expected_version", -1))

	result := h.Commands.Handle(ctx, command.Command{
		Variant:         command.VariantDelete,
		IdempotencyKey:  c.Get("Idempotency-Key"),
		ProductID:       c.Params("id"),
		DeletedBy:       c.Get("X-User-Id"),
		ExpectedVersion: expectedVersion,
	})

	if result.Status == outcome.StatusFailure {
		return WithError(c, result.Failure)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Get handles GET /products/{id}.
func (h *ProductHandler) Get(c *fiber.Ctx) error {
	ctx, span := h.Tracer.Start(c.UserContext(), "handler.get_product")
	defer span.End()

	p, err := h.Products.FindByID(ctx, c.Params("id"))
	if err != nil {
		return WithError(c, outcome.NewFailure(outcome.KindInternalError, err.Error(), nil))
	}

	if p == nil {
		return WithError(c, outcome.NewFailure(outcome.KindProductNotFound, "product not found", map[string]any{"id": c.Params("id")}))
	}

	return c.Status(fiber.StatusOK).JSON(p)
}

// productListResponse is the basic list shape SPEC_FULL.md §9 resolves
// the Open Question to (not a HATEOAS "with-links" variant).
type productListResponse struct {
	Items      []*product.Product `json:"items"`
	NextCursor string             `json:"nextCursor,omitempty"`
}

// List handles GET /products.
func (h *ProductHandler) List(c *fiber.Ctx) error {
	ctx, span := h.Tracer.Start(c.UserContext(), "handler.list_products")
	defer span.End()

	limit := queryInt(c, "limit", 20)

	items, nextCursor, err := h.Products.FindAll(ctx, c.Query("cursor"), limit)
	if err != nil {
		return WithError(c, outcome.NewFailure(outcome.KindInternalError, err.Error(), nil))
	}

	return c.Status(fiber.StatusOK).JSON(productListResponse{Items: items, NextCursor: nextCursor})
}

func (h *ProductHandler) respond(c *fiber.Ctx, successStatus int, result outcome.CommandResult) error {
	if result.Status == outcome.StatusFailure {
		return WithError(c, result.Failure)
	}

	if result.Replayed {
		c.Set("X-Idempotent-Replayed", "true")
	}

	return c.Status(successStatus).JSON(commandResponse{
		AggregateID: result.AggregateID,
		Version:     result.Version,
		Status:      result.ProductStatus,
	})
}
