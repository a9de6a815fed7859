package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/cebartling/orderflow/internal/outcome"
	"github.com/cebartling/orderflow/internal/saga"
)

// OrderCreator persists the order row before the saga begins mutating its
// status (saga.OrderStore.UpdateStatus only affects an existing row), and
// loads it back so a retry can rebuild the same step list.
type OrderCreator interface {
	Create(ctx context.Context, order *saga.Order) error
	FindByID(ctx context.Context, id string) (*saga.Order, error)
}

// OrderHandler adapts saga.Runner to HTTP, driving the reserve →
// authorize → ship saga for a freshly placed order (spec.md §8 scenario
// F's step list), and saga.RetryOrchestrator for resuming a failed one.
type OrderHandler struct {
	OrderRepo OrderCreator
	Runner    *saga.Runner
	Retrier   *saga.RetryOrchestrator
	Inventory saga.InventoryPort
	Payment   saga.PaymentPort
	Shipping  saga.ShippingPort
	Tracer    trace.Tracer
}

func (h *OrderHandler) steps(order *saga.Order) []saga.Step {
	return []saga.Step{
		&saga.ReserveStep{Inventory: h.Inventory, Items: order.Items},
		&saga.AuthorizeStep{Payment: h.Payment, AmountCents: order.AmountCents},
		&saga.ShipStep{Shipping: h.Shipping},
	}
}

type createOrderRequest struct {
	OrderID     string           `json:"orderId"`
	Items       []saga.OrderItem `json:"items"`
	AmountCents int64            `json:"amountCents"`
}

type orderRunResponse struct {
	ExecutionID         string   `json:"executionId"`
	Succeeded           bool     `json:"succeeded"`
	FailedStep          string   `json:"failedStep,omitempty"`
	CompensatedSteps    []string `json:"compensatedSteps,omitempty"`
	FailedCompensations []string `json:"failedCompensations,omitempty"`
}

// Create handles POST /orders: runs the fulfillment saga synchronously
// and reports its outcome.
func (h *OrderHandler) Create(c *fiber.Ctx) error {
	ctx, span := h.Tracer.Start(c.UserContext(), "handler.create_order")
	defer span.End()

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, outcome.NewFailure(outcome.KindValidationFailed, "invalid request body", nil))
	}

	if req.OrderID == "" || len(req.Items) == 0 {
		return WithError(c, outcome.NewFailure(outcome.KindValidationFailed, "orderId and items are required", nil))
	}

	now := time.Now().UTC()

	if err := h.OrderRepo.Create(ctx, &saga.Order{
		ID:          req.OrderID,
		Status:      saga.OrderPending,
		Items:       req.Items,
		AmountCents: req.AmountCents,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		return WithError(c, outcome.NewFailure(outcome.KindInternalError, err.Error(), nil))
	}

	sagaCtx := saga.NewContext(req.OrderID)

	result, err := h.Runner.Run(ctx, req.OrderID, h.steps(&saga.Order{Items: req.Items, AmountCents: req.AmountCents}), sagaCtx)
	if err != nil {
		return WithError(c, outcome.NewFailure(outcome.KindInternalError, err.Error(), nil))
	}

	return c.Status(runStatus(result.Outcome.AllSucceeded)).JSON(toRunResponse(result))
}

// Retry handles POST /orders/:id/retry: resumes a failed saga from its
// last verified step (spec.md §4.8), using saga.Verifiable to avoid
// blindly re-running steps whose effect already landed.
func (h *OrderHandler) Retry(c *fiber.Ctx) error {
	ctx, span := h.Tracer.Start(c.UserContext(), "handler.retry_order")
	defer span.End()

	orderID := c.Params("id")

	order, err := h.OrderRepo.FindByID(ctx, orderID)
	if err != nil {
		return WithError(c, outcome.NewFailure(outcome.KindInternalError, err.Error(), nil))
	}

	if order == nil {
		return WithError(c, outcome.NewFailure(outcome.KindProductNotFound, "order not found", nil))
	}

	sagaCtx := saga.NewContext(orderID)

	outcomeResult, err := h.Retrier.Retry(ctx, orderID, h.steps(order), sagaCtx)
	if err != nil {
		return WithError(c, outcome.NewFailure(outcome.KindInternalError, err.Error(), nil))
	}

	return c.Status(runStatus(outcomeResult.AllSucceeded)).JSON(orderRunResponse{
		Succeeded:  outcomeResult.AllSucceeded,
		FailedStep: outcomeResult.FailedStep,
	})
}

func runStatus(succeeded bool) int {
	if succeeded {
		return fiber.StatusOK
	}

	return fiber.StatusUnprocessableEntity
}

func toRunResponse(result saga.RunResult) orderRunResponse {
	resp := orderRunResponse{
		ExecutionID: result.ExecutionID,
		Succeeded:   result.Outcome.AllSucceeded,
		FailedStep:  result.Outcome.FailedStep,
	}

	if result.Compensation != nil {
		resp.CompensatedSteps = result.Compensation.CompensatedSteps
		resp.FailedCompensations = result.Compensation.FailedCompensations
	}

	return resp
}
