package saga

import "context"

// InventoryPort is the abstract collaborator the reserve/ship steps use
// (spec.md §1 "neither surface nor persistence drivers are the hard
// part" — kept as a narrow interface so tests can fake it).
type InventoryPort interface {
	Reserve(ctx context.Context, orderID string, items []OrderItem) (reservationID string, err error)
	Release(ctx context.Context, reservationID string) error
}

// PaymentPort is the abstract collaborator the authorize step uses.
type PaymentPort interface {
	Authorize(ctx context.Context, orderID string, amountCents int64) (authorizationID string, err error)
	Void(ctx context.Context, authorizationID string) error
}

// ShippingPort is the abstract collaborator the ship step uses.
type ShippingPort interface {
	Ship(ctx context.Context, orderID, reservationID string) (shipmentID string, err error)
	Cancel(ctx context.Context, shipmentID string) error
}

// ReserveStep reserves inventory for the order's items (scenario F,
// spec.md §8: saga steps [reserve, authorize, ship]).
type ReserveStep struct {
	Inventory InventoryPort
	Items     []OrderItem
}

func (s *ReserveStep) Name() string { return "reserve" }

func (s *ReserveStep) Execute(ctx context.Context, sagaCtx *Context) ([]byte, error) {
	reservationID, err := s.Inventory.Reserve(ctx, sagaCtx.OrderID, s.Items)
	if err != nil {
		return nil, err
	}

	sagaCtx.Values["reservation_id"] = reservationID

	return []byte(reservationID), nil
}

func (s *ReserveStep) Compensate(ctx context.Context, sagaCtx *Context) error {
	reservationID, ok := sagaCtx.Values["reservation_id"].(string)
	if !ok || reservationID == "" {
		return nil
	}

	return s.Inventory.Release(ctx, reservationID)
}

// AuthorizeStep authorizes payment for the order's total (scenario F).
type AuthorizeStep struct {
	Payment     PaymentPort
	AmountCents int64
}

func (s *AuthorizeStep) Name() string { return "authorize" }

func (s *AuthorizeStep) Execute(ctx context.Context, sagaCtx *Context) ([]byte, error) {
	authorizationID, err := s.Payment.Authorize(ctx, sagaCtx.OrderID, s.AmountCents)
	if err != nil {
		return nil, err
	}

	sagaCtx.Values["authorization_id"] = authorizationID

	return []byte(authorizationID), nil
}

func (s *AuthorizeStep) Compensate(ctx context.Context, sagaCtx *Context) error {
	authorizationID, ok := sagaCtx.Values["authorization_id"].(string)
	if !ok || authorizationID == "" {
		return nil
	}

	return s.Payment.Void(ctx, authorizationID)
}

// ShipStep arranges shipment using the reservation made earlier in the
// saga (scenario F: compensation of a never-executed ship step is a
// no-op, spec.md §4.7 "NotRequired").
type ShipStep struct {
	Shipping ShippingPort
}

func (s *ShipStep) Name() string { return "ship" }

func (s *ShipStep) Execute(ctx context.Context, sagaCtx *Context) ([]byte, error) {
	reservationID, _ := sagaCtx.Values["reservation_id"].(string)

	shipmentID, err := s.Shipping.Ship(ctx, sagaCtx.OrderID, reservationID)
	if err != nil {
		return nil, err
	}

	sagaCtx.Values["shipment_id"] = shipmentID

	return []byte(shipmentID), nil
}

func (s *ShipStep) Compensate(ctx context.Context, sagaCtx *Context) error {
	shipmentID, ok := sagaCtx.Values["shipment_id"].(string)
	if !ok || shipmentID == "" {
		// Never executed: compensation is NotRequired (spec.md §4.7).
		return nil
	}

	return s.Shipping.Cancel(ctx, shipmentID)
}
