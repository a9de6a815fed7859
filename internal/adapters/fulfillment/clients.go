// Package fulfillment implements saga.InventoryPort, saga.PaymentPort,
// and saga.ShippingPort as plain JSON-over-HTTP clients against the
// external services the saga coordinates, grounded on the teacher's
// mdz/internal/rest client style (bytes.Buffer-marshaled request body,
// JSON content-type header, http.Client injected by the caller). No
// authorization header is sent.
package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cebartling/orderflow/internal/saga"
)

// InventoryClient calls an external inventory service.
type InventoryClient struct {
	BaseURL string
	HTTP    *http.Client
}

type reserveRequest struct {
	OrderID string           `json:"orderId"`
	Items   []saga.OrderItem `json:"items"`
}

type reserveResponse struct {
	ReservationID string `json:"reservationId"`
}

// Reserve reserves inventory for order's items.
func (c *InventoryClient) Reserve(ctx context.Context, orderID string, items []saga.OrderItem) (string, error) {
	var out reserveResponse

	err := postJSON(ctx, c.HTTP, c.BaseURL+"/reservations", reserveRequest{OrderID: orderID, Items: items}, &out)

	return out.ReservationID, err
}

// Release cancels a previously made reservation.
func (c *InventoryClient) Release(ctx context.Context, reservationID string) error {
	return postJSON(ctx, c.HTTP, c.BaseURL+"/reservations/"+reservationID+"/release", nil, nil)
}

// PaymentClient calls an external payment authorization service.
type PaymentClient struct {
	BaseURL string
	HTTP    *http.Client
}

type authorizeRequest struct {
	OrderID     string `json:"orderId"`
	AmountCents int64  `json:"amountCents"`
}

type authorizeResponse struct {
	AuthorizationID string `json:"authorizationId"`
}

// Authorize places an authorization hold for amountCents against orderID.
func (c *PaymentClient) Authorize(ctx context.Context, orderID string, amountCents int64) (string, error) {
	var out authorizeResponse

	err := postJSON(ctx, c.HTTP, c.BaseURL+"/authorizations", authorizeRequest{OrderID: orderID, AmountCents: amountCents}, &out)

	return out.AuthorizationID, err
}

// Void releases a previously placed authorization hold.
func (c *PaymentClient) Void(ctx context.Context, authorizationID string) error {
	return postJSON(ctx, c.HTTP, c.BaseURL+"/authorizations/"+authorizationID+"/void", nil, nil)
}

// ShippingClient calls an external shipment creation service.
type ShippingClient struct {
	BaseURL string
	HTTP    *http.Client
}

type shipRequest struct {
	OrderID       string `json:"orderId"`
	ReservationID string `json:"reservationId"`
}

type shipResponse struct {
	ShipmentID string `json:"shipmentId"`
}

// Ship arranges shipment of the reserved items.
func (c *ShippingClient) Ship(ctx context.Context, orderID, reservationID string) (string, error) {
	var out shipResponse

	err := postJSON(ctx, c.HTTP, c.BaseURL+"/shipments", shipRequest{OrderID: orderID, ReservationID: reservationID}, &out)

	return out.ShipmentID, err
}

// Cancel cancels a previously created shipment.
func (c *ShippingClient) Cancel(ctx context.Context, shipmentID string) error {
	return postJSON(ctx, c.HTTP, c.BaseURL+"/shipments/"+shipmentID+"/cancel", nil, nil)
}

func postJSON(ctx context.Context, client *http.Client, url string, body, out any) error {
	var reader io.Reader

	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("fulfillment: marshal request: %w", err)
		}

		reader = bytes.NewBuffer(buf)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return fmt.Errorf("fulfillment: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fulfillment: request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("fulfillment: %s returned status %d", url, resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("fulfillment: decode response from %s: %w", url, err)
	}

	return nil
}
