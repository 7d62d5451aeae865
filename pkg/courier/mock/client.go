// Package mock provides a mock courier implementation for testing.
package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/dzexpress/shipping/pkg/courier"
)

// Client is a mock courier for testing. The zero behavior accepts every
// shipment and reports parcels as in transit; the On* hooks override
// individual operations.
type Client struct {
	name string

	// SimulateErrors makes every operation return a transport error.
	SimulateErrors bool

	OnCreateShipment func(ctx context.Context, shipment *courier.Shipment, creds courier.Credentials) (*courier.CreateResult, error)
	OnGetStatus      func(ctx context.Context, trackingNumber string, creds courier.Credentials) (*courier.StatusResult, error)
	OnCancel         func(ctx context.Context, trackingNumber string, creds courier.Credentials) (*courier.CancelResult, error)
	OnGetLabelPDF    func(ctx context.Context, trackingNumber string, creds courier.Credentials) ([]byte, error)
}

// New creates a new mock courier.
func New(name string) *Client {
	return &Client{name: name}
}

// Name returns the courier name.
func (c *Client) Name() string {
	return c.name
}

// CreateShipment creates a mock shipment.
func (c *Client) CreateShipment(ctx context.Context, shipment *courier.Shipment, creds courier.Credentials) (*courier.CreateResult, error) {
	if c.OnCreateShipment != nil {
		return c.OnCreateShipment(ctx, shipment, creds)
	}
	if c.SimulateErrors {
		return nil, courier.NewCourierError(c.name, "SIMULATED_ERROR", "simulated create failure")
	}
	tracking := fmt.Sprintf("%s-%d", c.name, time.Now().UnixNano()%1000000000)
	return &courier.CreateResult{
		Success:        true,
		TrackingNumber: tracking,
		LabelURL:       fmt.Sprintf("https://labels.%s.mock/%s.pdf", c.name, tracking),
		ReferenceID:    shipment.Reference,
	}, nil
}

// GetStatus returns a mock in-transit status.
func (c *Client) GetStatus(ctx context.Context, trackingNumber string, creds courier.Credentials) (*courier.StatusResult, error) {
	if c.OnGetStatus != nil {
		return c.OnGetStatus(ctx, trackingNumber, creds)
	}
	if c.SimulateErrors {
		return nil, courier.NewCourierError(c.name, "SIMULATED_ERROR", "simulated status failure")
	}
	now := time.Now()
	return &courier.StatusResult{
		TrackingNumber: trackingNumber,
		Status:         courier.StatusInTransit,
		LastUpdate:     &now,
		Events: []courier.TrackingEvent{
			{Timestamp: now.Add(-2 * time.Hour), Status: courier.StatusPickedUp, RawStatus: "picked_up"},
			{Timestamp: now, Status: courier.StatusInTransit, RawStatus: "in_transit"},
		},
	}, nil
}

// VerifyWebhook checks an HMAC-SHA256 signature over the payload.
func (c *Client) VerifyWebhook(payload []byte, signature, secret string) bool {
	return courier.VerifyHMAC(secret, payload, signature)
}

// ParseWebhookPayload parses a minimal JSON webhook body.
func (c *Client) ParseWebhookPayload(payload []byte) (*courier.WebhookEvent, error) {
	return courier.ParseGenericWebhook(payload)
}

// CancelShipment cancels a mock shipment.
func (c *Client) CancelShipment(ctx context.Context, trackingNumber string, creds courier.Credentials) (*courier.CancelResult, error) {
	if c.OnCancel != nil {
		return c.OnCancel(ctx, trackingNumber, creds)
	}
	if c.SimulateErrors {
		return nil, courier.NewCourierError(c.name, "SIMULATED_ERROR", "simulated cancel failure")
	}
	return &courier.CancelResult{Success: true}, nil
}

// GetLabelPDF returns placeholder PDF bytes.
func (c *Client) GetLabelPDF(ctx context.Context, trackingNumber string, creds courier.Credentials) ([]byte, error) {
	if c.OnGetLabelPDF != nil {
		return c.OnGetLabelPDF(ctx, trackingNumber, creds)
	}
	if c.SimulateErrors {
		return nil, courier.NewCourierError(c.name, "SIMULATED_ERROR", "simulated label failure")
	}
	return []byte("%PDF-1.4 mock label " + trackingNumber), nil
}

var (
	_ courier.Service      = (*Client)(nil)
	_ courier.Canceller    = (*Client)(nil)
	_ courier.LabelFetcher = (*Client)(nil)
)
