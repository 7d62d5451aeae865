// Package courier provides an abstraction layer for Algerian courier networks.
package courier

import (
	"context"
)

// Service defines the interface that every courier adapter must implement.
type Service interface {
	// Name returns the courier identifier (e.g., "yalidine", "noest", "zr-express").
	Name() string

	// CreateShipment creates a new shipment with the courier.
	// Expected provider-side rejections (bad commune, inactive account,
	// rate limiting) are reported through CreateResult, not as errors.
	CreateShipment(ctx context.Context, shipment *Shipment, creds Credentials) (*CreateResult, error)

	// GetStatus fetches the current delivery status for a tracking number,
	// mapped into the canonical status set.
	GetStatus(ctx context.Context, trackingNumber string, creds Credentials) (*StatusResult, error)

	// VerifyWebhook checks the signature of an inbound webhook payload.
	// It has no side effects and never fails open.
	VerifyWebhook(payload []byte, signature, secret string) bool

	// ParseWebhookPayload normalizes a raw webhook body. Pure, no I/O.
	ParseWebhookPayload(payload []byte) (*WebhookEvent, error)
}

// Canceller is implemented by couriers that support shipment cancellation.
type Canceller interface {
	CancelShipment(ctx context.Context, trackingNumber string, creds Credentials) (*CancelResult, error)
}

// LabelFetcher is implemented by couriers that expose the label document
// itself rather than a hosted URL.
type LabelFetcher interface {
	GetLabelPDF(ctx context.Context, trackingNumber string, creds Credentials) ([]byte, error)
}

// Credentials holds decrypted API credentials for one (client, courier) pair.
// Values live in memory only for the duration of a call.
type Credentials struct {
	APIKey        string
	APISecret     string
	WebhookSecret string
}
