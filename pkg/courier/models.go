package courier

import (
	"time"
)

// LabelFormat represents the format of shipping labels.
type LabelFormat string

const (
	LabelPDF LabelFormat = "pdf"
	LabelPNG LabelFormat = "png"
	LabelZPL LabelFormat = "zpl"
)

// Shipment represents a shipment to be created with a courier.
// Wilaya and Commune are Algerian administrative region fields; depending
// on the provider they are sent as free text or resolved to internal ids
// inside the adapter.
type Shipment struct {
	// Reference is the caller-supplied idempotency reference. Providers
	// that support server-side dedupe key on it.
	Reference string

	RecipientName  string
	RecipientPhone string
	Address        string
	Wilaya         string
	Commune        string

	// CommuneFallbacks is an ordered list of alternative commune
	// candidates tried when the provider rejects the commune.
	CommuneFallbacks []string

	WeightKG    float64
	CODAmount   float64
	Description string

	// FreeShipping marks the delivery fee as prepaid by the merchant.
	FreeShipping bool
	// Exchange marks the shipment as a product exchange.
	Exchange bool
	// StopDesk routes the parcel to a pickup point instead of home delivery.
	StopDesk bool
}

// TrackingEvent represents a single normalized tracking event.
type TrackingEvent struct {
	Timestamp   time.Time
	Description string
	Location    string
	Status      Status
	RawStatus   string
}

// CreateResult is the outcome of a CreateShipment call. Expected provider
// rejections set Success=false and Error; only transport faults surface as
// Go errors from the adapter.
type CreateResult struct {
	Success        bool
	TrackingNumber string
	LabelURL       string
	ReferenceID    string
	Error          string
	// Raw is the provider's response body, retained for audit.
	Raw string
}

// StatusResult is a canonical delivery-status snapshot.
type StatusResult struct {
	TrackingNumber string
	Status         Status
	LastUpdate     *time.Time
	Location       string
	Events         []TrackingEvent
	Error          string
}

// CancelResult is the outcome of a CancelShipment call.
type CancelResult struct {
	Success bool
	Error   string
}

// WebhookEvent is a normalized inbound courier event.
type WebhookEvent struct {
	TrackingNumber string
	EventType      string
	Status         Status
	RawStatus      string
	Timestamp      *time.Time
	Location       string
	Description    string
}
