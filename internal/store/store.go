// Package store persists delivery companies, client integrations, order
// delivery state, tracking events and labels.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dzexpress/shipping/pkg/courier"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("not found")

// DeliveryCompany is a supported courier and its capability flags.
type DeliveryCompany struct {
	ID                int       `json:"id"`
	Name              string    `json:"name"`
	DisplayName       string    `json:"display_name"`
	SupportsCOD       bool      `json:"supports_cod"`
	SupportsTracking  bool      `json:"supports_tracking"`
	SupportsLabels    bool      `json:"supports_labels"`
	SupportsAPICreate bool      `json:"supports_api_create"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
}

// DeliveryIntegration holds a client's encrypted credentials for one
// company. The *_Enc fields are vault envelopes, never plaintext.
type DeliveryIntegration struct {
	ID               int       `json:"id"`
	ClientID         string    `json:"client_id"`
	CompanyID        int       `json:"company_id"`
	APIKeyEnc        string    `json:"-"`
	APISecretEnc     string    `json:"-"`
	WebhookSecretEnc string    `json:"-"`
	Enabled          bool      `json:"enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// OrderDelivery is the delivery state of one order.
type OrderDelivery struct {
	OrderID            string         `json:"order_id"`
	ClientID           string         `json:"client_id"`
	CompanyID          int            `json:"company_id"`
	TrackingNumber     string         `json:"tracking_number,omitempty"`
	DeliveryStatus     courier.Status `json:"delivery_status"`
	LabelURL           string         `json:"label_url,omitempty"`
	CODAmount          float64        `json:"cod_amount"`
	RecipientName      string         `json:"recipient_name"`
	RecipientPhone     string         `json:"recipient_phone"`
	RecipientAddress   string         `json:"recipient_address"`
	Wilaya             string         `json:"wilaya"`
	Commune            string         `json:"commune"`
	WeightKG           float64        `json:"weight_kg"`
	ProductDescription string         `json:"product_description,omitempty"`
	CourierResponse    string         `json:"-"`
	AssignedAt         *time.Time     `json:"assigned_at,omitempty"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// DeliveryEvent is one append-only entry in an order's tracking history.
type DeliveryEvent struct {
	ID               int            `json:"id"`
	TrackingNumber   string         `json:"tracking_number"`
	EventType        string         `json:"event_type"`
	Status           courier.Status `json:"status"`
	RawStatus        string         `json:"raw_status,omitempty"`
	Location         string         `json:"location,omitempty"`
	CourierTimestamp *time.Time     `json:"courier_timestamp,omitempty"`
	WebhookVerified  bool           `json:"webhook_verified"`
	ReceivedAt       time.Time      `json:"received_at"`
}

// ShippingLabel is a generated label reference.
type ShippingLabel struct {
	TrackingNumber string     `json:"tracking_number"`
	URL            string     `json:"url"`
	Format         string     `json:"format"`
	GeneratedAt    time.Time  `json:"generated_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// Store is the persistence interface used by the orchestrator and server.
type Store interface {
	// Companies
	GetCompany(ctx context.Context, id int) (*DeliveryCompany, error)
	GetCompanyByName(ctx context.Context, name string) (*DeliveryCompany, error)
	ListCompanies(ctx context.Context) ([]DeliveryCompany, error)

	// Integrations
	UpsertIntegration(ctx context.Context, integ *DeliveryIntegration) error
	GetIntegration(ctx context.Context, clientID string, companyID int) (*DeliveryIntegration, error)
	ListIntegrations(ctx context.Context, clientID string) ([]DeliveryIntegration, error)
	DisableIntegration(ctx context.Context, clientID string, companyID int) error

	// Orders
	GetOrderDelivery(ctx context.Context, orderID, clientID string) (*OrderDelivery, error)
	GetOrderDeliveryByTracking(ctx context.Context, trackingNumber string) (*OrderDelivery, error)
	UpdateOrderDelivery(ctx context.Context, od *OrderDelivery) error

	// Events
	InsertDeliveryEvent(ctx context.Context, ev *DeliveryEvent) error
	ListDeliveryEvents(ctx context.Context, trackingNumber string) ([]DeliveryEvent, error)

	// Labels
	InsertLabel(ctx context.Context, label *ShippingLabel) error
	GetLabel(ctx context.Context, trackingNumber string) (*ShippingLabel, error)
}
