// Package noest provides integration with the Noest Express API.
//
// Noest parcels are created in two steps: an upload call followed by a
// validation call. Until validated, the parcel is not visible in Noest's
// own portal, so the adapter always performs both steps and reports a
// failure when either one is rejected.
package noest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dzexpress/shipping/pkg/courier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const carrierName = "noest"

const defaultBaseURL = "https://app.noest-dz.com"

var statusTable = courier.MapTable{
	"uploaded":            courier.StatusPending,
	"en préparation":      courier.StatusPending,
	"validated":           courier.StatusAssigned,
	"validé":              courier.StatusAssigned,
	"ramassé":             courier.StatusPickedUp,
	"expédié":             courier.StatusInTransit,
	"vers wilaya":         courier.StatusInTransit,
	"en hub":              courier.StatusInTransit,
	"en sd":               courier.StatusReadyForPickup,
	"sorti en livraison":  courier.StatusOutForDelivery,
	"tentative":           courier.StatusOutForDelivery,
	"livré":               courier.StatusDelivered,
	"echoué":              courier.StatusFailed,
	"annulé":              courier.StatusCancelled,
	"retourné":            courier.StatusReturned,
	"retour au vendeur":   courier.StatusReturned,
	"retourné au vendeur": courier.StatusReturned,
}

// APIClient defines the Noest API operations used by the adapter.
// Credentials travel in the request body on every call.
type APIClient interface {
	CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error)
	ValidateOrder(ctx context.Context, req *AuthedRequest) (*ValidateResponse, error)
	GetTracking(ctx context.Context, req *AuthedRequest) (*TrackingResponse, error)
	DeleteOrder(ctx context.Context, req *AuthedRequest) (*DeleteResponse, error)
}

// OrderRequest is an order upload request.
// POST /api/public/create/order
type OrderRequest struct {
	APIToken  string  `json:"api_token"`
	UserGUID  string  `json:"user_guid"`
	Reference string  `json:"reference"`
	Client    string  `json:"client"`
	Phone     string  `json:"phone"`
	Adresse   string  `json:"adresse"`
	Wilaya    string  `json:"wilaya"`
	Commune   string  `json:"commune"`
	Montant   float64 `json:"montant"`
	Produit   string  `json:"produit,omitempty"`
	Poids     float64 `json:"poids,omitempty"`
	TypeID    int     `json:"type_id"` // 1 = home delivery, 2 = exchange
	StopDesk  int     `json:"stop_desk"`
}

// OrderResponse is the upload outcome.
type OrderResponse struct {
	Success  bool   `json:"success"`
	Tracking string `json:"tracking,omitempty"`
	Message  string `json:"message,omitempty"`
}

// AuthedRequest carries body credentials plus a tracking number, the
// shape shared by the validate, tracking, and delete endpoints.
type AuthedRequest struct {
	APIToken string `json:"api_token"`
	UserGUID string `json:"user_guid"`
	Tracking string `json:"tracking"`
}

// ValidateResponse is the validation outcome.
// POST /api/public/valid/order
type ValidateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// TrackingResponse is the tracking feed for one parcel.
// POST /api/public/get/trackings/info
type TrackingResponse struct {
	Tracking   string     `json:"tracking"`
	LastStatus string     `json:"last_status"`
	Activity   []Activity `json:"activity"`
}

// Activity is a single tracking entry.
type Activity struct {
	Event  string `json:"event"`
	Date   string `json:"date"`
	Causer string `json:"causer,omitempty"`
}

// DeleteResponse is the deletion outcome.
// POST /api/public/delete/order
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// APIError represents an error from the Noest API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Config holds Noest configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is the Noest courier adapter. It implements courier.Service
// plus the Canceller capability. The secondary credential is the Noest
// account GUID.
type Client struct {
	config Config
	api    APIClient
	logger *otelzap.Logger
	tracer trace.Tracer
}

// New creates a new Noest adapter.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		config: cfg,
		api:    newHTTPAPIClient(cfg.BaseURL, cfg.Timeout),
		logger: logger,
		tracer: tracer,
	}
}

// NewWithAPIClient creates an adapter bound to a custom API client, for tests.
func NewWithAPIClient(cfg Config, api APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return &Client{config: cfg, api: api, logger: logger, tracer: tracer}
}

// Name returns the courier name.
func (c *Client) Name() string {
	return carrierName
}

// CreateShipment uploads the order, then validates it. A parcel left
// unvalidated is reported as a failure even though the upload succeeded,
// because nothing downstream can act on it.
func (c *Client) CreateShipment(ctx context.Context, shipment *courier.Shipment, creds courier.Credentials) (*courier.CreateResult, error) {
	c.logger.Info("Creating Noest order", zap.String("reference", shipment.Reference))

	typeID := 1
	if shipment.Exchange {
		typeID = 2
	}
	stopDesk := 0
	if shipment.StopDesk {
		stopDesk = 1
	}

	created, err := c.api.CreateOrder(ctx, &OrderRequest{
		APIToken:  creds.APIKey,
		UserGUID:  creds.APISecret,
		Reference: shipment.Reference,
		Client:    shipment.RecipientName,
		Phone:     shipment.RecipientPhone,
		Adresse:   shipment.Address,
		Wilaya:    shipment.Wilaya,
		Commune:   shipment.Commune,
		Montant:   shipment.CODAmount,
		Produit:   shipment.Description,
		Poids:     shipment.WeightKG,
		TypeID:    typeID,
		StopDesk:  stopDesk,
	})
	if err != nil {
		c.logger.Error("Noest API error", zap.Error(err))
		return nil, err
	}
	if !created.Success {
		return &courier.CreateResult{
			Success: false,
			Error:   created.Message,
			Raw:     rawJSON(created),
		}, nil
	}

	validated, err := c.api.ValidateOrder(ctx, &AuthedRequest{
		APIToken: creds.APIKey,
		UserGUID: creds.APISecret,
		Tracking: created.Tracking,
	})
	if err != nil {
		c.logger.Error("Noest API error", zap.Error(err))
		return nil, err
	}
	if !validated.Success {
		return &courier.CreateResult{
			Success: false,
			Error:   fmt.Sprintf("order uploaded but validation failed: %s", validated.Message),
			Raw:     rawJSON(validated),
		}, nil
	}

	return &courier.CreateResult{
		Success:        true,
		TrackingNumber: created.Tracking,
		ReferenceID:    shipment.Reference,
		Raw:            rawJSON(created),
	}, nil
}

// GetStatus fetches the tracking feed, mapped to the canonical set.
func (c *Client) GetStatus(ctx context.Context, trackingNumber string, creds courier.Credentials) (*courier.StatusResult, error) {
	info, err := c.api.GetTracking(ctx, &AuthedRequest{
		APIToken: creds.APIKey,
		UserGUID: creds.APISecret,
		Tracking: trackingNumber,
	})
	if err != nil {
		c.logger.Error("Noest API error", zap.Error(err))
		return nil, err
	}

	result := &courier.StatusResult{
		TrackingNumber: trackingNumber,
		Status:         statusTable.Map(info.LastStatus),
	}

	for _, a := range info.Activity {
		ev := courier.TrackingEvent{
			Description: a.Causer,
			Status:      statusTable.Map(a.Event),
			RawStatus:   a.Event,
		}
		if t, ok := parseDate(a.Date); ok {
			ev.Timestamp = t
		}
		result.Events = append(result.Events, ev)
	}
	if n := len(result.Events); n > 0 && !result.Events[n-1].Timestamp.IsZero() {
		t := result.Events[n-1].Timestamp
		result.LastUpdate = &t
	}

	return result, nil
}

// VerifyWebhook checks the HMAC-SHA256 signature over the raw payload.
func (c *Client) VerifyWebhook(payload []byte, signature, secret string) bool {
	return courier.VerifyHMAC(secret, payload, signature)
}

type webhookPayload struct {
	Tracking string `json:"tracking"`
	Status   string `json:"status"`
	Date     string `json:"date"`
	Remarque string `json:"remarque"`
}

// ParseWebhookPayload normalizes a Noest webhook body.
func (c *Client) ParseWebhookPayload(payload []byte) (*courier.WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if p.Tracking == "" {
		return nil, fmt.Errorf("webhook payload missing tracking number")
	}

	ev := &courier.WebhookEvent{
		TrackingNumber: p.Tracking,
		EventType:      "status_update",
		Status:         statusTable.Map(p.Status),
		RawStatus:      p.Status,
		Description:    p.Remarque,
	}
	if t, ok := parseDate(p.Date); ok {
		ev.Timestamp = &t
	}
	return ev, nil
}

// CancelShipment deletes an unvalidated or not-yet-dispatched order.
func (c *Client) CancelShipment(ctx context.Context, trackingNumber string, creds courier.Credentials) (*courier.CancelResult, error) {
	resp, err := c.api.DeleteOrder(ctx, &AuthedRequest{
		APIToken: creds.APIKey,
		UserGUID: creds.APISecret,
		Tracking: trackingNumber,
	})
	if err != nil {
		return nil, err
	}
	return &courier.CancelResult{Success: resp.Success, Error: resp.Message}, nil
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func rawJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

var (
	_ courier.Service   = (*Client)(nil)
	_ courier.Canceller = (*Client)(nil)
)
