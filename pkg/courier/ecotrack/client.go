// Package ecotrack provides integration with the Ecotrack delivery
// platform. Several couriers (Anderson, Mars Express, Dolivroo) resell
// the platform under their own hosts, so their adapters live here.
package ecotrack

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

const (
	carrierEcotrack    = "ecotrack"
	carrierAnderson    = "anderson"
	carrierMarsExpress = "mars-express"
	carrierDolivroo    = "dolivroo"
)

var resellerHosts = map[string]string{
	carrierEcotrack:    "https://app.ecotrack.dz",
	carrierAnderson:    "https://anderson-e.ecotrack.dz",
	carrierMarsExpress: "https://mars.ecotrack.dz",
	carrierDolivroo:    "https://dolivroo.ecotrack.dz",
}

// statusTable maps the platform's activity vocabulary to the canonical
// set. Keys are lowercase.
var statusTable = courier.MapTable{
	"en préparation":       courier.StatusPending,
	"appel 1":              courier.StatusPending,
	"appel 2":              courier.StatusPending,
	"validé":               courier.StatusAssigned,
	"prêt à expédier":      courier.StatusAssigned,
	"ramassé":              courier.StatusPickedUp,
	"expédié":              courier.StatusInTransit,
	"vers wilaya":          courier.StatusInTransit,
	"reçu à wilaya":        courier.StatusInTransit,
	"centre":               courier.StatusInTransit,
	"en localisation":      courier.StatusInTransit,
	"en attente du client": courier.StatusReadyForPickup,
	"sorti en livraison":   courier.StatusOutForDelivery,
	"tentative échouée":    courier.StatusOutForDelivery,
	"livré":                courier.StatusDelivered,
	"echèc livraison":      courier.StatusFailed,
	"suspendu":             courier.StatusFailed,
	"annulé":               courier.StatusCancelled,
	"retour vers centre":   courier.StatusReturned,
	"retourné au vendeur":  courier.StatusReturned,
	"retour reçu":          courier.StatusReturned,
}

// Config holds Ecotrack-platform configuration for one host.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is an Ecotrack-platform courier adapter. It implements
// courier.Service plus the Canceller capability.
type Client struct {
	name   string
	config Config
	newAPI func(creds courier.Credentials) APIClient
	logger *otelzap.Logger
	tracer trace.Tracer
}

// New creates the Ecotrack adapter.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return NewReseller(carrierEcotrack, cfg, logger, tracer)
}

// NewAnderson creates the Anderson adapter (Ecotrack reseller).
func NewAnderson(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return NewReseller(carrierAnderson, cfg, logger, tracer)
}

// NewMarsExpress creates the Mars Express adapter (Ecotrack reseller).
func NewMarsExpress(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return NewReseller(carrierMarsExpress, cfg, logger, tracer)
}

// NewDolivroo creates the Dolivroo adapter (Ecotrack reseller).
func NewDolivroo(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return NewReseller(carrierDolivroo, cfg, logger, tracer)
}

// NewReseller creates an adapter for any Ecotrack-platform host.
func NewReseller(name string, cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = resellerHosts[name]
	}
	return &Client{
		name:   name,
		config: cfg,
		newAPI: func(creds courier.Credentials) APIClient {
			return NewHTTPAPIClient(HTTPAPIClientConfig{
				BaseURL: cfg.BaseURL,
				Token:   creds.APIKey,
				Timeout: cfg.Timeout,
			})
		},
		logger: logger,
		tracer: tracer,
	}
}

// NewWithAPIClient creates an adapter bound to a fixed API client, for tests.
func NewWithAPIClient(name string, cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if name == "" {
		name = carrierEcotrack
	}
	return &Client{
		name:   name,
		config: cfg,
		newAPI: func(courier.Credentials) APIClient { return apiClient },
		logger: logger,
		tracer: tracer,
	}
}

// Name returns the courier name.
func (c *Client) Name() string {
	return c.name
}

// CreateShipment creates a delivery order on the platform.
func (c *Client) CreateShipment(ctx context.Context, shipment *courier.Shipment, creds courier.Credentials) (*courier.CreateResult, error) {
	c.logger.Info("Creating order",
		zap.String("courier", c.name),
		zap.String("reference", shipment.Reference),
	)

	stopDesk := 0
	if shipment.StopDesk {
		stopDesk = 1
	}
	exchange := 0
	if shipment.Exchange {
		exchange = 1
	}

	resp, err := c.newAPI(creds).CreateOrder(ctx, &OrderRequest{
		Reference:    shipment.Reference,
		NomClient:    shipment.RecipientName,
		Telephone:    shipment.RecipientPhone,
		Adresse:      shipment.Address,
		Wilaya:       shipment.Wilaya,
		Commune:      shipment.Commune,
		Montant:      shipment.CODAmount,
		Produit:      shipment.Description,
		Poids:        shipment.WeightKG,
		StopDesk:     stopDesk,
		ExchangeFlag: exchange,
	})
	if err != nil {
		c.logger.Error("Platform API error", zap.String("courier", c.name), zap.Error(err))
		return nil, err
	}

	if !resp.Success {
		return &courier.CreateResult{
			Success: false,
			Error:   resp.Message,
			Raw:     rawJSON(resp),
		}, nil
	}

	return &courier.CreateResult{
		Success:        true,
		TrackingNumber: resp.Tracking,
		LabelURL:       resp.Lien,
		ReferenceID:    shipment.Reference,
		Raw:            rawJSON(resp),
	}, nil
}

// GetStatus fetches the activity feed, mapped to the canonical set. The
// latest activity entry wins.
func (c *Client) GetStatus(ctx context.Context, trackingNumber string, creds courier.Credentials) (*courier.StatusResult, error) {
	info, err := c.newAPI(creds).GetTrackingInfo(ctx, trackingNumber)
	if err != nil {
		c.logger.Error("Platform API error", zap.String("courier", c.name), zap.Error(err))
		return nil, err
	}

	result := &courier.StatusResult{
		TrackingNumber: trackingNumber,
		Status:         courier.StatusPending,
	}

	for _, a := range info.Activity {
		ev := courier.TrackingEvent{
			Description: a.Content,
			Status:      statusTable.Map(a.Event),
			RawStatus:   a.Event,
		}
		if t, ok := parseDate(a.Date); ok {
			ev.Timestamp = t
		}
		result.Events = append(result.Events, ev)
	}

	if n := len(result.Events); n > 0 {
		last := result.Events[n-1]
		result.Status = last.Status
		if !last.Timestamp.IsZero() {
			t := last.Timestamp
			result.LastUpdate = &t
		}
	}

	return result, nil
}

// VerifyWebhook checks the HMAC-SHA256 signature over the raw payload.
func (c *Client) VerifyWebhook(payload []byte, signature, secret string) bool {
	return courier.VerifyHMAC(secret, payload, signature)
}

// webhookPayload is the platform's webhook body. Unrecognized fields are
// ignored.
type webhookPayload struct {
	Tracking  string `json:"tracking"`
	Event     string `json:"event"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
	Content   string `json:"content"`
}

// ParseWebhookPayload normalizes a platform webhook body.
func (c *Client) ParseWebhookPayload(payload []byte) (*courier.WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if p.Tracking == "" {
		return nil, fmt.Errorf("webhook payload missing tracking number")
	}

	raw := p.Status
	if raw == "" {
		raw = p.Event
	}

	ev := &courier.WebhookEvent{
		TrackingNumber: p.Tracking,
		EventType:      "status_update",
		Status:         statusTable.Map(raw),
		RawStatus:      raw,
		Description:    p.Content,
	}
	if t, ok := parseDate(p.UpdatedAt); ok {
		ev.Timestamp = &t
	}
	return ev, nil
}

// CancelShipment deletes an order that has not been dispatched.
func (c *Client) CancelShipment(ctx context.Context, trackingNumber string, creds courier.Credentials) (*courier.CancelResult, error) {
	resp, err := c.newAPI(creds).DeleteOrder(ctx, trackingNumber)
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
