// Package yalidine provides integration with the Yalidine parcel platform.
// Guepex runs the same platform under its own host, so its adapter lives
// here too.
package yalidine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dzexpress/shipping/pkg/courier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	carrierYalidine = "yalidine"
	carrierGuepex   = "guepex"

	defaultYalidineURL = "https://api.yalidine.app"
	defaultGuepexURL   = "https://api.guepex.app"
)

// statusTable maps the platform's French status vocabulary to the
// canonical set. Keys are lowercase; lookups fall back to a lowercase
// match so the platform's inconsistent casing never matters.
var statusTable = courier.MapTable{
	"pas encore expédié":    courier.StatusPending,
	"en préparation":        courier.StatusPending,
	"a ramasser":            courier.StatusAssigned,
	"prêt à expédier":       courier.StatusAssigned,
	"ramassé":               courier.StatusPickedUp,
	"expédié":               courier.StatusInTransit,
	"vers wilaya":           courier.StatusInTransit,
	"reçu à wilaya":         courier.StatusInTransit,
	"centre":                courier.StatusInTransit,
	"en localisation":       courier.StatusInTransit,
	"vers point de retrait": courier.StatusInTransit,
	"en attente du client":  courier.StatusReadyForPickup,
	"sorti en livraison":    courier.StatusOutForDelivery,
	"tentative échouée":     courier.StatusOutForDelivery,
	"livré":                 courier.StatusDelivered,
	"echèc livraison":       courier.StatusFailed,
	"echec livraison":       courier.StatusFailed,
	"annulé":                courier.StatusCancelled,
	"retour vers centre":    courier.StatusReturned,
	"retourné au vendeur":   courier.StatusReturned,
	"retour à expéditeur":   courier.StatusReturned,
}

// Config holds Yalidine-platform configuration shared by all clients of
// one host. Credentials are per-merchant and arrive with each call.
type Config struct {
	BaseURL string
	// DefaultCommune is the last-resort commune candidate for the
	// bounded create retry.
	DefaultCommune string
	Timeout        time.Duration
}

// Client is a Yalidine-platform courier adapter. It implements
// courier.Service plus the Canceller and LabelFetcher capabilities.
type Client struct {
	name   string
	config Config
	newAPI func(creds courier.Credentials) APIClient
	logger *otelzap.Logger
	tracer trace.Tracer
}

// New creates the Yalidine adapter.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return newPlatformClient(carrierYalidine, defaultYalidineURL, cfg, logger, tracer)
}

// NewGuepex creates the Guepex adapter. Same wire protocol, different host.
func NewGuepex(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return newPlatformClient(carrierGuepex, defaultGuepexURL, cfg, logger, tracer)
}

func newPlatformClient(name, defaultURL string, cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultURL
	}
	return &Client{
		name:   name,
		config: cfg,
		newAPI: func(creds courier.Credentials) APIClient {
			return NewHTTPAPIClient(HTTPAPIClientConfig{
				BaseURL:  cfg.BaseURL,
				APIID:    creds.APIKey,
				APIToken: creds.APISecret,
				Timeout:  cfg.Timeout,
			})
		},
		logger: logger,
		tracer: tracer,
	}
}

// NewWithAPIClient creates an adapter bound to a fixed API client.
// This is useful for injecting mock clients in tests. An empty name
// selects the Yalidine host; pass "guepex" for the Guepex variant.
func NewWithAPIClient(name string, cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if name == "" {
		name = carrierYalidine
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

// CreateShipment creates a parcel on the platform.
//
// When the platform rejects the commune specifically, the call retries
// with a small ordered list of fallback candidates before giving up. Any
// other rejection aborts immediately.
func (c *Client) CreateShipment(ctx context.Context, shipment *courier.Shipment, creds courier.Credentials) (*courier.CreateResult, error) {
	c.logger.Info("Creating parcel",
		zap.String("courier", c.name),
		zap.String("reference", shipment.Reference),
		zap.String("wilaya", shipment.Wilaya),
	)

	api := c.newAPI(creds)

	var lastResult ParcelResult
	for _, commune := range communeCandidates(shipment, c.config.DefaultCommune) {
		resp, err := api.CreateParcels(ctx, []Parcel{parcelFromShipment(shipment, commune)})
		if err != nil {
			c.logger.Error("Platform API error", zap.String("courier", c.name), zap.Error(err))
			return nil, err
		}

		result, ok := resp[shipment.Reference]
		if !ok {
			return &courier.CreateResult{
				Success: false,
				Error:   fmt.Sprintf("no result returned for reference %s", shipment.Reference),
			}, nil
		}

		if result.Success {
			return &courier.CreateResult{
				Success:        true,
				TrackingNumber: result.Tracking,
				LabelURL:       result.Label,
				ReferenceID:    shipment.Reference,
				Raw:            rawJSON(result),
			}, nil
		}

		lastResult = result
		if !isCommuneError(result.Message) {
			break
		}
		c.logger.Warn("Commune rejected, trying fallback",
			zap.String("courier", c.name),
			zap.String("commune", commune),
			zap.String("message", result.Message),
		)
	}

	return &courier.CreateResult{
		Success: false,
		Error:   lastResult.Message,
		Raw:     rawJSON(lastResult),
	}, nil
}

// GetStatus fetches the parcel state and history, mapped to the canonical set.
func (c *Client) GetStatus(ctx context.Context, trackingNumber string, creds courier.Credentials) (*courier.StatusResult, error) {
	api := c.newAPI(creds)

	parcel, err := api.GetParcel(ctx, trackingNumber)
	if err != nil {
		c.logger.Error("Platform API error", zap.String("courier", c.name), zap.Error(err))
		return nil, err
	}

	result := &courier.StatusResult{
		TrackingNumber: trackingNumber,
		Status:         statusTable.Map(parcel.LastStatus),
	}
	if t, ok := parseDate(parcel.DateLastStatus); ok {
		result.LastUpdate = &t
	}

	// History is best-effort; the snapshot stands on its own.
	if hist, err := api.GetHistories(ctx, trackingNumber); err == nil {
		for _, h := range hist.Data {
			ev := courier.TrackingEvent{
				Description: h.Reason,
				Location:    joinLocation(h.CenterName, h.WilayaName),
				Status:      statusTable.Map(h.Status),
				RawStatus:   h.Status,
			}
			if t, ok := parseDate(h.DateStatus); ok {
				ev.Timestamp = t
			}
			result.Events = append(result.Events, ev)
		}
	}

	return result, nil
}

// VerifyWebhook checks the HMAC-SHA256 signature over the raw payload.
func (c *Client) VerifyWebhook(payload []byte, signature, secret string) bool {
	return courier.VerifyHMAC(secret, payload, signature)
}

// webhookPayload is the platform's status-update webhook body.
// Unrecognized fields are ignored.
type webhookPayload struct {
	Type       string `json:"type"`
	Tracking   string `json:"tracking"`
	Status     string `json:"status"`
	DateStatus string `json:"date_status"`
	CenterName string `json:"center_name"`
	Reason     string `json:"reason"`
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

	ev := &courier.WebhookEvent{
		TrackingNumber: p.Tracking,
		EventType:      p.Type,
		Status:         statusTable.Map(p.Status),
		RawStatus:      p.Status,
		Location:       p.CenterName,
		Description:    p.Reason,
	}
	if ev.EventType == "" {
		ev.EventType = "status_update"
	}
	if t, ok := parseDate(p.DateStatus); ok {
		ev.Timestamp = &t
	}
	return ev, nil
}

// CancelShipment deletes a parcel that has not been picked up.
func (c *Client) CancelShipment(ctx context.Context, trackingNumber string, creds courier.Credentials) (*courier.CancelResult, error) {
	api := c.newAPI(creds)

	resp, err := api.DeleteParcel(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	if !resp.Deleted {
		return &courier.CancelResult{Success: false, Error: resp.Message}, nil
	}
	return &courier.CancelResult{Success: true}, nil
}

// GetLabelPDF fetches the label document bytes for a parcel.
func (c *Client) GetLabelPDF(ctx context.Context, trackingNumber string, creds courier.Credentials) ([]byte, error) {
	return c.newAPI(creds).GetLabel(ctx, trackingNumber)
}

// ============================================================================
// Helpers
// ============================================================================

func parcelFromShipment(s *courier.Shipment, commune string) Parcel {
	return Parcel{
		OrderID:       s.Reference,
		Familyname:    s.RecipientName,
		ContactPhone:  s.RecipientPhone,
		Address:       s.Address,
		ToWilayaName:  s.Wilaya,
		ToCommuneName: commune,
		ProductList:   s.Description,
		Price:         s.CODAmount,
		Weight:        s.WeightKG,
		FreeShipping:  s.FreeShipping,
		IsStopDesk:    s.StopDesk,
		HasExchange:   s.Exchange,
	}
}

// communeCandidates builds the bounded, ordered retry list: the explicit
// commune, any caller-supplied fallbacks, then the configured default.
func communeCandidates(s *courier.Shipment, defaultCommune string) []string {
	candidates := make([]string, 0, len(s.CommuneFallbacks)+2)
	seen := make(map[string]bool)
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			candidates = append(candidates, c)
		}
	}
	add(s.Commune)
	for _, c := range s.CommuneFallbacks {
		add(c)
	}
	add(defaultCommune)
	if len(candidates) == 0 {
		candidates = append(candidates, "")
	}
	return candidates
}

func isCommuneError(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "commune")
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func joinLocation(parts ...string) string {
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}

func rawJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

var (
	_ courier.Service      = (*Client)(nil)
	_ courier.Canceller    = (*Client)(nil)
	_ courier.LabelFetcher = (*Client)(nil)
)
