// Package algerieposte provides tracking integration with Algérie Poste EMS.
//
// There is no public API for creating shipments, so the adapter is
// tracking-only: CreateShipment reports an unsupported operation and
// GetStatus scrapes the EMS tracking endpoint.
package algerieposte

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dzexpress/shipping/pkg/courier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const carrierName = "algerie-poste"

const defaultBaseURL = "https://www.ems.dz"

var statusTable = courier.MapTable{
	"posted":               courier.StatusAssigned,
	"départ bureau":        courier.StatusInTransit,
	"arrivée bureau":       courier.StatusInTransit,
	"en cours de livraison": courier.StatusOutForDelivery,
	"mis en instance":      courier.StatusReadyForPickup,
	"livré":                courier.StatusDelivered,
	"non livré":            courier.StatusFailed,
	"retour expéditeur":    courier.StatusReturned,
}

// TrackResponse is the EMS tracking response.
// GET /fr/suivre/{tracking}
type TrackResponse struct {
	Tracking string       `json:"item_code"`
	Events   []TrackEvent `json:"events"`
	Message  string       `json:"message,omitempty"`
}

// TrackEvent is one scan in the EMS history.
type TrackEvent struct {
	Date   string `json:"date"`
	Event  string `json:"event"`
	Office string `json:"office"`
}

// Config holds Algérie Poste configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is the Algérie Poste EMS adapter.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *otelzap.Logger
	tracer     trace.Tracer
}

// New creates a new Algérie Poste adapter.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		tracer:     tracer,
	}
}

// NewWithHTTPClient creates an adapter with a custom HTTP client, for tests.
func NewWithHTTPClient(cfg Config, httpClient *http.Client, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	c := New(cfg, logger, tracer)
	c.httpClient = httpClient
	return c
}

// Name returns the courier name.
func (c *Client) Name() string {
	return carrierName
}

// CreateShipment always reports failure because EMS has no creation API.
// Parcels are dropped off at a post office and tracked afterwards.
func (c *Client) CreateShipment(ctx context.Context, shipment *courier.Shipment, creds courier.Credentials) (*courier.CreateResult, error) {
	return &courier.CreateResult{
		Success: false,
		Error:   "algerie-poste does not support API shipment creation; drop the parcel at a post office and record the EMS tracking number",
	}, nil
}

// GetStatus fetches the EMS scan history for a tracking number.
func (c *Client) GetStatus(ctx context.Context, trackingNumber string, creds courier.Credentials) (*courier.StatusResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/fr/suivre/"+trackingNumber, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "dzexpress-shipping/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("EMS tracking request failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &courier.StatusResult{
			TrackingNumber: trackingNumber,
			Status:         courier.StatusPending,
			Error:          "tracking number not found",
		}, nil
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("EMS tracking returned HTTP %d: %s", resp.StatusCode, courier.BodySnippet(raw))
	}

	var tr TrackResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode tracking response: %w", err)
	}

	result := &courier.StatusResult{
		TrackingNumber: trackingNumber,
		Status:         courier.StatusPending,
	}
	for _, e := range tr.Events {
		ev := courier.TrackingEvent{
			Description: e.Event,
			Location:    e.Office,
			Status:      statusTable.Map(e.Event),
			RawStatus:   e.Event,
		}
		if t, ok := parseDate(e.Date); ok {
			ev.Timestamp = t
		}
		result.Events = append(result.Events, ev)
	}
	if n := len(result.Events); n > 0 {
		last := result.Events[n-1]
		result.Status = last.Status
		result.Location = last.Location
		if !last.Timestamp.IsZero() {
			t := last.Timestamp
			result.LastUpdate = &t
		}
	}
	return result, nil
}

// VerifyWebhook always fails; EMS does not deliver webhooks.
func (c *Client) VerifyWebhook(payload []byte, signature, secret string) bool {
	return false
}

// ParseWebhookPayload always fails; EMS does not deliver webhooks.
func (c *Client) ParseWebhookPayload(payload []byte) (*courier.WebhookEvent, error) {
	return nil, fmt.Errorf("%s: %w", carrierName, courier.ErrNotSupported)
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{"02/01/2006 15:04", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var _ courier.Service = (*Client)(nil)
