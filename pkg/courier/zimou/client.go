// Package zimou provides integration with the Zimou Express API.
package zimou

import (
	"bytes"
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

const carrierName = "zimou-express"

const defaultBaseURL = "https://zimou.express"

var statusTable = courier.MapTable{
	"en préparation":     courier.StatusPending,
	"confirmé":           courier.StatusAssigned,
	"ramassé":            courier.StatusPickedUp,
	"expédié":            courier.StatusInTransit,
	"au centre":          courier.StatusInTransit,
	"en stop desk":       courier.StatusReadyForPickup,
	"sorti en livraison": courier.StatusOutForDelivery,
	"livré":              courier.StatusDelivered,
	"echoué":             courier.StatusFailed,
	"annulé":             courier.StatusCancelled,
	"retourné":           courier.StatusReturned,
}

// ParcelRequest is a parcel creation request.
// POST /api/v1/parcels
type ParcelRequest struct {
	Reference string  `json:"reference"`
	FullName  string  `json:"full_name"`
	Phone     string  `json:"phone"`
	Address   string  `json:"address"`
	Wilaya    string  `json:"wilaya"`
	Commune   string  `json:"commune"`
	Price     float64 `json:"price"`
	Product   string  `json:"product,omitempty"`
	Weight    float64 `json:"weight,omitempty"`
	StopDesk  bool    `json:"stop_desk"`
}

// ParcelResponse is the creation outcome.
type ParcelResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`
	Data    struct {
		Tracking string `json:"tracking"`
	} `json:"data"`
}

// StatusesResponse is the tracking history feed.
// GET /api/v1/parcels/{tracking}/statuses
type StatusesResponse struct {
	Data []StatusEntry `json:"data"`
}

// StatusEntry is one history entry.
type StatusEntry struct {
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	Center    string `json:"center,omitempty"`
}

// APIError represents an error from the Zimou API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Config holds Zimou Express configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is the Zimou Express courier adapter.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *otelzap.Logger
	tracer     trace.Tracer
}

// New creates a new Zimou Express adapter.
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

// CreateShipment creates a parcel with Zimou Express.
func (c *Client) CreateShipment(ctx context.Context, shipment *courier.Shipment, creds courier.Credentials) (*courier.CreateResult, error) {
	c.logger.Info("Creating Zimou parcel", zap.String("reference", shipment.Reference))

	var resp ParcelResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/parcels", creds, &ParcelRequest{
		Reference: shipment.Reference,
		FullName:  shipment.RecipientName,
		Phone:     shipment.RecipientPhone,
		Address:   shipment.Address,
		Wilaya:    shipment.Wilaya,
		Commune:   shipment.Commune,
		Price:     shipment.CODAmount,
		Product:   shipment.Description,
		Weight:    shipment.WeightKG,
		StopDesk:  shipment.StopDesk,
	}, &resp); err != nil {
		c.logger.Error("Zimou API error", zap.Error(err))
		return nil, err
	}

	if !resp.Status {
		return &courier.CreateResult{Success: false, Error: resp.Message, Raw: rawJSON(resp)}, nil
	}

	return &courier.CreateResult{
		Success:        true,
		TrackingNumber: resp.Data.Tracking,
		ReferenceID:    shipment.Reference,
		Raw:            rawJSON(resp),
	}, nil
}

// GetStatus fetches the history feed; the latest entry wins.
func (c *Client) GetStatus(ctx context.Context, trackingNumber string, creds courier.Credentials) (*courier.StatusResult, error) {
	var resp StatusesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/parcels/"+trackingNumber+"/statuses", creds, nil, &resp); err != nil {
		c.logger.Error("Zimou API error", zap.Error(err))
		return nil, err
	}

	result := &courier.StatusResult{
		TrackingNumber: trackingNumber,
		Status:         courier.StatusPending,
	}
	for _, e := range resp.Data {
		ev := courier.TrackingEvent{
			Location:  e.Center,
			Status:    statusTable.Map(e.Status),
			RawStatus: e.Status,
		}
		if t, ok := parseDate(e.CreatedAt); ok {
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

// VerifyWebhook checks the HMAC-SHA256 signature over the raw payload.
func (c *Client) VerifyWebhook(payload []byte, signature, secret string) bool {
	return courier.VerifyHMAC(secret, payload, signature)
}

type webhookPayload struct {
	Tracking  string `json:"tracking"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	Center    string `json:"center"`
}

// ParseWebhookPayload normalizes a Zimou webhook body.
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
		Location:       p.Center,
	}
	if t, ok := parseDate(p.CreatedAt); ok {
		ev.Timestamp = &t
	}
	return ev, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, creds courier.Credentials, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", creds.APIKey)
	req.Header.Set("User-Agent", "dzexpress-shipping/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusUnprocessableEntity {
		raw, _ := io.ReadAll(resp.Body)

		var apiErr APIError
		if jsonErr := json.Unmarshal(raw, &apiErr); jsonErr == nil && apiErr.Message != "" {
			if apiErr.Code == "" {
				apiErr.Code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
			}
			return &apiErr
		}
		return &APIError{
			Code:    fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message: courier.BodySnippet(raw),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
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

var _ courier.Service = (*Client)(nil)
