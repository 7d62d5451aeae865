// Package maystro provides integration with the Maystro Delivery API.
//
// Maystro reports statuses as numeric codes and signs its webhooks with
// a timestamped scheme ("t=<unix>,v1=<hex>") rather than a bare HMAC
// over the body.
package maystro

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dzexpress/shipping/pkg/courier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const carrierName = "maystro"

const defaultBaseURL = "https://backend.maystro-delivery.com"

// signatureTolerance bounds how old a signed webhook timestamp may be.
const signatureTolerance = 5 * time.Minute

// statusCodes maps Maystro's numeric status codes to the canonical set.
var statusCodes = courier.MapTable{
	"4":  courier.StatusPending,        // in preparation
	"5":  courier.StatusAssigned,       // ready to ship
	"8":  courier.StatusPickedUp,       // picked up
	"9":  courier.StatusInTransit,      // at hub
	"10": courier.StatusInTransit,      // on the way
	"15": courier.StatusOutForDelivery, // delivery attempt
	"22": courier.StatusReadyForPickup, // at stop desk
	"31": courier.StatusDelivered,
	"41": courier.StatusFailed,
	"42": courier.StatusCancelled,
	"50": courier.StatusReturned,
}

// OrderRequest is an order creation request.
// POST /api/stores/orders/
type OrderRequest struct {
	ExternalOrderID string  `json:"external_order_id"`
	CustomerName    string  `json:"customer_name"`
	CustomerPhone   string  `json:"customer_phone"`
	DestinationText string  `json:"destination_text"`
	Wilaya          string  `json:"wilaya"`
	Commune         string  `json:"commune"`
	ProductPrice    float64 `json:"product_price"`
	ProductName     string  `json:"product_name,omitempty"`
	Note            string  `json:"note,omitempty"`
	IsExchange      bool    `json:"is_exchange"`
	IsStopDesk      bool    `json:"is_stopdesk"`
}

// OrderResponse is the creation outcome.
type OrderResponse struct {
	ID        string `json:"id"`
	DisplayID string `json:"display_id"`
	Status    int    `json:"status"`
	Message   string `json:"message,omitempty"`
}

// OrderDetail is the current state of an order.
// GET /api/stores/orders/{display_id}/
type OrderDetail struct {
	DisplayID  string `json:"display_id"`
	Status     int    `json:"status"`
	LastUpdate string `json:"last_update"`
	Wilaya     string `json:"wilaya"`
}

// APIError represents an error from the Maystro API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Config holds Maystro configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is the Maystro courier adapter.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *otelzap.Logger
	tracer     trace.Tracer

	// now is swappable so signature-tolerance tests control the clock.
	now func() time.Time
}

// New creates a new Maystro adapter.
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
		now:        time.Now,
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

// CreateShipment creates an order with Maystro.
func (c *Client) CreateShipment(ctx context.Context, shipment *courier.Shipment, creds courier.Credentials) (*courier.CreateResult, error) {
	c.logger.Info("Creating Maystro order", zap.String("reference", shipment.Reference))

	var resp OrderResponse
	status, err := c.doJSON(ctx, http.MethodPost, "/api/stores/orders/", creds, &OrderRequest{
		ExternalOrderID: shipment.Reference,
		CustomerName:    shipment.RecipientName,
		CustomerPhone:   shipment.RecipientPhone,
		DestinationText: shipment.Address,
		Wilaya:          shipment.Wilaya,
		Commune:         shipment.Commune,
		ProductPrice:    shipment.CODAmount,
		ProductName:     shipment.Description,
		IsExchange:      shipment.Exchange,
		IsStopDesk:      shipment.StopDesk,
	}, &resp)
	if err != nil {
		c.logger.Error("Maystro API error", zap.Error(err))
		return nil, err
	}

	if status == http.StatusUnprocessableEntity || resp.DisplayID == "" {
		msg := resp.Message
		if msg == "" {
			msg = "order rejected by Maystro"
		}
		return &courier.CreateResult{Success: false, Error: msg, Raw: rawJSON(resp)}, nil
	}

	return &courier.CreateResult{
		Success:        true,
		TrackingNumber: resp.DisplayID,
		ReferenceID:    shipment.Reference,
		Raw:            rawJSON(resp),
	}, nil
}

// GetStatus fetches the order state, mapped from the numeric code.
func (c *Client) GetStatus(ctx context.Context, trackingNumber string, creds courier.Credentials) (*courier.StatusResult, error) {
	var detail OrderDetail
	if _, err := c.doJSON(ctx, http.MethodGet, "/api/stores/orders/"+trackingNumber+"/", creds, nil, &detail); err != nil {
		c.logger.Error("Maystro API error", zap.Error(err))
		return nil, err
	}

	result := &courier.StatusResult{
		TrackingNumber: trackingNumber,
		Status:         statusCodes.Map(strconv.Itoa(detail.Status)),
		Location:       detail.Wilaya,
	}
	if t, err := time.Parse(time.RFC3339, detail.LastUpdate); err == nil {
		result.LastUpdate = &t
	}
	return result, nil
}

// VerifyWebhook checks Maystro's timestamped signature. The scheme is
// "t=<unix>,v1=<hex>" where the hex is HMAC-SHA256 over "<t>.<payload>".
// Timestamps outside the tolerance window are rejected to blunt replay.
func (c *Client) VerifyWebhook(payload []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}

	var ts, sig string
	for _, part := range strings.Split(signature, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return false
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return false
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	age := c.now().Sub(time.Unix(unix, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return false
	}

	signed := append([]byte(ts+"."), payload...)
	expected := courier.SignHMAC(secret, signed)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// SignWebhook produces a signature the way Maystro does, for tests and
// local webhook simulation.
func SignWebhook(secret string, payload []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	signed := append([]byte(ts+"."), payload...)
	return "t=" + ts + ",v1=" + courier.SignHMAC(secret, signed)
}

type webhookPayload struct {
	DisplayID string `json:"display_id"`
	Status    int    `json:"status"`
	UpdatedAt string `json:"updated_at"`
	Wilaya    string `json:"wilaya"`
	Note      string `json:"note"`
}

// ParseWebhookPayload normalizes a Maystro webhook body.
func (c *Client) ParseWebhookPayload(payload []byte) (*courier.WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if p.DisplayID == "" {
		return nil, fmt.Errorf("webhook payload missing tracking number")
	}

	raw := strconv.Itoa(p.Status)
	ev := &courier.WebhookEvent{
		TrackingNumber: p.DisplayID,
		EventType:      "status_update",
		Status:         statusCodes.Map(raw),
		RawStatus:      raw,
		Location:       p.Wilaya,
		Description:    p.Note,
	}
	if t, err := time.Parse(time.RFC3339, p.UpdatedAt); err == nil {
		ev.Timestamp = &t
	}
	return ev, nil
}

// doJSON issues a request with bearer auth and decodes the response.
// Returns the HTTP status so callers can distinguish field rejections.
func (c *Client) doJSON(ctx context.Context, method, path string, creds courier.Credentials, body, out interface{}) (int, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	req.Header.Set("User-Agent", "dzexpress-shipping/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
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
			return resp.StatusCode, &apiErr
		}
		return resp.StatusCode, &APIError{
			Code:    fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message: courier.BodySnippet(raw),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func rawJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

var _ courier.Service = (*Client)(nil)
