package zrexpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dzexpress/shipping/pkg/courier"
)

// currentAPIClient speaks the current ZR Express API generation.
// Credentials travel in headers.
type currentAPIClient struct {
	baseURL    string
	httpClient *http.Client
}

func newCurrentAPIClient(baseURL string, timeout time.Duration) *currentAPIClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &currentAPIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *currentAPIClient) ListTerritories(ctx context.Context, creds courier.Credentials) ([]Territory, error) {
	var result []Territory
	if err := doJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/api/v1/tarification", nil, &result, func(req *http.Request) {
		req.Header.Set("token", creds.APIKey)
		req.Header.Set("key", creds.APISecret)
	}); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *currentAPIClient) AddParcel(ctx context.Context, req *ParcelRequest, creds courier.Credentials) (*ParcelResponse, error) {
	var result ParcelResponse
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/v1/colis/add", req, &result, func(r *http.Request) {
		r.Header.Set("token", creds.APIKey)
		r.Header.Set("key", creds.APISecret)
	}); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *currentAPIClient) GetParcelStatus(ctx context.Context, tracking string, creds courier.Credentials) (*ParcelStatus, error) {
	var result ParcelStatus
	if err := doJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/api/v1/colis/"+tracking, nil, &result, func(r *http.Request) {
		r.Header.Set("token", creds.APIKey)
		r.Header.Set("key", creds.APISecret)
	}); err != nil {
		return nil, err
	}
	if result.Tracking == "" {
		result.Tracking = tracking
	}
	return &result, nil
}

var _ APIClient = (*currentAPIClient)(nil)

// legacyAPIClient speaks the legacy procuration API generation.
// Credentials travel inside the request body on every call.
type legacyAPIClient struct {
	baseURL    string
	httpClient *http.Client
}

func newLegacyAPIClient(baseURL string, timeout time.Duration) *legacyAPIClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &legacyAPIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// legacyEnvelope wraps any legacy request with body credentials.
type legacyEnvelope struct {
	Token string      `json:"Token"`
	Key   string      `json:"Clef"`
	Colis interface{} `json:"Colis,omitempty"`
}

func (c *legacyAPIClient) ListTerritories(ctx context.Context, creds courier.Credentials) ([]Territory, error) {
	var result []Territory
	body := legacyEnvelope{Token: creds.APIKey, Key: creds.APISecret}
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/tarification", body, &result, nil); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *legacyAPIClient) AddParcel(ctx context.Context, req *ParcelRequest, creds courier.Credentials) (*ParcelResponse, error) {
	var result ParcelResponse
	body := legacyEnvelope{Token: creds.APIKey, Key: creds.APISecret, Colis: []*ParcelRequest{req}}
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/coli/add", body, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *legacyAPIClient) GetParcelStatus(ctx context.Context, tracking string, creds courier.Credentials) (*ParcelStatus, error) {
	var result ParcelStatus
	body := struct {
		legacyEnvelope
		Tracking string `json:"Tracking"`
	}{legacyEnvelope{Token: creds.APIKey, Key: creds.APISecret}, tracking}
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/coli/lire", body, &result, nil); err != nil {
		return nil, err
	}
	if result.Tracking == "" {
		result.Tracking = tracking
	}
	return &result, nil
}

var _ APIClient = (*legacyAPIClient)(nil)

// doJSON issues a JSON request and decodes the response, falling back to
// a raw-text snippet for unparseable error bodies.
func doJSON(ctx context.Context, client *http.Client, method, url string, body, out interface{}, decorate func(*http.Request)) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "dzexpress-shipping/1.0")
	if decorate != nil {
		decorate(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
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
