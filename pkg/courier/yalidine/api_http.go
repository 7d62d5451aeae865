package yalidine

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

// HTTPAPIClient is the production implementation of APIClient using HTTP.
// The same wire protocol serves every Yalidine-platform host.
type HTTPAPIClient struct {
	baseURL    string
	apiID      string
	apiToken   string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL  string
	APIID    string
	APIToken string
	Timeout  time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &HTTPAPIClient{
		baseURL:  cfg.BaseURL,
		apiID:    cfg.APIID,
		apiToken: cfg.APIToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateParcels submits parcels to the platform.
// POST /v1/parcels with an array body; the response maps order_id to result.
func (c *HTTPAPIClient) CreateParcels(ctx context.Context, parcels []Parcel) (CreateParcelsResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/parcels", parcels)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.parseError(resp)
	}

	var result CreateParcelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode create parcels response: %w", err)
	}
	return result, nil
}

// GetParcel fetches parcel state.
// GET /v1/parcels/{tracking}
func (c *HTTPAPIClient) GetParcel(ctx context.Context, tracking string) (*ParcelDetail, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/parcels/"+tracking, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result ParcelDetail
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode parcel response: %w", err)
	}
	return &result, nil
}

// GetHistories fetches the event history for a parcel.
// GET /v1/histories/{tracking}
func (c *HTTPAPIClient) GetHistories(ctx context.Context, tracking string) (*HistoriesResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/histories/"+tracking, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result HistoriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode histories response: %w", err)
	}
	return &result, nil
}

// DeleteParcel cancels a parcel.
// DELETE /v1/parcels/{tracking}
func (c *HTTPAPIClient) DeleteParcel(ctx context.Context, tracking string) (*DeleteResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/v1/parcels/"+tracking, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return nil, c.parseError(resp)
	}

	if resp.StatusCode == http.StatusNoContent {
		return &DeleteResponse{Tracking: tracking, Deleted: true}, nil
	}

	var result DeleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// Decode failures with an OK status still count as deleted.
		return &DeleteResponse{Tracking: tracking, Deleted: true}, nil
	}
	return &result, nil
}

// GetLabel fetches label bytes.
// GET /v1/parcels/{tracking}/label
func (c *HTTPAPIClient) GetLabel(ctx context.Context, tracking string) ([]byte, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/parcels/"+tracking+"/label", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	return io.ReadAll(resp.Body)
}

// doRequest performs an HTTP request with proper headers and authentication.
func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-ID", c.apiID)
	req.Header.Set("X-API-TOKEN", c.apiToken)
	req.Header.Set("User-Agent", "dzexpress-shipping/1.0")

	return c.httpClient.Do(req)
}

// parseError extracts error information from an HTTP response. Platform
// hosts sometimes return HTML error pages or empty bodies, so anything
// unparseable falls back to a raw-text snippet.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		if apiErr.Code == "" {
			apiErr.Code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
		}
		return &apiErr
	}

	return &APIError{
		Code:    fmt.Sprintf("HTTP_%d", resp.StatusCode),
		Message: courier.BodySnippet(body),
	}
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
