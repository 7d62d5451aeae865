package noest

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

// httpAPIClient is the production implementation of APIClient.
type httpAPIClient struct {
	baseURL    string
	httpClient *http.Client
}

func newHTTPAPIClient(baseURL string, timeout time.Duration) *httpAPIClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &httpAPIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *httpAPIClient) CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	var result OrderResponse
	if err := c.post(ctx, "/api/public/create/order", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpAPIClient) ValidateOrder(ctx context.Context, req *AuthedRequest) (*ValidateResponse, error) {
	var result ValidateResponse
	if err := c.post(ctx, "/api/public/valid/order", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpAPIClient) GetTracking(ctx context.Context, req *AuthedRequest) (*TrackingResponse, error) {
	var result TrackingResponse
	if err := c.post(ctx, "/api/public/get/trackings/info", req, &result); err != nil {
		return nil, err
	}
	if result.Tracking == "" {
		result.Tracking = req.Tracking
	}
	return &result, nil
}

func (c *httpAPIClient) DeleteOrder(ctx context.Context, req *AuthedRequest) (*DeleteResponse, error) {
	var result DeleteResponse
	if err := c.post(ctx, "/api/public/delete/order", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// post issues a JSON POST and decodes into out. Noest keeps every
// operation behind POST with body credentials.
func (c *httpAPIClient) post(ctx context.Context, path string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "dzexpress-shipping/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusUnprocessableEntity {
		return c.parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *httpAPIClient) parseError(resp *http.Response) error {
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

var _ APIClient = (*httpAPIClient)(nil)
