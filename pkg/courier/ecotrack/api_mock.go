package ecotrack

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors bool

	OnCreateOrder     func(ctx context.Context, req *OrderRequest) (*OrderResponse, error)
	OnGetTrackingInfo func(ctx context.Context, tracking string) (*TrackingInfoResponse, error)
	OnDeleteOrder     func(ctx context.Context, tracking string) (*DeleteOrderResponse, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// CreateOrder creates a mock order.
func (m *MockAPIClient) CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	if m.OnCreateOrder != nil {
		return m.OnCreateOrder(ctx, req)
	}

	tracking := "eco-" + uuid.New().String()[:8]
	return &OrderResponse{
		Success:  true,
		Tracking: tracking,
		Lien:     "https://app.ecotrack.dz/label/" + tracking,
	}, nil
}

// GetTrackingInfo returns a mock activity feed.
func (m *MockAPIClient) GetTrackingInfo(ctx context.Context, tracking string) (*TrackingInfoResponse, error) {
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	if m.OnGetTrackingInfo != nil {
		return m.OnGetTrackingInfo(ctx, tracking)
	}

	now := time.Now()
	return &TrackingInfoResponse{
		Tracking: tracking,
		Activity: []Activity{
			{Event: "Ramassé", Date: now.Add(-24 * time.Hour).Format("2006-01-02 15:04:05")},
			{Event: "Sorti en livraison", Date: now.Add(-2 * time.Hour).Format("2006-01-02 15:04:05"), Causer: "Livreur 12"},
		},
	}, nil
}

// DeleteOrder deletes a mock order.
func (m *MockAPIClient) DeleteOrder(ctx context.Context, tracking string) (*DeleteOrderResponse, error) {
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	if m.OnDeleteOrder != nil {
		return m.OnDeleteOrder(ctx, tracking)
	}

	return &DeleteOrderResponse{Success: true}, nil
}

var _ APIClient = (*MockAPIClient)(nil)
