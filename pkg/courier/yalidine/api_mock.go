package yalidine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors bool

	OnCreateParcels func(ctx context.Context, parcels []Parcel) (CreateParcelsResponse, error)
	OnGetParcel     func(ctx context.Context, tracking string) (*ParcelDetail, error)
	OnGetHistories  func(ctx context.Context, tracking string) (*HistoriesResponse, error)
	OnDeleteParcel  func(ctx context.Context, tracking string) (*DeleteResponse, error)
	OnGetLabel      func(ctx context.Context, tracking string) ([]byte, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// CreateParcels returns a mock success per submitted parcel.
func (m *MockAPIClient) CreateParcels(ctx context.Context, parcels []Parcel) (CreateParcelsResponse, error) {
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	if m.OnCreateParcels != nil {
		return m.OnCreateParcels(ctx, parcels)
	}

	result := make(CreateParcelsResponse, len(parcels))
	for _, p := range parcels {
		tracking := "yal-" + uuid.New().String()[:8]
		result[p.OrderID] = ParcelResult{
			Success:  true,
			Tracking: tracking,
			ImportID: 1,
			Label:    fmt.Sprintf("https://yalidine.app/label/%s.pdf", tracking),
		}
	}
	return result, nil
}

// GetParcel returns a mock parcel in transit.
func (m *MockAPIClient) GetParcel(ctx context.Context, tracking string) (*ParcelDetail, error) {
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	if m.OnGetParcel != nil {
		return m.OnGetParcel(ctx, tracking)
	}

	return &ParcelDetail{
		Tracking:       tracking,
		LastStatus:     "Vers Wilaya",
		DateLastStatus: time.Now().Format("2006-01-02 15:04"),
		ToWilayaName:   "Oran",
		ToCommuneName:  "Bir El Djir",
	}, nil
}

// GetHistories returns a mock pickup + transit history.
func (m *MockAPIClient) GetHistories(ctx context.Context, tracking string) (*HistoriesResponse, error) {
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	if m.OnGetHistories != nil {
		return m.OnGetHistories(ctx, tracking)
	}

	now := time.Now()
	return &HistoriesResponse{
		TotalData: 2,
		Data: []History{
			{
				DateStatus: now.Add(-36 * time.Hour).Format("2006-01-02 15:04"),
				Tracking:   tracking,
				Status:     "Ramassé",
				CenterName: "Agence Alger Centre",
				WilayaName: "Alger",
			},
			{
				DateStatus: now.Add(-12 * time.Hour).Format("2006-01-02 15:04"),
				Tracking:   tracking,
				Status:     "Vers Wilaya",
				WilayaName: "Oran",
			},
		},
	}, nil
}

// DeleteParcel returns a mock successful deletion.
func (m *MockAPIClient) DeleteParcel(ctx context.Context, tracking string) (*DeleteResponse, error) {
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	if m.OnDeleteParcel != nil {
		return m.OnDeleteParcel(ctx, tracking)
	}

	return &DeleteResponse{Tracking: tracking, Deleted: true}, nil
}

// GetLabel returns mock PDF bytes.
func (m *MockAPIClient) GetLabel(ctx context.Context, tracking string) ([]byte, error) {
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	if m.OnGetLabel != nil {
		return m.OnGetLabel(ctx, tracking)
	}

	return []byte("%PDF-1.4 mock label " + tracking), nil
}

var _ APIClient = (*MockAPIClient)(nil)
