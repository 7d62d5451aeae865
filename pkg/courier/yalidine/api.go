package yalidine

import (
	"context"
)

// APIClient defines the interface for Yalidine-platform API operations.
// This abstraction allows for mock implementations during testing and
// real implementations in production.
type APIClient interface {
	// CreateParcels submits a batch of parcels. The response is keyed by
	// the caller's order reference.
	CreateParcels(ctx context.Context, parcels []Parcel) (CreateParcelsResponse, error)

	// GetParcel fetches the current state of a parcel.
	GetParcel(ctx context.Context, tracking string) (*ParcelDetail, error)

	// GetHistories fetches the tracking event history for a parcel.
	GetHistories(ctx context.Context, tracking string) (*HistoriesResponse, error)

	// DeleteParcel cancels a parcel that has not been picked up yet.
	DeleteParcel(ctx context.Context, tracking string) (*DeleteResponse, error)

	// GetLabel fetches the label document bytes for a parcel.
	GetLabel(ctx context.Context, tracking string) ([]byte, error)
}

// ============================================================================
// API Request/Response Types (Yalidine platform v1 structure)
// ============================================================================

// Parcel represents a parcel in a create request.
// POST /v1/parcels (array body)
type Parcel struct {
	OrderID       string  `json:"order_id"`
	Firstname     string  `json:"firstname,omitempty"`
	Familyname    string  `json:"familyname"`
	ContactPhone  string  `json:"contact_phone"`
	Address       string  `json:"address"`
	FromWilayaName string `json:"from_wilaya_name,omitempty"`
	ToWilayaName  string  `json:"to_wilaya_name"`
	ToCommuneName string  `json:"to_commune_name"`
	ProductList   string  `json:"product_list"`
	Price         float64 `json:"price"`
	Weight        float64 `json:"weight,omitempty"`
	FreeShipping  bool    `json:"freeshipping"`
	IsStopDesk    bool    `json:"is_stopdesk"`
	DoInsurance   bool    `json:"do_insurance,omitempty"`
	HasExchange   bool    `json:"has_exchange"`
}

// CreateParcelsResponse is keyed by order_id.
type CreateParcelsResponse map[string]ParcelResult

// ParcelResult is the per-parcel outcome of a create call.
type ParcelResult struct {
	Success  bool   `json:"success"`
	Tracking string `json:"tracking,omitempty"`
	ImportID int    `json:"import_id,omitempty"`
	Label    string `json:"label,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ParcelDetail is the state of a parcel.
// GET /v1/parcels/{tracking}
type ParcelDetail struct {
	Tracking       string  `json:"tracking"`
	OrderID        string  `json:"order_id"`
	LastStatus     string  `json:"last_status"`
	DateLastStatus string  `json:"date_last_status"`
	ToWilayaName   string  `json:"to_wilaya_name"`
	ToCommuneName  string  `json:"to_commune_name"`
	Price          float64 `json:"price"`
	Label          string  `json:"label,omitempty"`
}

// HistoriesResponse is the tracking history of a parcel.
// GET /v1/histories/{tracking}
type HistoriesResponse struct {
	HasMore   bool      `json:"has_more"`
	TotalData int       `json:"total_data"`
	Data      []History `json:"data"`
}

// History is a single tracking history entry.
type History struct {
	DateStatus  string `json:"date_status"`
	Tracking    string `json:"tracking"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	CenterName  string `json:"center_name,omitempty"`
	WilayaName  string `json:"wilaya_name,omitempty"`
	CommuneName string `json:"commune_name,omitempty"`
}

// DeleteResponse is the outcome of a parcel deletion.
// DELETE /v1/parcels/{tracking}
type DeleteResponse struct {
	Tracking string `json:"tracking"`
	Deleted  bool   `json:"deleted"`
	Message  string `json:"message,omitempty"`
}

// APIError represents an error from the Yalidine platform API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}
