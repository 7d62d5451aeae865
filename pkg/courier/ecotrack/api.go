package ecotrack

import (
	"context"
)

// APIClient defines the interface for Ecotrack-platform API operations.
type APIClient interface {
	// CreateOrder creates a single delivery order.
	CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error)

	// GetTrackingInfo fetches the activity feed for a tracking number.
	GetTrackingInfo(ctx context.Context, tracking string) (*TrackingInfoResponse, error)

	// DeleteOrder cancels an order that has not been dispatched.
	DeleteOrder(ctx context.Context, tracking string) (*DeleteOrderResponse, error)
}

// ============================================================================
// API Request/Response Types (Ecotrack platform v1 structure)
// ============================================================================

// OrderRequest represents an order creation request.
// POST /api/v1/create/order
type OrderRequest struct {
	Reference    string  `json:"reference"`
	NomClient    string  `json:"nom_client"`
	Telephone    string  `json:"telephone"`
	Adresse      string  `json:"adresse"`
	CodeWilaya   string  `json:"code_wilaya,omitempty"`
	Wilaya       string  `json:"wilaya,omitempty"`
	Commune      string  `json:"commune"`
	Montant      float64 `json:"montant"`
	Produit      string  `json:"produit,omitempty"`
	Remarque     string  `json:"remarque,omitempty"`
	Poids        float64 `json:"poids,omitempty"`
	StopDesk     int     `json:"stop_desk"`
	FragileFlag  int     `json:"fragile,omitempty"`
	ExchangeFlag int     `json:"echange,omitempty"`
}

// OrderResponse is the outcome of an order creation.
type OrderResponse struct {
	Success  bool   `json:"success"`
	Tracking string `json:"tracking,omitempty"`
	Lien     string `json:"lien,omitempty"` // hosted label link
	Message  string `json:"message,omitempty"`
}

// TrackingInfoResponse is the activity feed of an order.
// GET /api/v1/get/tracking/info?tracking={tracking}
type TrackingInfoResponse struct {
	Tracking string     `json:"tracking"`
	Activity []Activity `json:"activity"`
}

// Activity is a single tracking activity entry.
type Activity struct {
	Event   string `json:"event"`
	Date    string `json:"date"`
	Content string `json:"content,omitempty"`
	Causer  string `json:"causer,omitempty"`
}

// DeleteOrderResponse is the outcome of an order deletion.
// POST /api/v1/delete/order
type DeleteOrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// APIError represents an error from the Ecotrack platform API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}
