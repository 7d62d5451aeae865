package noest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/dzexpress/shipping/pkg/courier"
	"github.com/dzexpress/shipping/pkg/courier/noest"
)

// fakeAPI implements noest.APIClient with overridable behavior.
type fakeAPI struct {
	createCalls   int
	validateCalls int

	onCreate   func(req *noest.OrderRequest) (*noest.OrderResponse, error)
	onValidate func(req *noest.AuthedRequest) (*noest.ValidateResponse, error)
	onTracking func(req *noest.AuthedRequest) (*noest.TrackingResponse, error)
	onDelete   func(req *noest.AuthedRequest) (*noest.DeleteResponse, error)
}

func (f *fakeAPI) CreateOrder(_ context.Context, req *noest.OrderRequest) (*noest.OrderResponse, error) {
	f.createCalls++
	if f.onCreate != nil {
		return f.onCreate(req)
	}
	return &noest.OrderResponse{Success: true, Tracking: "NST-100"}, nil
}

func (f *fakeAPI) ValidateOrder(_ context.Context, req *noest.AuthedRequest) (*noest.ValidateResponse, error) {
	f.validateCalls++
	if f.onValidate != nil {
		return f.onValidate(req)
	}
	return &noest.ValidateResponse{Success: true}, nil
}

func (f *fakeAPI) GetTracking(_ context.Context, req *noest.AuthedRequest) (*noest.TrackingResponse, error) {
	if f.onTracking != nil {
		return f.onTracking(req)
	}
	return &noest.TrackingResponse{
		Tracking:   req.Tracking,
		LastStatus: "Expédié",
		Activity: []noest.Activity{
			{Event: "Validated", Date: "2024-04-01 09:00:00"},
			{Event: "Expédié", Date: "2024-04-02 11:30:00"},
		},
	}, nil
}

func (f *fakeAPI) DeleteOrder(_ context.Context, req *noest.AuthedRequest) (*noest.DeleteResponse, error) {
	if f.onDelete != nil {
		return f.onDelete(req)
	}
	return &noest.DeleteResponse{Success: true}, nil
}

func newTestClient(api *fakeAPI) *noest.Client {
	logger := otelzap.New(zap.NewNop())
	return noest.NewWithAPIClient(noest.Config{}, api, logger, nil)
}

func testCreds() courier.Credentials {
	return courier.Credentials{APIKey: "tok-123", APISecret: "guid-456"}
}

func TestClient_CreateShipment_UploadsThenValidates(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(api)

	resp, err := client.CreateShipment(context.Background(), &courier.Shipment{
		Reference:      "ORD-3003",
		RecipientName:  "Karim",
		RecipientPhone: "0770112233",
		Wilaya:         "Constantine",
		Commune:        "El Khroub",
		CODAmount:      2000,
	}, testCreds())

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "NST-100", resp.TrackingNumber)
	assert.Equal(t, 1, api.createCalls)
	assert.Equal(t, 1, api.validateCalls)
}

func TestClient_CreateShipment_CredentialsTravelInBody(t *testing.T) {
	api := &fakeAPI{}
	api.onCreate = func(req *noest.OrderRequest) (*noest.OrderResponse, error) {
		assert.Equal(t, "tok-123", req.APIToken)
		assert.Equal(t, "guid-456", req.UserGUID)
		return &noest.OrderResponse{Success: true, Tracking: "NST-1"}, nil
	}
	client := newTestClient(api)

	_, err := client.CreateShipment(context.Background(), &courier.Shipment{Reference: "R"}, testCreds())
	require.NoError(t, err)
}

func TestClient_CreateShipment_ValidationFailureIsFailure(t *testing.T) {
	api := &fakeAPI{}
	api.onValidate = func(req *noest.AuthedRequest) (*noest.ValidateResponse, error) {
		return &noest.ValidateResponse{Success: false, Message: "solde insuffisant"}, nil
	}
	client := newTestClient(api)

	resp, err := client.CreateShipment(context.Background(), &courier.Shipment{Reference: "R"}, testCreds())

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "validation failed")
	assert.Contains(t, resp.Error, "solde insuffisant")
}

func TestClient_CreateShipment_UploadRejectionSkipsValidation(t *testing.T) {
	api := &fakeAPI{}
	api.onCreate = func(req *noest.OrderRequest) (*noest.OrderResponse, error) {
		return &noest.OrderResponse{Success: false, Message: "wilaya inconnue"}, nil
	}
	client := newTestClient(api)

	resp, err := client.CreateShipment(context.Background(), &courier.Shipment{Reference: "R"}, testCreds())

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, 0, api.validateCalls)
}

func TestClient_GetStatus(t *testing.T) {
	client := newTestClient(&fakeAPI{})

	resp, err := client.GetStatus(context.Background(), "NST-100", testCreds())

	require.NoError(t, err)
	assert.Equal(t, courier.StatusInTransit, resp.Status) // "Expédié"
	require.Len(t, resp.Events, 2)
	assert.Equal(t, courier.StatusAssigned, resp.Events[0].Status) // "Validated", case-insensitive
}

func TestClient_GetStatus_UnknownDefaultsToPending(t *testing.T) {
	api := &fakeAPI{}
	api.onTracking = func(req *noest.AuthedRequest) (*noest.TrackingResponse, error) {
		return &noest.TrackingResponse{Tracking: req.Tracking, LastStatus: "??"}, nil
	}
	client := newTestClient(api)

	resp, err := client.GetStatus(context.Background(), "NST-9", testCreds())

	require.NoError(t, err)
	assert.Equal(t, courier.StatusPending, resp.Status)
}

func TestClient_ParseWebhookPayload(t *testing.T) {
	client := newTestClient(&fakeAPI{})

	ev, err := client.ParseWebhookPayload([]byte(`{"tracking":"NST-5","status":"Livré","date":"2024-02-01 17:00:00"}`))

	require.NoError(t, err)
	assert.Equal(t, "NST-5", ev.TrackingNumber)
	assert.Equal(t, courier.StatusDelivered, ev.Status)
}

func TestClient_CancelShipment(t *testing.T) {
	client := newTestClient(&fakeAPI{})

	resp, err := client.CancelShipment(context.Background(), "NST-100", testCreds())

	require.NoError(t, err)
	assert.True(t, resp.Success)
}
