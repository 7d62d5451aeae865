package yalidine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/dzexpress/shipping/pkg/courier"
	"github.com/dzexpress/shipping/pkg/courier/yalidine"
)

func newTestClient(mockClient *yalidine.MockAPIClient) *yalidine.Client {
	return newNamedTestClient("", mockClient)
}

func newNamedTestClient(name string, mockClient *yalidine.MockAPIClient) *yalidine.Client {
	logger := otelzap.New(zap.NewNop())
	return yalidine.NewWithAPIClient(
		name,
		yalidine.Config{DefaultCommune: "Alger Centre"},
		mockClient,
		logger,
		nil,
	)
}

func testShipment() *courier.Shipment {
	return &courier.Shipment{
		Reference:      "ORD-1001",
		RecipientName:  "Amine Benali",
		RecipientPhone: "0550123456",
		Address:        "Cité 200 logements, Bt 4",
		Wilaya:         "Oran",
		Commune:        "Bir El Djir",
		WeightKG:       1.5,
		CODAmount:      3200,
		Description:    "Chaussures x1",
	}
}

func TestClient_CreateShipment_Success(t *testing.T) {
	mockAPI := yalidine.NewMockAPIClient()
	client := newTestClient(mockAPI)

	resp, err := client.CreateShipment(context.Background(), testShipment(), courier.Credentials{})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.TrackingNumber)
	assert.NotEmpty(t, resp.LabelURL)
}

func TestClient_GuepexVariant(t *testing.T) {
	mockAPI := yalidine.NewMockAPIClient()
	client := newNamedTestClient("guepex", mockAPI)

	assert.Equal(t, "guepex", client.Name())

	resp, err := client.CreateShipment(context.Background(), testShipment(), courier.Credentials{})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.TrackingNumber)
}

func TestClient_CreateShipment_ProviderRejection(t *testing.T) {
	mockAPI := yalidine.NewMockAPIClient()
	mockAPI.OnCreateParcels = func(ctx context.Context, parcels []yalidine.Parcel) (yalidine.CreateParcelsResponse, error) {
		return yalidine.CreateParcelsResponse{
			parcels[0].OrderID: {Success: false, Message: "Compte inactif"},
		}, nil
	}

	client := newTestClient(mockAPI)

	resp, err := client.CreateShipment(context.Background(), testShipment(), courier.Credentials{})

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Compte inactif", resp.Error)
}

func TestClient_CreateShipment_CommuneFallback(t *testing.T) {
	mockAPI := yalidine.NewMockAPIClient()

	var attempts []string
	mockAPI.OnCreateParcels = func(ctx context.Context, parcels []yalidine.Parcel) (yalidine.CreateParcelsResponse, error) {
		commune := parcels[0].ToCommuneName
		attempts = append(attempts, commune)
		if commune != "Alger Centre" {
			return yalidine.CreateParcelsResponse{
				parcels[0].OrderID: {Success: false, Message: "Commune inconnue: " + commune},
			}, nil
		}
		return yalidine.CreateParcelsResponse{
			parcels[0].OrderID: {Success: true, Tracking: "yal-fb-1"},
		}, nil
	}

	client := newTestClient(mockAPI)

	shipment := testShipment()
	shipment.Commune = "Bir Eldjir"
	shipment.CommuneFallbacks = []string{"Bir El Djir 31"}

	resp, err := client.CreateShipment(context.Background(), shipment, courier.Credentials{})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "yal-fb-1", resp.TrackingNumber)
	// Explicit candidate, caller fallback, configured default, in order.
	assert.Equal(t, []string{"Bir Eldjir", "Bir El Djir 31", "Alger Centre"}, attempts)
}

func TestClient_CreateShipment_NonCommuneErrorDoesNotRetry(t *testing.T) {
	mockAPI := yalidine.NewMockAPIClient()

	calls := 0
	mockAPI.OnCreateParcels = func(ctx context.Context, parcels []yalidine.Parcel) (yalidine.CreateParcelsResponse, error) {
		calls++
		return yalidine.CreateParcelsResponse{
			parcels[0].OrderID: {Success: false, Message: "Numéro de téléphone invalide"},
		}, nil
	}

	client := newTestClient(mockAPI)

	resp, err := client.CreateShipment(context.Background(), testShipment(), courier.Credentials{})

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, 1, calls)
}

func TestClient_GetStatus_MapsFrenchVocabulary(t *testing.T) {
	mockAPI := yalidine.NewMockAPIClient()
	client := newTestClient(mockAPI)

	resp, err := client.GetStatus(context.Background(), "yal-123", courier.Credentials{})

	require.NoError(t, err)
	assert.Equal(t, "yal-123", resp.TrackingNumber)
	assert.Equal(t, courier.StatusInTransit, resp.Status) // "Vers Wilaya"
	require.Len(t, resp.Events, 2)
	assert.Equal(t, courier.StatusPickedUp, resp.Events[0].Status) // "Ramassé"
}

func TestClient_GetStatus_UnknownStatusDefaultsToPending(t *testing.T) {
	mockAPI := yalidine.NewMockAPIClient()
	mockAPI.OnGetParcel = func(ctx context.Context, tracking string) (*yalidine.ParcelDetail, error) {
		return &yalidine.ParcelDetail{Tracking: tracking, LastStatus: "Statut Mystère 2024"}, nil
	}

	client := newTestClient(mockAPI)

	resp, err := client.GetStatus(context.Background(), "yal-123", courier.Credentials{})

	require.NoError(t, err)
	assert.Equal(t, courier.StatusPending, resp.Status)
}

func TestClient_VerifyWebhook(t *testing.T) {
	client := newTestClient(yalidine.NewMockAPIClient())

	payload := []byte(`{"tracking":"yal-1","status":"Livré"}`)
	sig := courier.SignHMAC("whsec", payload)

	assert.True(t, client.VerifyWebhook(payload, sig, "whsec"))
	assert.False(t, client.VerifyWebhook(payload, sig, "wrong-secret"))
	assert.False(t, client.VerifyWebhook(payload, "not-hex", "whsec"))
}

func TestClient_ParseWebhookPayload(t *testing.T) {
	client := newTestClient(yalidine.NewMockAPIClient())

	payload := []byte(`{"type":"status_update","tracking":"yal-9","status":"Sorti en livraison","date_status":"2024-05-02 10:30","center_name":"Agence Oran","unexpected_field":42}`)

	ev, err := client.ParseWebhookPayload(payload)

	require.NoError(t, err)
	assert.Equal(t, "yal-9", ev.TrackingNumber)
	assert.Equal(t, courier.StatusOutForDelivery, ev.Status)
	assert.Equal(t, "Sorti en livraison", ev.RawStatus)
	require.NotNil(t, ev.Timestamp)
}

func TestClient_ParseWebhookPayload_MissingTracking(t *testing.T) {
	client := newTestClient(yalidine.NewMockAPIClient())

	_, err := client.ParseWebhookPayload([]byte(`{"status":"Livré"}`))
	assert.Error(t, err)
}

func TestClient_CancelShipment(t *testing.T) {
	mockAPI := yalidine.NewMockAPIClient()
	client := newTestClient(mockAPI)

	resp, err := client.CancelShipment(context.Background(), "yal-123", courier.Credentials{})

	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestClient_GetLabelPDF(t *testing.T) {
	mockAPI := yalidine.NewMockAPIClient()
	client := newTestClient(mockAPI)

	data, err := client.GetLabelPDF(context.Background(), "yal-123", courier.Credentials{})

	require.NoError(t, err)
	assert.Contains(t, string(data), "%PDF")
}

func TestGuepex_Name(t *testing.T) {
	logger := otelzap.New(zap.NewNop())
	client := yalidine.NewGuepex(yalidine.Config{}, logger, nil)
	assert.Equal(t, "guepex", client.Name())
}
