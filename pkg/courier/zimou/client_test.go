package zimou_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dzexpress/shipping/pkg/courier"
	"github.com/dzexpress/shipping/pkg/courier/zimou"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func testClient(t *testing.T, handler http.Handler) *zimou.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := otelzap.New(zap.NewNop())
	return zimou.New(zimou.Config{BaseURL: srv.URL}, logger, nil)
}

func testCreds() courier.Credentials {
	return courier.Credentials{APIKey: "zim-key", WebhookSecret: "whsec"}
}

func TestCreateShipment(t *testing.T) {
	var gotKey string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/parcels", r.URL.Path)
		gotKey = r.Header.Get("api-key")

		var req zimou.ParcelRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ORD-100", req.Reference)
		assert.Equal(t, "Oran", req.Wilaya)

		json.NewEncoder(w).Encode(zimou.ParcelResponse{
			Status: true,
			Data: struct {
				Tracking string `json:"tracking"`
			}{Tracking: "ZIM-0001"},
		})
	}))

	result, err := client.CreateShipment(context.Background(), &courier.Shipment{
		Reference:      "ORD-100",
		RecipientName:  "Amine B",
		RecipientPhone: "0550000000",
		Address:        "Rue des Oliviers",
		Wilaya:         "Oran",
		Commune:        "Bir El Djir",
		CODAmount:      3200,
	}, testCreds())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ZIM-0001", result.TrackingNumber)
	assert.Equal(t, "zim-key", gotKey)
}

func TestCreateShipmentRejected(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(zimou.ParcelResponse{Status: false, Message: "phone number invalid"})
	}))

	result, err := client.CreateShipment(context.Background(), &courier.Shipment{Reference: "ORD-101"}, testCreds())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "phone number invalid", result.Error)
}

func TestCreateShipmentServerError(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))

	_, err := client.CreateShipment(context.Background(), &courier.Shipment{Reference: "ORD-102"}, testCreds())
	require.Error(t, err)
	var apiErr *zimou.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "HTTP_500", apiErr.Code)
}

func TestGetStatusLatestEntryWins(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/parcels/ZIM-0001/statuses", r.URL.Path)
		json.NewEncoder(w).Encode(zimou.StatusesResponse{Data: []zimou.StatusEntry{
			{Status: "Ramassé", CreatedAt: "2025-03-01 09:00:00", Center: "Oran"},
			{Status: "Expédié", CreatedAt: "2025-03-01 15:00:00", Center: "Oran"},
			{Status: "Sorti en livraison", CreatedAt: "2025-03-02 08:30:00", Center: "Alger"},
		}})
	}))

	result, err := client.GetStatus(context.Background(), "ZIM-0001", testCreds())
	require.NoError(t, err)
	assert.Equal(t, courier.StatusOutForDelivery, result.Status)
	assert.Equal(t, "Alger", result.Location)
	assert.Len(t, result.Events, 3)
	require.NotNil(t, result.LastUpdate)
}

func TestGetStatusEmptyFeed(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(zimou.StatusesResponse{})
	}))

	result, err := client.GetStatus(context.Background(), "ZIM-0002", testCreds())
	require.NoError(t, err)
	assert.Equal(t, courier.StatusPending, result.Status)
	assert.Empty(t, result.Events)
}

func TestVerifyWebhook(t *testing.T) {
	client := zimou.New(zimou.Config{}, otelzap.New(zap.NewNop()), nil)
	body := []byte(`{"tracking":"ZIM-0001","status":"Livré"}`)

	sig := courier.SignHMAC("whsec", body)
	assert.True(t, client.VerifyWebhook(body, sig, "whsec"))
	assert.False(t, client.VerifyWebhook(body, sig, "other"))
	assert.False(t, client.VerifyWebhook(body, "", "whsec"))
}

func TestParseWebhookPayload(t *testing.T) {
	client := zimou.New(zimou.Config{}, otelzap.New(zap.NewNop()), nil)

	ev, err := client.ParseWebhookPayload([]byte(`{"tracking":"ZIM-0001","status":"Livré","created_at":"2025-03-03 11:00:00","center":"Alger"}`))
	require.NoError(t, err)
	assert.Equal(t, "ZIM-0001", ev.TrackingNumber)
	assert.Equal(t, courier.StatusDelivered, ev.Status)
	assert.Equal(t, "Livré", ev.RawStatus)
	require.NotNil(t, ev.Timestamp)

	_, err = client.ParseWebhookPayload([]byte(`{"status":"Livré"}`))
	require.Error(t, err)
}
