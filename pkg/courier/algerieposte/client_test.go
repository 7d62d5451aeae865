package algerieposte_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/dzexpress/shipping/pkg/courier"
	"github.com/dzexpress/shipping/pkg/courier/algerieposte"
)

func testClient(t *testing.T, handler http.Handler) *algerieposte.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return algerieposte.New(algerieposte.Config{BaseURL: srv.URL}, otelzap.New(zap.NewNop()), nil)
}

func TestCreateShipmentUnsupported(t *testing.T) {
	client := algerieposte.New(algerieposte.Config{}, otelzap.New(zap.NewNop()), nil)

	result, err := client.CreateShipment(context.Background(), &courier.Shipment{Reference: "ORD-1"}, courier.Credentials{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "does not support")
}

func TestGetStatus(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fr/suivre/EE123456789DZ", r.URL.Path)
		json.NewEncoder(w).Encode(algerieposte.TrackResponse{
			Tracking: "EE123456789DZ",
			Events: []algerieposte.TrackEvent{
				{Date: "01/03/2025 09:12", Event: "Posted", Office: "Alger RP"},
				{Date: "02/03/2025 10:40", Event: "Départ bureau", Office: "Alger RP"},
				{Date: "03/03/2025 08:05", Event: "Livré", Office: "Oran RP"},
			},
		})
	}))

	result, err := client.GetStatus(context.Background(), "EE123456789DZ", courier.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, courier.StatusDelivered, result.Status)
	assert.Equal(t, "Oran RP", result.Location)
	assert.Len(t, result.Events, 3)
	assert.Equal(t, courier.StatusInTransit, result.Events[1].Status)
	require.NotNil(t, result.LastUpdate)
}

func TestGetStatusNotFound(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	result, err := client.GetStatus(context.Background(), "EE000000000DZ", courier.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, courier.StatusPending, result.Status)
	assert.Equal(t, "tracking number not found", result.Error)
}

func TestWebhooksUnsupported(t *testing.T) {
	client := algerieposte.New(algerieposte.Config{}, otelzap.New(zap.NewNop()), nil)

	assert.False(t, client.VerifyWebhook([]byte("{}"), "sig", "secret"))

	_, err := client.ParseWebhookPayload([]byte("{}"))
	require.ErrorIs(t, err, courier.ErrNotSupported)
}
