package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/dzexpress/shipping/internal/orchestrator"
	"github.com/dzexpress/shipping/internal/server"
	"github.com/dzexpress/shipping/internal/store"
	"github.com/dzexpress/shipping/internal/telemetry"
	"github.com/dzexpress/shipping/internal/vault"
	"github.com/dzexpress/shipping/pkg/courier"
	"github.com/dzexpress/shipping/pkg/courier/mock"
)

type harness struct {
	handler http.Handler
	store   *store.Memory
	courier *mock.Client
	vault   *vault.Vault
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	v, err := vault.New("test-master-secret")
	require.NoError(t, err)

	mem := store.NewMemory()
	mem.SeedCompany(store.DeliveryCompany{
		ID: 1, Name: "mock-express", DisplayName: "Mock Express",
		SupportsCOD: true, SupportsTracking: true, SupportsLabels: true,
		SupportsAPICreate: true, Active: true,
	})
	mem.SeedCompany(store.DeliveryCompany{
		ID: 2, Name: "alpha-post", DisplayName: "Alpha Post",
		SupportsTracking: true, Active: true,
	})

	mc := mock.New("mock-express")
	registry := courier.NewRegistry()
	registry.Register(mc)

	logger := otelzap.New(zap.NewNop())
	metrics := telemetry.NewMetricsWithRegistry(prometheus.NewRegistry())
	orch := orchestrator.New(mem, registry, v, logger, metrics, 1000)

	srv := server.New(server.Config{Port: 0, MetricsPort: 0, CORSAllowedOrigins: []string{"*"}},
		mem, v, registry, orch, logger)
	return &harness{handler: srv.Router(), store: mem, courier: mc, vault: v}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("X-Client-ID", "client-1")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) seedIntegration(t *testing.T, companyID int, webhookSecret string) {
	t.Helper()
	keyEnc, err := h.vault.Encrypt("seed-api-key")
	require.NoError(t, err)
	whEnc, err := h.vault.Encrypt(webhookSecret)
	require.NoError(t, err)
	require.NoError(t, h.store.UpsertIntegration(context.Background(), &store.DeliveryIntegration{
		ClientID: "client-1", CompanyID: companyID,
		APIKeyEnc: keyEnc, WebhookSecretEnc: whEnc, Enabled: true,
	}))
}

func (h *harness) seedOrder(orderID string) {
	h.store.SeedOrder(store.OrderDelivery{
		OrderID: orderID, ClientID: "client-1",
		DeliveryStatus: courier.StatusPending,
		RecipientName:  "Amine Benali", RecipientPhone: "0550123456",
		RecipientAddress: "Cité 200 logements", Wilaya: "Oran", Commune: "Bir El Djir",
		CODAmount: 3200,
	})
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListCompanies_ConfiguredFirst(t *testing.T) {
	h := newHarness(t)
	h.seedIntegration(t, 1, "whsec")

	rec := h.do(t, http.MethodGet, "/api/companies", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var companies []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &companies))
	require.Len(t, companies, 2)

	// mock-express is configured so it sorts before alpha-post.
	assert.Equal(t, "mock-express", companies[0]["name"])
	assert.Equal(t, true, companies[0]["configured"])
	assert.Equal(t, "alpha-post", companies[1]["name"])
	assert.Equal(t, false, companies[1]["configured"])
}

func TestListCompanies_RequiresClientID(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/api/companies", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpsertIntegration(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/integrations", map[string]interface{}{
		"company_id":     1,
		"api_key":        "yal-key",
		"api_secret":     "yal-secret",
		"webhook_secret": "whsec",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The response carries presence flags, never credential material.
	body := rec.Body.String()
	assert.NotContains(t, body, "yal-key")
	assert.NotContains(t, body, "yal-secret")

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["has_api_key"])
	assert.Equal(t, true, resp["has_webhook_secret"])

	integ, err := h.store.GetIntegration(context.Background(), "client-1", 1)
	require.NoError(t, err)
	assert.NotContains(t, integ.APIKeyEnc, "yal-key")
	key, err := h.vault.Decrypt(integ.APIKeyEnc)
	require.NoError(t, err)
	assert.Equal(t, "yal-key", key)
}

func TestUpsertIntegration_UnknownCompany(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/integrations", map[string]interface{}{
		"company_id": 42, "api_key": "k",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpsertIntegration_PartialUpdateKeepsSecrets(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/integrations", map[string]interface{}{
		"company_id":     1,
		"api_key":        "yal-key",
		"api_secret":     "yal-secret",
		"webhook_secret": "whsec-old",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Rotating one secret must not wipe the others.
	rec = h.do(t, http.MethodPost, "/api/integrations", map[string]interface{}{
		"company_id":     1,
		"webhook_secret": "whsec-new",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["has_api_key"])
	assert.Equal(t, true, resp["has_api_secret"])

	integ, err := h.store.GetIntegration(context.Background(), "client-1", 1)
	require.NoError(t, err)
	key, err := h.vault.Decrypt(integ.APIKeyEnc)
	require.NoError(t, err)
	assert.Equal(t, "yal-key", key)
	wh, err := h.vault.Decrypt(integ.WebhookSecretEnc)
	require.NoError(t, err)
	assert.Equal(t, "whsec-new", wh)
}

func TestDisableIntegration(t *testing.T) {
	h := newHarness(t)
	h.seedIntegration(t, 1, "whsec")

	rec := h.do(t, http.MethodDelete, "/api/integrations/1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["enabled"])

	// The record survives revocation, disabled.
	integ, err := h.store.GetIntegration(context.Background(), "client-1", 1)
	require.NoError(t, err)
	assert.False(t, integ.Enabled)
	assert.NotEmpty(t, integ.APIKeyEnc)
}

func TestDisableIntegration_NotFound(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodDelete, "/api/integrations/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListIntegrations_NeverLeaksEnvelopes(t *testing.T) {
	h := newHarness(t)
	h.seedIntegration(t, 1, "whsec")

	integ, err := h.store.GetIntegration(context.Background(), "client-1", 1)
	require.NoError(t, err)

	rec := h.do(t, http.MethodGet, "/api/integrations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, true, resp[0]["has_api_key"])
	_, leaked := resp[0]["api_key_enc"]
	assert.False(t, leaked)
	assert.NotContains(t, rec.Body.String(), integ.APIKeyEnc)
	assert.NotContains(t, rec.Body.String(), integ.WebhookSecretEnc)
}

func TestAssignAndGenerateLabel(t *testing.T) {
	h := newHarness(t)
	h.seedIntegration(t, 1, "whsec")
	h.seedOrder("ORD-1")

	rec := h.do(t, http.MethodPost, "/api/orders/ORD-1/assign", map[string]interface{}{
		"company_id": 1, "cod_amount": 3200,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/orders/ORD-1/generate-label", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.NotEmpty(t, resp["tracking_number"])
	assert.NotEmpty(t, resp["label_url"])
}

func TestAssign_UnknownCompanyRejected(t *testing.T) {
	h := newHarness(t)
	h.seedOrder("ORD-1")

	rec := h.do(t, http.MethodPost, "/api/orders/ORD-1/assign", map[string]interface{}{
		"company_id": 77,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestTracking(t *testing.T) {
	h := newHarness(t)
	h.seedIntegration(t, 1, "whsec")
	h.seedOrder("ORD-1")
	h.do(t, http.MethodPost, "/api/orders/ORD-1/assign", map[string]interface{}{"company_id": 1})
	h.do(t, http.MethodPost, "/api/orders/ORD-1/generate-label", nil)

	rec := h.do(t, http.MethodGet, "/api/orders/ORD-1/tracking", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "in_transit", resp["status"])
}

func TestLabelPDFDownload(t *testing.T) {
	h := newHarness(t)
	h.seedIntegration(t, 1, "whsec")
	h.seedOrder("ORD-1")
	h.do(t, http.MethodPost, "/api/orders/ORD-1/assign", map[string]interface{}{"company_id": 1})
	h.do(t, http.MethodPost, "/api/orders/ORD-1/generate-label", nil)

	rec := h.do(t, http.MethodGet, "/api/orders/ORD-1/label", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "%PDF")
}

func TestBulkAssign(t *testing.T) {
	h := newHarness(t)
	h.seedIntegration(t, 1, "whsec")
	h.seedOrder("ORD-1")
	h.seedOrder("ORD-2")

	rec := h.do(t, http.MethodPost, "/api/orders/bulk-assign", map[string]interface{}{
		"company_id": 1,
		"order_ids":  []string{"ORD-1", "ORD-2"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["success_count"])
	assert.Equal(t, float64(0), resp["fail_count"])
}

func TestBulkAssign_MissingIntegration(t *testing.T) {
	h := newHarness(t)
	h.seedOrder("ORD-1")

	rec := h.do(t, http.MethodPost, "/api/orders/bulk-assign", map[string]interface{}{
		"company_id": 1,
		"order_ids":  []string{"ORD-1"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "delivery integration not configured")
}

func TestWebhook(t *testing.T) {
	h := newHarness(t)
	h.seedIntegration(t, 1, "whsec")
	h.seedOrder("ORD-1")
	h.courier.OnCreateShipment = func(ctx context.Context, shipment *courier.Shipment, creds courier.Credentials) (*courier.CreateResult, error) {
		return &courier.CreateResult{Success: true, TrackingNumber: "MK-001"}, nil
	}
	h.do(t, http.MethodPost, "/api/orders/ORD-1/assign", map[string]interface{}{"company_id": 1})
	h.do(t, http.MethodPost, "/api/orders/ORD-1/generate-label", nil)

	body := []byte(`{"tracking":"MK-001","status":"delivered"}`)
	sig := courier.SignHMAC("whsec", body)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/mock-express", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", sig)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["verified"])
	assert.Equal(t, true, resp["applied"])

	od, err := h.store.GetOrderDelivery(context.Background(), "ORD-1", "client-1")
	require.NoError(t, err)
	assert.Equal(t, courier.StatusDelivered, od.DeliveryStatus)
}

func TestWebhook_BadSignature(t *testing.T) {
	h := newHarness(t)
	h.seedIntegration(t, 1, "whsec")
	h.seedOrder("ORD-1")
	h.courier.OnCreateShipment = func(ctx context.Context, shipment *courier.Shipment, creds courier.Credentials) (*courier.CreateResult, error) {
		return &courier.CreateResult{Success: true, TrackingNumber: "MK-001"}, nil
	}
	h.do(t, http.MethodPost, "/api/orders/ORD-1/assign", map[string]interface{}{"company_id": 1})
	h.do(t, http.MethodPost, "/api/orders/ORD-1/generate-label", nil)

	body := []byte(`{"tracking":"MK-001","status":"delivered"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/mock-express", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["verified"])
	assert.Equal(t, false, resp["applied"])

	od, err := h.store.GetOrderDelivery(context.Background(), "ORD-1", "client-1")
	require.NoError(t, err)
	assert.NotEqual(t, courier.StatusDelivered, od.DeliveryStatus)
}

func TestDeliveryEvents(t *testing.T) {
	h := newHarness(t)
	h.seedIntegration(t, 1, "whsec")
	h.seedOrder("ORD-1")
	h.courier.OnCreateShipment = func(ctx context.Context, shipment *courier.Shipment, creds courier.Credentials) (*courier.CreateResult, error) {
		return &courier.CreateResult{Success: true, TrackingNumber: "MK-001"}, nil
	}
	h.do(t, http.MethodPost, "/api/orders/ORD-1/assign", map[string]interface{}{"company_id": 1})
	h.do(t, http.MethodPost, "/api/orders/ORD-1/generate-label", nil)

	body := []byte(`{"tracking":"MK-001","status":"delivered"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/mock-express", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", courier.SignHMAC("whsec", body))
	h.handler.ServeHTTP(httptest.NewRecorder(), req)

	rec := h.do(t, http.MethodGet, "/api/orders/ORD-1/events", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var events []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, "shipment_created", events[0]["event_type"])
	assert.Equal(t, "delivered", events[1]["status"])
	assert.Equal(t, true, events[1]["webhook_verified"])
}

func TestDeliveryEvents_NoShipmentYet(t *testing.T) {
	h := newHarness(t)
	h.seedOrder("ORD-1")

	rec := h.do(t, http.MethodGet, "/api/orders/ORD-1/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Empty(t, events)
}

func TestWebhook_UnknownCompany(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/ghost", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
