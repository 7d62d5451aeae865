package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dzexpress/shipping/internal/store"
)

const maxBodyBytes = 1 << 20

type errResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errResponse{Error: msg})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

// clientID extracts the calling client from the X-Client-ID header.
// Authentication happens upstream; an empty header is still a bad request.
func (s *Server) clientID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("X-Client-ID")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "missing X-Client-ID header")
		return "", false
	}
	return id, true
}

type companyResponse struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	DisplayName       string `json:"display_name"`
	SupportsCOD       bool   `json:"supports_cod"`
	SupportsTracking  bool   `json:"supports_tracking"`
	SupportsLabels    bool   `json:"supports_labels"`
	SupportsAPICreate bool   `json:"supports_api_create"`
	Configured        bool   `json:"configured"`
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	clientID, ok := s.clientID(w, r)
	if !ok {
		return
	}

	companies, err := s.store.ListCompanies(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list companies")
		return
	}
	integrations, err := s.store.ListIntegrations(r.Context(), clientID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list integrations")
		return
	}
	configured := map[int]bool{}
	for _, integ := range integrations {
		if integ.Enabled {
			configured[integ.CompanyID] = true
		}
	}

	out := make([]companyResponse, 0, len(companies))
	for _, c := range companies {
		out = append(out, companyResponse{
			ID:                c.ID,
			Name:              c.Name,
			DisplayName:       c.DisplayName,
			SupportsCOD:       c.SupportsCOD,
			SupportsTracking:  c.SupportsTracking,
			SupportsLabels:    c.SupportsLabels,
			SupportsAPICreate: c.SupportsAPICreate,
			Configured:        configured[c.ID],
		})
	}
	// Configured companies first, then alphabetical.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Configured != out[j].Configured {
			return out[i].Configured
		}
		return out[i].Name < out[j].Name
	})
	s.writeJSON(w, http.StatusOK, out)
}

type upsertIntegrationRequest struct {
	CompanyID     int    `json:"company_id"`
	APIKey        string `json:"api_key"`
	APISecret     string `json:"api_secret"`
	WebhookSecret string `json:"webhook_secret"`
	Enabled       *bool  `json:"enabled"`
}

type integrationResponse struct {
	CompanyID        int       `json:"company_id"`
	Enabled          bool      `json:"enabled"`
	HasAPIKey        bool      `json:"has_api_key"`
	HasAPISecret     bool      `json:"has_api_secret"`
	HasWebhookSecret bool      `json:"has_webhook_secret"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// encryptInto replaces the stored envelope only when a new plaintext was
// supplied.
func (s *Server) encryptInto(dst *string, plaintext string) error {
	if plaintext == "" {
		return nil
	}
	enc, err := s.vault.Encrypt(plaintext)
	if err != nil {
		return err
	}
	*dst = enc
	return nil
}

func integrationView(integ *store.DeliveryIntegration) integrationResponse {
	return integrationResponse{
		CompanyID:        integ.CompanyID,
		Enabled:          integ.Enabled,
		HasAPIKey:        integ.APIKeyEnc != "",
		HasAPISecret:     integ.APISecretEnc != "",
		HasWebhookSecret: integ.WebhookSecretEnc != "",
		CreatedAt:        integ.CreatedAt,
		UpdatedAt:        integ.UpdatedAt,
	}
}

func (s *Server) handleUpsertIntegration(w http.ResponseWriter, r *http.Request) {
	clientID, ok := s.clientID(w, r)
	if !ok {
		return
	}
	var req upsertIntegrationRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if _, err := s.store.GetCompany(r.Context(), req.CompanyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "delivery company not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to load company")
		return
	}

	integ := &store.DeliveryIntegration{
		ClientID:  clientID,
		CompanyID: req.CompanyID,
		Enabled:   true,
	}
	if req.Enabled != nil {
		integ.Enabled = *req.Enabled
	}

	// Credentials are write-only, so a merchant updating one secret omits
	// the others. Omitted fields keep their stored envelopes instead of
	// being wiped by an empty re-encryption.
	existing, err := s.store.GetIntegration(r.Context(), clientID, req.CompanyID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusInternalServerError, "failed to load integration")
		return
	}
	if existing != nil {
		integ.APIKeyEnc = existing.APIKeyEnc
		integ.APISecretEnc = existing.APISecretEnc
		integ.WebhookSecretEnc = existing.WebhookSecretEnc
	}

	if err := s.encryptInto(&integ.APIKeyEnc, req.APIKey); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to encrypt credentials")
		return
	}
	if err := s.encryptInto(&integ.APISecretEnc, req.APISecret); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to encrypt credentials")
		return
	}
	if err := s.encryptInto(&integ.WebhookSecretEnc, req.WebhookSecret); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to encrypt credentials")
		return
	}

	if err := s.store.UpsertIntegration(r.Context(), integ); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to save integration")
		return
	}
	s.writeJSON(w, http.StatusOK, integrationView(integ))
}

// handleDisableIntegration revokes a client's credentials for a company.
// The record is disabled in place, never deleted, so the audit trail and
// encrypted envelopes survive revocation.
func (s *Server) handleDisableIntegration(w http.ResponseWriter, r *http.Request) {
	clientID, ok := s.clientID(w, r)
	if !ok {
		return
	}
	companyID, err := strconv.Atoi(chi.URLParam(r, "companyID"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	if err := s.store.DisableIntegration(r.Context(), clientID, companyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "integration not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to disable integration")
		return
	}
	integ, err := s.store.GetIntegration(r.Context(), clientID, companyID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load integration")
		return
	}
	s.writeJSON(w, http.StatusOK, integrationView(integ))
}

func (s *Server) handleListIntegrations(w http.ResponseWriter, r *http.Request) {
	clientID, ok := s.clientID(w, r)
	if !ok {
		return
	}
	integrations, err := s.store.ListIntegrations(r.Context(), clientID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list integrations")
		return
	}
	out := make([]integrationResponse, 0, len(integrations))
	for i := range integrations {
		out = append(out, integrationView(&integrations[i]))
	}
	s.writeJSON(w, http.StatusOK, out)
}

type assignRequest struct {
	CompanyID int     `json:"company_id"`
	CODAmount float64 `json:"cod_amount"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	clientID, ok := s.clientID(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	result, err := s.orch.AssignDeliveryCompany(r.Context(), chi.URLParam(r, "orderID"), clientID, req.CompanyID, req.CODAmount)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "assignment failed")
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, result)
}

func (s *Server) handleGenerateLabel(w http.ResponseWriter, r *http.Request) {
	clientID, ok := s.clientID(w, r)
	if !ok {
		return
	}
	result, err := s.orch.GenerateLabel(r.Context(), chi.URLParam(r, "orderID"), clientID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "label generation failed")
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, result)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	clientID, ok := s.clientID(w, r)
	if !ok {
		return
	}
	result, err := s.orch.CancelShipment(r.Context(), chi.URLParam(r, "orderID"), clientID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "cancellation failed")
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, result)
}

func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	clientID, ok := s.clientID(w, r)
	if !ok {
		return
	}
	result, err := s.orch.GetDeliveryStatus(r.Context(), chi.URLParam(r, "orderID"), clientID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "status query failed")
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, result)
}

// handleDeliveryEvents returns the append-only tracking history recorded
// for an order's shipment, verified and unverified events alike.
func (s *Server) handleDeliveryEvents(w http.ResponseWriter, r *http.Request) {
	clientID, ok := s.clientID(w, r)
	if !ok {
		return
	}
	od, err := s.store.GetOrderDelivery(r.Context(), chi.URLParam(r, "orderID"), clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "order not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to load order")
		return
	}
	if od.TrackingNumber == "" {
		s.writeJSON(w, http.StatusOK, []store.DeliveryEvent{})
		return
	}
	events, err := s.store.ListDeliveryEvents(r.Context(), od.TrackingNumber)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleLabelPDF(w http.ResponseWriter, r *http.Request) {
	clientID, ok := s.clientID(w, r)
	if !ok {
		return
	}
	pdf, result, err := s.orch.GetLabelPDF(r.Context(), chi.URLParam(r, "orderID"), clientID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "label download failed")
		return
	}
	if !result.Success {
		s.writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.TrackingNumber+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

type bulkAssignRequest struct {
	CompanyID      int      `json:"company_id"`
	OrderIDs       []string `json:"order_ids"`
	GenerateLabels bool     `json:"generate_labels"`
}

func (s *Server) handleBulkAssign(w http.ResponseWriter, r *http.Request) {
	clientID, ok := s.clientID(w, r)
	if !ok {
		return
	}
	var req bulkAssignRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if len(req.OrderIDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "order_ids must not be empty")
		return
	}

	result, err := s.orch.BulkAssign(r.Context(), clientID, req.CompanyID, req.OrderIDs, req.GenerateLabels)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "bulk assignment failed")
		return
	}
	status := http.StatusOK
	if result.Error != "" {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, result)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	result, err := s.orch.HandleWebhook(r.Context(),
		chi.URLParam(r, "company"), body, r.Header.Get("X-Webhook-Signature"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}
	status := http.StatusOK
	if !result.Accepted {
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, result)
}
