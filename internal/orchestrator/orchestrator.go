// Package orchestrator coordinates order delivery across couriers. It is
// the only writer of order delivery state; handlers and jobs go through
// it rather than touching the store or adapters directly.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dzexpress/shipping/internal/store"
	"github.com/dzexpress/shipping/internal/telemetry"
	"github.com/dzexpress/shipping/internal/vault"
	"github.com/dzexpress/shipping/pkg/courier"
)

// Orchestrator routes delivery operations to the right courier adapter
// with the owning client's decrypted credentials.
type Orchestrator struct {
	store    store.Store
	registry *courier.Registry
	vault    *vault.Vault
	logger   *otelzap.Logger
	metrics  *telemetry.Metrics
	limiter  *rate.Limiter
}

// New creates an orchestrator. bulkRate limits courier calls per second
// during bulk assignment.
func New(st store.Store, registry *courier.Registry, v *vault.Vault, logger *otelzap.Logger, metrics *telemetry.Metrics, bulkRate float64) *Orchestrator {
	if bulkRate <= 0 {
		bulkRate = 5
	}
	return &Orchestrator{
		store:    st,
		registry: registry,
		vault:    v,
		logger:   logger,
		metrics:  metrics,
		limiter:  rate.NewLimiter(rate.Limit(bulkRate), 1),
	}
}

// ShipmentResult is the uniform outcome of a delivery operation. Expected
// provider rejections and configuration problems land here with
// Success=false; only store failures surface as Go errors.
type ShipmentResult struct {
	Success        bool   `json:"success"`
	OrderID        string `json:"order_id"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	LabelURL       string `json:"label_url,omitempty"`
	Error          string `json:"error,omitempty"`
}

// TrackingResult is a live status snapshot from the courier.
type TrackingResult struct {
	Success        bool                   `json:"success"`
	OrderID        string                 `json:"order_id"`
	TrackingNumber string                 `json:"tracking_number,omitempty"`
	Status         courier.Status         `json:"status,omitempty"`
	Location       string                 `json:"location,omitempty"`
	LastUpdate     *time.Time             `json:"last_update,omitempty"`
	Events         []courier.TrackingEvent `json:"events,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// WebhookResult reports how an inbound webhook was handled.
type WebhookResult struct {
	Accepted bool   `json:"accepted"`
	Verified bool   `json:"verified"`
	Applied  bool   `json:"applied"`
	Error    string `json:"error,omitempty"`
}

func fail(orderID, msg string) *ShipmentResult {
	return &ShipmentResult{Success: false, OrderID: orderID, Error: msg}
}

// AssignDeliveryCompany records which courier will handle an order. Pure
// local bookkeeping, no courier call is made.
func (o *Orchestrator) AssignDeliveryCompany(ctx context.Context, orderID, clientID string, companyID int, codAmount float64) (*ShipmentResult, error) {
	company, err := o.store.GetCompany(ctx, companyID)
	if errors.Is(err, store.ErrNotFound) {
		return fail(orderID, fmt.Sprintf("delivery company %d not found", companyID)), nil
	}
	if err != nil {
		return nil, err
	}
	if !company.Active {
		return fail(orderID, fmt.Sprintf("delivery company %s is not active", company.Name)), nil
	}

	od, err := o.store.GetOrderDelivery(ctx, orderID, clientID)
	if errors.Is(err, store.ErrNotFound) {
		od = &store.OrderDelivery{
			OrderID:        orderID,
			ClientID:       clientID,
			DeliveryStatus: courier.StatusPending,
		}
	} else if err != nil {
		return nil, err
	}

	now := time.Now()
	od.CompanyID = companyID
	od.AssignedAt = &now
	if codAmount > 0 {
		od.CODAmount = codAmount
	}
	if od.DeliveryStatus == "" {
		od.DeliveryStatus = courier.StatusPending
	}
	if err := o.store.UpdateOrderDelivery(ctx, od); err != nil {
		return nil, err
	}

	o.logger.Ctx(ctx).Info("Assigned delivery company",
		zap.String("order_id", orderID),
		zap.String("client_id", clientID),
		zap.String("company", company.Name))
	return &ShipmentResult{Success: true, OrderID: orderID}, nil
}

// CreateShipment uploads an assigned order to its courier and persists
// the returned tracking number.
func (o *Orchestrator) CreateShipment(ctx context.Context, orderID, clientID string) (*ShipmentResult, error) {
	started := time.Now()

	od, err := o.store.GetOrderDelivery(ctx, orderID, clientID)
	if errors.Is(err, store.ErrNotFound) {
		return fail(orderID, "order has no delivery record"), nil
	}
	if err != nil {
		return nil, err
	}
	if od.CompanyID == 0 {
		return fail(orderID, "order has no delivery company assigned"), nil
	}
	if od.TrackingNumber != "" {
		return fail(orderID, fmt.Sprintf("shipment already created with tracking number %s", od.TrackingNumber)), nil
	}

	company, err := o.store.GetCompany(ctx, od.CompanyID)
	if err != nil {
		return nil, err
	}

	svc, creds, failure, err := o.resolveAdapter(ctx, clientID, company)
	if err != nil {
		return nil, err
	}
	if failure != "" {
		return fail(orderID, failure), nil
	}

	result, err := safeCreate(ctx, svc, shipmentFromOrder(od), creds)
	if err != nil {
		o.metrics.RecordError(company.Name, errorType(err))
		o.metrics.RecordRequest("create_shipment", company.Name, "error", time.Since(started).Seconds())
		o.logger.Ctx(ctx).Error("Courier create failed",
			zap.String("order_id", orderID),
			zap.String("courier", company.Name),
			zap.Error(err))
		return fail(orderID, fmt.Sprintf("courier %s unavailable: %v", company.Name, err)), nil
	}
	if !result.Success {
		o.metrics.RecordRequest("create_shipment", company.Name, "rejected", time.Since(started).Seconds())
		return fail(orderID, result.Error), nil
	}

	od.TrackingNumber = result.TrackingNumber
	od.LabelURL = result.LabelURL
	od.DeliveryStatus = courier.StatusAssigned
	od.CourierResponse = result.Raw
	if err := o.store.UpdateOrderDelivery(ctx, od); err != nil {
		return nil, err
	}

	if err := o.store.InsertDeliveryEvent(ctx, &store.DeliveryEvent{
		TrackingNumber: result.TrackingNumber,
		EventType:      "shipment_created",
		Status:         courier.StatusAssigned,
	}); err != nil {
		return nil, err
	}
	if result.LabelURL != "" {
		if err := o.store.InsertLabel(ctx, &store.ShippingLabel{
			TrackingNumber: result.TrackingNumber,
			URL:            result.LabelURL,
			Format:         string(courier.LabelPDF),
		}); err != nil {
			return nil, err
		}
	}

	o.metrics.RecordRequest("create_shipment", company.Name, "success", time.Since(started).Seconds())
	o.logger.Ctx(ctx).Info("Shipment created",
		zap.String("order_id", orderID),
		zap.String("courier", company.Name),
		zap.String("tracking_number", result.TrackingNumber))
	return &ShipmentResult{
		Success:        true,
		OrderID:        orderID,
		TrackingNumber: result.TrackingNumber,
		LabelURL:       result.LabelURL,
	}, nil
}

// GenerateLabel ensures the order has a shipment and returns its label
// reference, creating the shipment first when needed.
func (o *Orchestrator) GenerateLabel(ctx context.Context, orderID, clientID string) (*ShipmentResult, error) {
	od, err := o.store.GetOrderDelivery(ctx, orderID, clientID)
	if errors.Is(err, store.ErrNotFound) {
		return fail(orderID, "order has no delivery record"), nil
	}
	if err != nil {
		return nil, err
	}

	if od.TrackingNumber == "" {
		created, err := o.CreateShipment(ctx, orderID, clientID)
		if err != nil || !created.Success {
			return created, err
		}
		od, err = o.store.GetOrderDelivery(ctx, orderID, clientID)
		if err != nil {
			return nil, err
		}
	}

	if label, err := o.store.GetLabel(ctx, od.TrackingNumber); err == nil {
		return &ShipmentResult{
			Success:        true,
			OrderID:        orderID,
			TrackingNumber: od.TrackingNumber,
			LabelURL:       label.URL,
		}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if od.LabelURL == "" {
		return fail(orderID, "courier did not provide a label for this shipment"), nil
	}
	if err := o.store.InsertLabel(ctx, &store.ShippingLabel{
		TrackingNumber: od.TrackingNumber,
		URL:            od.LabelURL,
		Format:         string(courier.LabelPDF),
	}); err != nil {
		return nil, err
	}
	return &ShipmentResult{
		Success:        true,
		OrderID:        orderID,
		TrackingNumber: od.TrackingNumber,
		LabelURL:       od.LabelURL,
	}, nil
}

// GetDeliveryStatus queries the courier live and returns a canonical
// snapshot. The stored order state is not modified.
func (o *Orchestrator) GetDeliveryStatus(ctx context.Context, orderID, clientID string) (*TrackingResult, error) {
	started := time.Now()

	od, err := o.store.GetOrderDelivery(ctx, orderID, clientID)
	if errors.Is(err, store.ErrNotFound) {
		return &TrackingResult{OrderID: orderID, Error: "order has no delivery record"}, nil
	}
	if err != nil {
		return nil, err
	}
	if od.TrackingNumber == "" {
		return &TrackingResult{OrderID: orderID, Error: "order has no tracking number yet"}, nil
	}

	company, err := o.store.GetCompany(ctx, od.CompanyID)
	if err != nil {
		return nil, err
	}
	svc, creds, failure, err := o.resolveAdapter(ctx, clientID, company)
	if err != nil {
		return nil, err
	}
	if failure != "" {
		return &TrackingResult{OrderID: orderID, TrackingNumber: od.TrackingNumber, Error: failure}, nil
	}

	status, err := safeStatus(ctx, svc, od.TrackingNumber, creds)
	if err != nil {
		o.metrics.RecordError(company.Name, errorType(err))
		o.metrics.RecordRequest("get_status", company.Name, "error", time.Since(started).Seconds())
		return &TrackingResult{
			OrderID:        orderID,
			TrackingNumber: od.TrackingNumber,
			Error:          fmt.Sprintf("courier %s unavailable: %v", company.Name, err),
		}, nil
	}

	o.metrics.RecordRequest("get_status", company.Name, "success", time.Since(started).Seconds())
	return &TrackingResult{
		Success:        true,
		OrderID:        orderID,
		TrackingNumber: od.TrackingNumber,
		Status:         status.Status.Collapse(),
		Location:       status.Location,
		LastUpdate:     status.LastUpdate,
		Events:         status.Events,
		Error:          status.Error,
	}, nil
}

// GetLabelPDF fetches label bytes from couriers that support direct
// label download.
func (o *Orchestrator) GetLabelPDF(ctx context.Context, orderID, clientID string) ([]byte, *ShipmentResult, error) {
	od, err := o.store.GetOrderDelivery(ctx, orderID, clientID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fail(orderID, "order has no delivery record"), nil
	}
	if err != nil {
		return nil, nil, err
	}
	if od.TrackingNumber == "" {
		return nil, fail(orderID, "order has no tracking number yet"), nil
	}

	company, err := o.store.GetCompany(ctx, od.CompanyID)
	if err != nil {
		return nil, nil, err
	}
	svc, creds, failure, err := o.resolveAdapter(ctx, clientID, company)
	if err != nil {
		return nil, nil, err
	}
	if failure != "" {
		return nil, fail(orderID, failure), nil
	}

	fetcher, ok := svc.(courier.LabelFetcher)
	if !ok {
		return nil, fail(orderID, fmt.Sprintf("courier %s does not support label download", company.Name)), nil
	}

	pdf, err := fetcher.GetLabelPDF(ctx, od.TrackingNumber, creds)
	if err != nil {
		o.metrics.RecordError(company.Name, errorType(err))
		return nil, fail(orderID, fmt.Sprintf("courier %s unavailable: %v", company.Name, err)), nil
	}
	return pdf, &ShipmentResult{Success: true, OrderID: orderID, TrackingNumber: od.TrackingNumber}, nil
}

// CancelShipment cancels the shipment with couriers that support it and
// marks the order failed locally.
func (o *Orchestrator) CancelShipment(ctx context.Context, orderID, clientID string) (*ShipmentResult, error) {
	od, err := o.store.GetOrderDelivery(ctx, orderID, clientID)
	if errors.Is(err, store.ErrNotFound) {
		return fail(orderID, "order has no delivery record"), nil
	}
	if err != nil {
		return nil, err
	}
	if od.TrackingNumber == "" {
		return fail(orderID, "order has no tracking number yet"), nil
	}
	if od.DeliveryStatus.IsTerminal() {
		return fail(orderID, fmt.Sprintf("shipment is already %s", od.DeliveryStatus)), nil
	}

	company, err := o.store.GetCompany(ctx, od.CompanyID)
	if err != nil {
		return nil, err
	}
	svc, creds, failure, err := o.resolveAdapter(ctx, clientID, company)
	if err != nil {
		return nil, err
	}
	if failure != "" {
		return fail(orderID, failure), nil
	}

	canceller, ok := svc.(courier.Canceller)
	if !ok {
		return fail(orderID, fmt.Sprintf("courier %s does not support cancellation", company.Name)), nil
	}

	result, err := canceller.CancelShipment(ctx, od.TrackingNumber, creds)
	if err != nil {
		o.metrics.RecordError(company.Name, errorType(err))
		return fail(orderID, fmt.Sprintf("courier %s unavailable: %v", company.Name, err)), nil
	}
	if !result.Success {
		return fail(orderID, result.Error), nil
	}

	od.DeliveryStatus = courier.StatusCancelled.Collapse()
	if err := o.store.UpdateOrderDelivery(ctx, od); err != nil {
		return nil, err
	}
	if err := o.store.InsertDeliveryEvent(ctx, &store.DeliveryEvent{
		TrackingNumber: od.TrackingNumber,
		EventType:      "shipment_cancelled",
		Status:         od.DeliveryStatus,
		RawStatus:      string(courier.StatusCancelled),
	}); err != nil {
		return nil, err
	}

	o.logger.Ctx(ctx).Info("Shipment cancelled",
		zap.String("order_id", orderID),
		zap.String("courier", company.Name),
		zap.String("tracking_number", od.TrackingNumber))
	return &ShipmentResult{Success: true, OrderID: orderID, TrackingNumber: od.TrackingNumber}, nil
}

// HandleWebhook verifies and applies an inbound courier webhook. The
// event is always recorded; order state only moves for verified payloads
// that advance the state machine.
func (o *Orchestrator) HandleWebhook(ctx context.Context, companyName string, payload []byte, signature string) (*WebhookResult, error) {
	company, err := o.store.GetCompanyByName(ctx, companyName)
	if errors.Is(err, store.ErrNotFound) {
		return &WebhookResult{Error: fmt.Sprintf("unknown delivery company %q", companyName)}, nil
	}
	if err != nil {
		return nil, err
	}
	svc, err := o.registry.Get(company.Name)
	if err != nil {
		return &WebhookResult{Error: fmt.Sprintf("no adapter registered for %q", company.Name)}, nil
	}

	event, err := svc.ParseWebhookPayload(payload)
	if err != nil {
		return &WebhookResult{Error: fmt.Sprintf("invalid payload: %v", err)}, nil
	}

	od, err := o.store.GetOrderDeliveryByTracking(ctx, event.TrackingNumber)
	if errors.Is(err, store.ErrNotFound) {
		return &WebhookResult{Error: fmt.Sprintf("unknown tracking number %q", event.TrackingNumber)}, nil
	}
	if err != nil {
		return nil, err
	}

	verified := false
	integ, err := o.store.GetIntegration(ctx, od.ClientID, company.ID)
	if err == nil {
		secret, derr := o.vault.Decrypt(integ.WebhookSecretEnc)
		if derr == nil && secret != "" {
			verified = svc.VerifyWebhook(payload, signature, secret)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	o.metrics.RecordWebhook(company.Name, verified)

	canonical := event.Status.Collapse()
	if err := o.store.InsertDeliveryEvent(ctx, &store.DeliveryEvent{
		TrackingNumber:   event.TrackingNumber,
		EventType:        event.EventType,
		Status:           canonical,
		RawStatus:        event.RawStatus,
		Location:         event.Location,
		CourierTimestamp: event.Timestamp,
		WebhookVerified:  verified,
	}); err != nil {
		return nil, err
	}

	if !verified {
		o.logger.Ctx(ctx).Warn("Webhook signature not verified, event recorded without state change",
			zap.String("courier", company.Name),
			zap.String("tracking_number", event.TrackingNumber))
		return &WebhookResult{Accepted: true}, nil
	}

	if !od.DeliveryStatus.CanTransition(canonical) {
		o.logger.Ctx(ctx).Info("Webhook ignored by state machine",
			zap.String("tracking_number", event.TrackingNumber),
			zap.String("current", string(od.DeliveryStatus)),
			zap.String("incoming", string(canonical)))
		return &WebhookResult{Accepted: true, Verified: true}, nil
	}

	od.DeliveryStatus = canonical
	if err := o.store.UpdateOrderDelivery(ctx, od); err != nil {
		return nil, err
	}
	o.logger.Ctx(ctx).Info("Webhook applied",
		zap.String("courier", company.Name),
		zap.String("tracking_number", event.TrackingNumber),
		zap.String("status", string(canonical)))
	return &WebhookResult{Accepted: true, Verified: true, Applied: true}, nil
}

// resolveAdapter loads the enabled integration for (client, company),
// decrypts its credentials and resolves the adapter. A missing or
// disabled integration is an expected failure, returned as a message.
func (o *Orchestrator) resolveAdapter(ctx context.Context, clientID string, company *store.DeliveryCompany) (courier.Service, courier.Credentials, string, error) {
	var creds courier.Credentials

	integ, err := o.store.GetIntegration(ctx, clientID, company.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, creds, fmt.Sprintf("delivery integration not configured for %s", company.Name), nil
	}
	if err != nil {
		return nil, creds, "", err
	}
	if !integ.Enabled {
		return nil, creds, fmt.Sprintf("delivery integration for %s is disabled", company.Name), nil
	}

	creds, err = o.decryptCredentials(integ)
	if err != nil {
		return nil, creds, "", err
	}

	svc, err := o.registry.Get(company.Name)
	if err != nil {
		return nil, creds, fmt.Sprintf("no adapter registered for %q", company.Name), nil
	}
	return svc, creds, "", nil
}

func (o *Orchestrator) decryptCredentials(integ *store.DeliveryIntegration) (courier.Credentials, error) {
	var creds courier.Credentials
	var err error
	if creds.APIKey, err = o.vault.Decrypt(integ.APIKeyEnc); err != nil {
		return creds, fmt.Errorf("failed to decrypt api key: %w", err)
	}
	if creds.APISecret, err = o.vault.Decrypt(integ.APISecretEnc); err != nil {
		return creds, fmt.Errorf("failed to decrypt api secret: %w", err)
	}
	if creds.WebhookSecret, err = o.vault.Decrypt(integ.WebhookSecretEnc); err != nil {
		return creds, fmt.Errorf("failed to decrypt webhook secret: %w", err)
	}
	return creds, nil
}

func shipmentFromOrder(od *store.OrderDelivery) *courier.Shipment {
	return &courier.Shipment{
		Reference:      od.OrderID,
		RecipientName:  od.RecipientName,
		RecipientPhone: od.RecipientPhone,
		Address:        od.RecipientAddress,
		Wilaya:         od.Wilaya,
		Commune:        od.Commune,
		WeightKG:       od.WeightKG,
		CODAmount:      od.CODAmount,
		Description:    od.ProductDescription,
	}
}

// safeCreate shields the orchestrator from adapter panics.
func safeCreate(ctx context.Context, svc courier.Service, shipment *courier.Shipment, creds courier.Credentials) (result *courier.CreateResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return svc.CreateShipment(ctx, shipment, creds)
}

func safeStatus(ctx context.Context, svc courier.Service, trackingNumber string, creds courier.Credentials) (result *courier.StatusResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return svc.GetStatus(ctx, trackingNumber, creds)
}

func errorType(err error) string {
	var ce *courier.CourierError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return "transport"
}
