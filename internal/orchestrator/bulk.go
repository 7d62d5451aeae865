package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dzexpress/shipping/internal/store"
)

// BulkOrderResult is the per-order outcome of a bulk assignment.
type BulkOrderResult struct {
	OrderID        string `json:"order_id"`
	Success        bool   `json:"success"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	LabelURL       string `json:"label_url,omitempty"`
	Error          string `json:"error,omitempty"`
}

// BulkResult aggregates a bulk assignment run. Results always has one
// entry per requested order, in request order.
type BulkResult struct {
	SuccessCount int               `json:"success_count"`
	FailCount    int               `json:"fail_count"`
	Results      []BulkOrderResult `json:"results"`
	Error        string            `json:"error,omitempty"`
}

// BulkAssign assigns a batch of orders to one courier and, for couriers
// with API upload, creates the shipments. The integration precondition
// is checked once up front; a missing integration fails the whole batch
// before any order is touched. Courier calls are paced by the shared
// rate limiter. A failed upload leaves the local assignment in place so
// a later retry can pick the order up without reassigning.
func (o *Orchestrator) BulkAssign(ctx context.Context, clientID string, companyID int, orderIDs []string, generateLabels bool) (*BulkResult, error) {
	company, err := o.store.GetCompany(ctx, companyID)
	if errors.Is(err, store.ErrNotFound) {
		return &BulkResult{Error: fmt.Sprintf("delivery company %d not found", companyID)}, nil
	}
	if err != nil {
		return nil, err
	}
	if !company.Active {
		return &BulkResult{Error: fmt.Sprintf("delivery company %s is not active", company.Name)}, nil
	}

	if company.SupportsAPICreate {
		integ, err := o.store.GetIntegration(ctx, clientID, companyID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !integ.Enabled) {
			return &BulkResult{
				Error: fmt.Sprintf("delivery integration not configured for %s", company.Name),
			}, nil
		}
		if err != nil {
			return nil, err
		}
	}

	started := time.Now()
	result := &BulkResult{Results: make([]BulkOrderResult, 0, len(orderIDs))}
	for _, orderID := range orderIDs {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		result.Results = append(result.Results, o.bulkAssignOne(ctx, clientID, company, orderID, generateLabels))
	}
	for _, r := range result.Results {
		if r.Success {
			result.SuccessCount++
		} else {
			result.FailCount++
		}
	}

	o.logger.Ctx(ctx).Info("Bulk assignment finished",
		zap.String("client_id", clientID),
		zap.String("courier", company.Name),
		zap.Int("orders", len(orderIDs)),
		zap.Int("succeeded", result.SuccessCount),
		zap.Int("failed", result.FailCount),
		zap.Duration("took", time.Since(started)))
	return result, nil
}

func (o *Orchestrator) bulkAssignOne(ctx context.Context, clientID string, company *store.DeliveryCompany, orderID string, generateLabels bool) BulkOrderResult {
	assigned, err := o.AssignDeliveryCompany(ctx, orderID, clientID, company.ID, 0)
	if err != nil {
		return BulkOrderResult{OrderID: orderID, Error: err.Error()}
	}
	if !assigned.Success {
		return BulkOrderResult{OrderID: orderID, Error: assigned.Error}
	}

	if !company.SupportsAPICreate {
		return BulkOrderResult{OrderID: orderID, Success: true}
	}

	var created *ShipmentResult
	if generateLabels {
		created, err = o.GenerateLabel(ctx, orderID, clientID)
	} else {
		created, err = o.CreateShipment(ctx, orderID, clientID)
	}
	if err != nil {
		return BulkOrderResult{OrderID: orderID, Error: err.Error()}
	}
	if !created.Success {
		return BulkOrderResult{OrderID: orderID, Error: created.Error}
	}
	return BulkOrderResult{
		OrderID:        orderID,
		Success:        true,
		TrackingNumber: created.TrackingNumber,
		LabelURL:       created.LabelURL,
	}
}
