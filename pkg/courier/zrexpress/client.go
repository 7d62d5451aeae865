// Package zrexpress provides integration with the ZR Express API.
//
// ZR Express has shipped two API generations: the legacy procuration API
// authenticating with token+key in the request body, and the current API
// authenticating with headers. Both are supported behind one adapter;
// the generation is a construction-time choice.
//
// Shipment creation needs provider-internal territory ids, so the
// adapter resolves wilaya/commune names through a tarification lookup
// cached in-process with a bounded TTL.
package zrexpress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dzexpress/shipping/pkg/courier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const carrierName = "zr-express"

const (
	defaultLegacyURL  = "https://procuration1.zrexpress.info"
	defaultCurrentURL = "https://api.zrexpress.dz"

	territoryCacheTTL = time.Hour
)

// Generation selects the ZR Express API generation.
type Generation int

const (
	GenerationLegacy Generation = iota + 1
	GenerationCurrent
)

var statusTable = courier.MapTable{
	"en attente":        courier.StatusPending,
	"en préparation":    courier.StatusPending,
	"prêt à expédier":   courier.StatusAssigned,
	"prét a expédier":   courier.StatusAssigned,
	"ramassé":           courier.StatusPickedUp,
	"en transit":        courier.StatusInTransit,
	"vers wilaya":       courier.StatusInTransit,
	"centre":            courier.StatusInTransit,
	"en attente client": courier.StatusReadyForPickup,
	"en livraison":      courier.StatusOutForDelivery,
	"tentative échouée": courier.StatusOutForDelivery,
	"livré":             courier.StatusDelivered,
	"echec":             courier.StatusFailed,
	"annulé":            courier.StatusCancelled,
	"retour":            courier.StatusReturned,
	"retourné":          courier.StatusReturned,
}

// APIClient defines the ZR Express operations used by the adapter. Both
// generations implement it; credential placement differs underneath.
type APIClient interface {
	ListTerritories(ctx context.Context, creds courier.Credentials) ([]Territory, error)
	AddParcel(ctx context.Context, req *ParcelRequest, creds courier.Credentials) (*ParcelResponse, error)
	GetParcelStatus(ctx context.Context, tracking string, creds courier.Credentials) (*ParcelStatus, error)
}

// Territory is one wilaya with its communes, from the tarification feed.
type Territory struct {
	IDWilaya int       `json:"IDWilaya"`
	Wilaya   string    `json:"Wilaya"`
	Communes []Commune `json:"Communes"`
}

// Commune is a deliverable commune inside a wilaya.
type Commune struct {
	ID  int    `json:"ID"`
	Nom string `json:"Nom"`
}

// ParcelRequest is a parcel creation request. Territory ids come from
// the tarification lookup.
type ParcelRequest struct {
	IDExterne     string  `json:"ID_Externe"`
	Client        string  `json:"Client"`
	MobileA       string  `json:"MobileA"`
	Adresse       string  `json:"Adresse"`
	IDWilaya      int     `json:"IDWilaya"`
	Commune       string  `json:"Commune"`
	IDCommune     int     `json:"IDCommune,omitempty"`
	Total         float64 `json:"Total"`
	TProduit      string  `json:"TProduit,omitempty"`
	Note          string  `json:"Note,omitempty"`
	TypeLivraison int     `json:"TypeLivraison"` // 0 home, 1 stop desk
	TypeColi      int     `json:"TypeColi"`      // 0 normal, 1 exchange
	Confirmee     int     `json:"Confrimee"`     // provider's own field spelling
}

// ParcelResponse is the creation outcome.
type ParcelResponse struct {
	Success  bool   `json:"Success"`
	Tracking string `json:"Tracking,omitempty"`
	Message  string `json:"MessageRetour,omitempty"`
	Code     string `json:"Code,omitempty"`
}

// ParcelStatus is the current situation of a parcel.
type ParcelStatus struct {
	Tracking    string `json:"Tracking"`
	Situation   string `json:"Situation"`
	DateH       string `json:"DateH"`
	Commentaire string `json:"Commentaire,omitempty"`
}

// APIError represents an error from the ZR Express API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Config holds ZR Express configuration.
type Config struct {
	BaseURL    string
	Generation Generation
	// DefaultCommune is the last-resort commune candidate for the
	// bounded create retry.
	DefaultCommune string
	Timeout        time.Duration
}

// Client is the ZR Express courier adapter.
type Client struct {
	config Config
	api    APIClient
	logger *otelzap.Logger
	tracer trace.Tracer

	// Territory lookups are cached per adapter instance. Concurrent
	// cold misses rebuild redundantly rather than blocking each other;
	// the mutex only guards the map swap.
	cacheMu     sync.RWMutex
	territories []Territory
	fetchedAt   time.Time
}

// New creates a new ZR Express adapter.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if cfg.Generation == 0 {
		cfg.Generation = GenerationCurrent
	}
	if cfg.BaseURL == "" {
		if cfg.Generation == GenerationLegacy {
			cfg.BaseURL = defaultLegacyURL
		} else {
			cfg.BaseURL = defaultCurrentURL
		}
	}

	var api APIClient
	if cfg.Generation == GenerationLegacy {
		api = newLegacyAPIClient(cfg.BaseURL, cfg.Timeout)
	} else {
		api = newCurrentAPIClient(cfg.BaseURL, cfg.Timeout)
	}

	return &Client{config: cfg, api: api, logger: logger, tracer: tracer}
}

// NewWithAPIClient creates an adapter bound to a custom API client, for tests.
func NewWithAPIClient(cfg Config, api APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return &Client{config: cfg, api: api, logger: logger, tracer: tracer}
}

// Name returns the courier name.
func (c *Client) Name() string {
	return carrierName
}

// CreateShipment resolves the wilaya id from the cached tarification
// feed, then creates the parcel. Commune rejections retry with the
// bounded fallback candidate list.
func (c *Client) CreateShipment(ctx context.Context, shipment *courier.Shipment, creds courier.Credentials) (*courier.CreateResult, error) {
	c.logger.Info("Creating ZR Express parcel",
		zap.String("reference", shipment.Reference),
		zap.String("wilaya", shipment.Wilaya),
	)

	wilayaID, communeID, err := c.resolveTerritory(ctx, shipment.Wilaya, shipment.Commune, creds)
	if err != nil {
		return nil, err
	}

	typeLivraison := 0
	if shipment.StopDesk {
		typeLivraison = 1
	}
	typeColi := 0
	if shipment.Exchange {
		typeColi = 1
	}

	var lastResp *ParcelResponse
	for _, commune := range c.communeCandidates(shipment, communeID) {
		resp, err := c.api.AddParcel(ctx, &ParcelRequest{
			IDExterne:     shipment.Reference,
			Client:        shipment.RecipientName,
			MobileA:       shipment.RecipientPhone,
			Adresse:       shipment.Address,
			IDWilaya:      wilayaID,
			Commune:       commune.name,
			IDCommune:     commune.id,
			Total:         shipment.CODAmount,
			TProduit:      shipment.Description,
			TypeLivraison: typeLivraison,
			TypeColi:      typeColi,
			Confirmee:     1,
		}, creds)
		if err != nil {
			c.logger.Error("ZR Express API error", zap.Error(err))
			return nil, err
		}

		if resp.Success {
			return &courier.CreateResult{
				Success:        true,
				TrackingNumber: resp.Tracking,
				ReferenceID:    shipment.Reference,
				Raw:            rawJSON(resp),
			}, nil
		}

		lastResp = resp
		if !isCommuneError(resp) {
			break
		}
		c.logger.Warn("Commune rejected, trying fallback",
			zap.String("commune", commune.name),
			zap.String("message", resp.Message),
		)
	}

	return &courier.CreateResult{
		Success: false,
		Error:   lastResp.Message,
		Raw:     rawJSON(lastResp),
	}, nil
}

// GetStatus fetches the parcel situation, mapped to the canonical set.
func (c *Client) GetStatus(ctx context.Context, trackingNumber string, creds courier.Credentials) (*courier.StatusResult, error) {
	status, err := c.api.GetParcelStatus(ctx, trackingNumber, creds)
	if err != nil {
		c.logger.Error("ZR Express API error", zap.Error(err))
		return nil, err
	}

	result := &courier.StatusResult{
		TrackingNumber: trackingNumber,
		Status:         statusTable.Map(status.Situation),
		Location:       status.Commentaire,
	}
	if t, ok := parseDate(status.DateH); ok {
		result.LastUpdate = &t
	}
	return result, nil
}

// VerifyWebhook checks the HMAC-SHA256 signature over the raw payload.
func (c *Client) VerifyWebhook(payload []byte, signature, secret string) bool {
	return courier.VerifyHMAC(secret, payload, signature)
}

type webhookPayload struct {
	Tracking  string `json:"Tracking"`
	Situation string `json:"Situation"`
	DateH     string `json:"DateH"`
	Note      string `json:"Note"`
}

// ParseWebhookPayload normalizes a ZR Express webhook body.
func (c *Client) ParseWebhookPayload(payload []byte) (*courier.WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if p.Tracking == "" {
		return nil, fmt.Errorf("webhook payload missing tracking number")
	}

	ev := &courier.WebhookEvent{
		TrackingNumber: p.Tracking,
		EventType:      "status_update",
		Status:         statusTable.Map(p.Situation),
		RawStatus:      p.Situation,
		Description:    p.Note,
	}
	if t, ok := parseDate(p.DateH); ok {
		ev.Timestamp = &t
	}
	return ev, nil
}

// ============================================================================
// Territory resolution
// ============================================================================

type communeCandidate struct {
	name string
	id   int
}

// resolveTerritory maps wilaya/commune names to provider ids via the
// cached tarification feed. An unknown wilaya is a hard configuration
// problem; an unknown commune is left at id 0 and handled by the
// fallback retry.
func (c *Client) resolveTerritory(ctx context.Context, wilaya, commune string, creds courier.Credentials) (wilayaID, communeID int, err error) {
	territories, err := c.loadTerritories(ctx, creds)
	if err != nil {
		return 0, 0, err
	}

	for _, t := range territories {
		if !equalFold(t.Wilaya, wilaya) {
			continue
		}
		wilayaID = t.IDWilaya
		for _, cm := range t.Communes {
			if equalFold(cm.Nom, commune) {
				communeID = cm.ID
				break
			}
		}
		return wilayaID, communeID, nil
	}

	return 0, 0, fmt.Errorf("%w: unknown wilaya %q", courier.ErrInvalidRegion, wilaya)
}

// loadTerritories returns the cached tarification feed, refreshing it
// when the TTL has elapsed. Duplicate concurrent fetches on a cold
// cache are acceptable, not prevented.
func (c *Client) loadTerritories(ctx context.Context, creds courier.Credentials) ([]Territory, error) {
	c.cacheMu.RLock()
	cached, fresh := c.territories, time.Since(c.fetchedAt) < territoryCacheTTL
	c.cacheMu.RUnlock()

	if cached != nil && fresh {
		return cached, nil
	}

	territories, err := c.api.ListTerritories(ctx, creds)
	if err != nil {
		// Stale data beats no data when the refresh fails.
		if cached != nil {
			c.logger.Warn("Territory refresh failed, using stale cache", zap.Error(err))
			return cached, nil
		}
		return nil, err
	}

	c.cacheMu.Lock()
	c.territories = territories
	c.fetchedAt = time.Now()
	c.cacheMu.Unlock()

	return territories, nil
}

func (c *Client) communeCandidates(shipment *courier.Shipment, resolvedID int) []communeCandidate {
	candidates := make([]communeCandidate, 0, len(shipment.CommuneFallbacks)+2)
	seen := make(map[string]bool)
	add := func(name string, id int) {
		key := fmt.Sprintf("%s/%d", name, id)
		if (name != "" || id != 0) && !seen[key] {
			seen[key] = true
			candidates = append(candidates, communeCandidate{name: name, id: id})
		}
	}
	add(shipment.Commune, resolvedID)
	for _, fb := range shipment.CommuneFallbacks {
		add(fb, 0)
	}
	add(c.config.DefaultCommune, 0)
	if len(candidates) == 0 {
		candidates = append(candidates, communeCandidate{})
	}
	return candidates
}

func isCommuneError(resp *ParcelResponse) bool {
	if strings.EqualFold(resp.Code, "COMMUNE_UNKNOWN") {
		return true
	}
	return strings.Contains(strings.ToLower(resp.Message), "commune")
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func rawJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

var _ courier.Service = (*Client)(nil)
