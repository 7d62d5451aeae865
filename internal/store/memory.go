package store

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory store used for tests and when no DATABASE_URL is
// configured.
type Memory struct {
	mu           sync.Mutex
	companies    map[int]DeliveryCompany
	integrations map[string]DeliveryIntegration // clientID\x00companyID
	orders       map[string]OrderDelivery       // orderID\x00clientID
	events       map[string][]DeliveryEvent     // trackingNumber
	labels       map[string]ShippingLabel       // trackingNumber
	nextEventID  int
	nextIntegID  int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		companies:    map[int]DeliveryCompany{},
		integrations: map[string]DeliveryIntegration{},
		orders:       map[string]OrderDelivery{},
		events:       map[string][]DeliveryEvent{},
		labels:       map[string]ShippingLabel{},
	}
}

func integKey(clientID string, companyID int) string {
	return clientID + "\x00" + strconv.Itoa(companyID)
}

func orderKey(orderID, clientID string) string {
	return orderID + "\x00" + clientID
}

// SeedCompany inserts a company, for startup seeding and tests.
func (m *Memory) SeedCompany(c DeliveryCompany) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.companies[c.ID] = c
}

// SeedOrder inserts an order delivery record, for tests.
func (m *Memory) SeedOrder(od OrderDelivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if od.UpdatedAt.IsZero() {
		od.UpdatedAt = time.Now()
	}
	m.orders[orderKey(od.OrderID, od.ClientID)] = od
}

func (m *Memory) GetCompany(ctx context.Context, id int) (*DeliveryCompany, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) GetCompanyByName(ctx context.Context, name string) (*DeliveryCompany, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.companies {
		if strings.EqualFold(c.Name, name) {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListCompanies(ctx context.Context) ([]DeliveryCompany, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeliveryCompany, 0, len(m.companies))
	for _, c := range m.companies {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) UpsertIntegration(ctx context.Context, integ *DeliveryIntegration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := integKey(integ.ClientID, integ.CompanyID)
	now := time.Now()
	if existing, ok := m.integrations[key]; ok {
		integ.ID = existing.ID
		integ.CreatedAt = existing.CreatedAt
	} else {
		m.nextIntegID++
		integ.ID = m.nextIntegID
		integ.CreatedAt = now
	}
	integ.UpdatedAt = now
	m.integrations[key] = *integ
	return nil
}

func (m *Memory) GetIntegration(ctx context.Context, clientID string, companyID int) (*DeliveryIntegration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	integ, ok := m.integrations[integKey(clientID, companyID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &integ, nil
}

func (m *Memory) ListIntegrations(ctx context.Context, clientID string) ([]DeliveryIntegration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DeliveryIntegration
	for _, integ := range m.integrations {
		if integ.ClientID == clientID {
			out = append(out, integ)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID < out[j].CompanyID })
	return out, nil
}

func (m *Memory) DisableIntegration(ctx context.Context, clientID string, companyID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := integKey(clientID, companyID)
	integ, ok := m.integrations[key]
	if !ok {
		return ErrNotFound
	}
	integ.Enabled = false
	integ.UpdatedAt = time.Now()
	m.integrations[key] = integ
	return nil
}

func (m *Memory) GetOrderDelivery(ctx context.Context, orderID, clientID string) (*OrderDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	od, ok := m.orders[orderKey(orderID, clientID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &od, nil
}

func (m *Memory) GetOrderDeliveryByTracking(ctx context.Context, trackingNumber string) (*OrderDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if trackingNumber == "" {
		return nil, ErrNotFound
	}
	for _, od := range m.orders {
		if od.TrackingNumber == trackingNumber {
			out := od
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdateOrderDelivery(ctx context.Context, od *OrderDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	od.UpdatedAt = time.Now()
	m.orders[orderKey(od.OrderID, od.ClientID)] = *od
	return nil
}

func (m *Memory) InsertDeliveryEvent(ctx context.Context, ev *DeliveryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEventID++
	ev.ID = m.nextEventID
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	m.events[ev.TrackingNumber] = append(m.events[ev.TrackingNumber], *ev)
	return nil
}

func (m *Memory) ListDeliveryEvents(ctx context.Context, trackingNumber string) ([]DeliveryEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.events[trackingNumber]
	out := make([]DeliveryEvent, len(events))
	copy(out, events)
	return out, nil
}

func (m *Memory) InsertLabel(ctx context.Context, label *ShippingLabel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if label.GeneratedAt.IsZero() {
		label.GeneratedAt = time.Now()
	}
	m.labels[label.TrackingNumber] = *label
	return nil
}

func (m *Memory) GetLabel(ctx context.Context, trackingNumber string) (*ShippingLabel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	label, ok := m.labels[trackingNumber]
	if !ok {
		return nil, ErrNotFound
	}
	return &label, nil
}

var _ Store = (*Memory)(nil)
