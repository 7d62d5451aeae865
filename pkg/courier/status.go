package courier

import (
	"strings"
)

// Status represents the canonical delivery status of a shipment.
type Status string

// Closed canonical set. Every provider vocabulary collapses into these
// before leaving the courier layer.
const (
	StatusPending        Status = "pending"
	StatusAssigned       Status = "assigned"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusFailed         Status = "failed"
	StatusReturned       Status = "returned"
)

// Adapter-local extensions. They may appear inside adapter tables and
// tracking events but collapse into the closed set at the orchestrator
// boundary.
const (
	StatusPickedUp       Status = "picked_up"
	StatusCancelled      Status = "cancelled"
	StatusReadyForPickup Status = "ready_for_pickup"
)

// Collapse folds adapter-local extensions into the closed canonical set.
func (s Status) Collapse() Status {
	switch s {
	case StatusPickedUp:
		return StatusInTransit
	case StatusReadyForPickup:
		return StatusAssigned
	case StatusCancelled:
		return StatusFailed
	case StatusPending, StatusAssigned, StatusInTransit,
		StatusOutForDelivery, StatusDelivered, StatusFailed, StatusReturned:
		return s
	default:
		return StatusPending
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusFailed, StatusReturned:
		return true
	}
	return false
}

// rank orders the happy path for the regression guard. Terminal states
// rank above everything.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusAssigned:
		return 1
	case StatusInTransit:
		return 2
	case StatusOutForDelivery:
		return 3
	case StatusDelivered, StatusFailed, StatusReturned:
		return 4
	}
	return 0
}

// CanTransition reports whether moving from s to next is a forward
// transition. Regressive updates (out-of-order webhooks) and any move out
// of a terminal state are rejected.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// MapTable translates a provider's raw status vocabulary into the
// canonical set. Lookup is the adapter's responsibility; unknown raw
// values always map to StatusPending so a provider introducing a new
// string never breaks a status query.
type MapTable map[string]Status

// Map resolves a raw provider status. Provider vocabularies are
// inconsistent in casing and whitespace, so an exact miss falls back to a
// trimmed lowercase lookup. Never fails.
func (t MapTable) Map(raw string) Status {
	if s, ok := t[raw]; ok {
		return s
	}
	if s, ok := t[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StatusPending
}

// DefaultMapTable covers couriers that already emit canonical status
// strings, such as webhook payloads produced by this system itself.
var DefaultMapTable = MapTable{
	"pending":          StatusPending,
	"assigned":         StatusAssigned,
	"picked_up":        StatusPickedUp,
	"in_transit":       StatusInTransit,
	"ready_for_pickup": StatusReadyForPickup,
	"out_for_delivery": StatusOutForDelivery,
	"delivered":        StatusDelivered,
	"failed":           StatusFailed,
	"cancelled":        StatusCancelled,
	"returned":         StatusReturned,
}
