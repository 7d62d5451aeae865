package courier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// VerifyHMAC checks an HMAC-SHA256 signature over the raw body using the
// shared secret. This is the default webhook verification strategy;
// couriers with structured signing schemes layer their own comparison on
// top but still resolve to a boolean.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	if secret == "" || provided == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)
	b, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, b)
}

// SignHMAC returns lowercase hex of HMAC-SHA256 over the body, for use in
// tests and outbound signing.
func SignHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type genericWebhook struct {
	Tracking  string `json:"tracking"`
	EventType string `json:"event"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
	Location  string `json:"location"`
}

// ParseGenericWebhook parses the flat tracking/event/status JSON shape
// shared by several couriers. The status is mapped with DefaultMapTable.
func ParseGenericWebhook(payload []byte) (*WebhookEvent, error) {
	var p genericWebhook
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if p.Tracking == "" {
		return nil, fmt.Errorf("webhook payload missing tracking number")
	}

	eventType := p.EventType
	if eventType == "" {
		eventType = "status_update"
	}
	ev := &WebhookEvent{
		TrackingNumber: p.Tracking,
		EventType:      eventType,
		Status:         DefaultMapTable.Map(p.Status),
		RawStatus:      p.Status,
		Location:       p.Location,
	}
	if t, err := time.Parse(time.RFC3339, p.UpdatedAt); err == nil {
		ev.Timestamp = &t
	}
	return ev, nil
}
