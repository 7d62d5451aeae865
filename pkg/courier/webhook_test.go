package courier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dzexpress/shipping/pkg/courier"
)

func TestVerifyHMAC(t *testing.T) {
	body := []byte(`{"tracking":"YAL-123","status":"livré"}`)
	sig := courier.SignHMAC("secret", body)

	assert.True(t, courier.VerifyHMAC("secret", body, sig))
	assert.False(t, courier.VerifyHMAC("wrong", body, sig))
	assert.False(t, courier.VerifyHMAC("secret", []byte("tampered"), sig))
	assert.False(t, courier.VerifyHMAC("secret", body, "not-hex!"))
	assert.False(t, courier.VerifyHMAC("secret", body, ""))
	assert.False(t, courier.VerifyHMAC("", body, sig))
}

func TestParseGenericWebhook(t *testing.T) {
	ev, err := courier.ParseGenericWebhook([]byte(`{"tracking":"TRK-1","event":"delivery","status":"delivered","updated_at":"2025-03-01T10:00:00Z","location":"Alger"}`))
	require.NoError(t, err)
	assert.Equal(t, "TRK-1", ev.TrackingNumber)
	assert.Equal(t, "delivery", ev.EventType)
	assert.Equal(t, courier.StatusDelivered, ev.Status)
	assert.Equal(t, "delivered", ev.RawStatus)
	assert.Equal(t, "Alger", ev.Location)
	require.NotNil(t, ev.Timestamp)
}

func TestParseGenericWebhook_Defaults(t *testing.T) {
	ev, err := courier.ParseGenericWebhook([]byte(`{"tracking":"TRK-2","status":"mystery"}`))
	require.NoError(t, err)
	assert.Equal(t, "status_update", ev.EventType)
	assert.Equal(t, courier.StatusPending, ev.Status)
	assert.Nil(t, ev.Timestamp)
}

func TestParseGenericWebhook_Invalid(t *testing.T) {
	_, err := courier.ParseGenericWebhook([]byte(`not json`))
	assert.Error(t, err)

	_, err = courier.ParseGenericWebhook([]byte(`{"status":"delivered"}`))
	assert.Error(t, err)
}
