package vault_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dzexpress/shipping/internal/vault"
)

func TestRoundTrip(t *testing.T) {
	v, err := vault.New("test-master-secret")
	require.NoError(t, err)

	envelope, err := v.Encrypt("yal-api-key-123")
	require.NoError(t, err)
	assert.NotContains(t, envelope, "yal-api-key-123")
	assert.Len(t, strings.Split(envelope, ":"), 3)

	plaintext, err := v.Decrypt(envelope)
	require.NoError(t, err)
	assert.Equal(t, "yal-api-key-123", plaintext)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	v, err := vault.New("test-master-secret")
	require.NoError(t, err)

	a, err := v.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := v.Encrypt("same plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEmptyPlaintext(t *testing.T) {
	v, err := vault.New("test-master-secret")
	require.NoError(t, err)

	envelope, err := v.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, envelope)

	plaintext, err := v.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, plaintext)
}

func TestWrongSecret(t *testing.T) {
	v1, err := vault.New("secret-one")
	require.NoError(t, err)
	v2, err := vault.New("secret-two")
	require.NoError(t, err)

	envelope, err := v1.Encrypt("token")
	require.NoError(t, err)

	_, err = v2.Decrypt(envelope)
	assert.ErrorIs(t, err, vault.ErrDecryptionFailed)
}

func TestTamperedEnvelope(t *testing.T) {
	v, err := vault.New("test-master-secret")
	require.NoError(t, err)

	envelope, err := v.Encrypt("token")
	require.NoError(t, err)

	// Flip a nibble of the ciphertext segment.
	parts := strings.Split(envelope, ":")
	ct := []byte(parts[2])
	if ct[0] == '0' {
		ct[0] = '1'
	} else {
		ct[0] = '0'
	}
	tampered := parts[0] + ":" + parts[1] + ":" + string(ct)

	_, err = v.Decrypt(tampered)
	assert.ErrorIs(t, err, vault.ErrDecryptionFailed)
}

func TestMalformedEnvelope(t *testing.T) {
	v, err := vault.New("test-master-secret")
	require.NoError(t, err)

	for _, envelope := range []string{
		"not-an-envelope",
		"aa:bb",
		"zz:zz:zz",
		"aabb:ccdd:eeff",
	} {
		_, err := v.Decrypt(envelope)
		assert.ErrorIs(t, err, vault.ErrInvalidEnvelope, envelope)
	}
}

func TestEmptyMasterSecret(t *testing.T) {
	_, err := vault.New("")
	assert.Error(t, err)
}
