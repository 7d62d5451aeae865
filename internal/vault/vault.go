// Package vault encrypts courier credentials at rest with envelope
// encryption. The master secret never reaches the database; each field is
// stored as an iv:authTag:ciphertext hex envelope.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	// scrypt parameters. Changing them invalidates every stored envelope,
	// so they are fixed for the lifetime of a deployment.
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	keyLen       = 32
	nonceLen     = 12
	gcmTagLen    = 16
	envelopeSeps = 2
)

// The salt is fixed so the same master secret always derives the same
// key. Per-envelope randomness comes from the GCM nonce.
var kdfSalt = []byte("dzexpress-credential-vault-v1")

var (
	// ErrInvalidEnvelope indicates the stored value is not a well-formed
	// iv:authTag:ciphertext envelope.
	ErrInvalidEnvelope = errors.New("invalid credential envelope")

	// ErrDecryptionFailed indicates authentication failed, either a wrong
	// master secret or a tampered envelope.
	ErrDecryptionFailed = errors.New("credential decryption failed")
)

// Vault encrypts and decrypts credential fields with AES-256-GCM under a
// key derived from the master secret.
type Vault struct {
	aead cipher.AEAD
}

// New derives the encryption key from the master secret and returns a
// ready vault. The secret must be non-empty.
func New(masterSecret string) (*Vault, error) {
	if masterSecret == "" {
		return nil, errors.New("vault master secret must not be empty")
	}

	key, err := scrypt.Key([]byte(masterSecret), kdfSalt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive vault key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals a plaintext field into an iv:authTag:ciphertext envelope.
// Empty plaintext encrypts to an empty envelope.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-gcmTagLen]
	tag := sealed[len(sealed)-gcmTagLen:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt opens an envelope produced by Encrypt. An empty envelope
// decrypts to an empty string.
func (v *Vault) Decrypt(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}

	parts := strings.Split(envelope, ":")
	if len(parts) != envelopeSeps+1 {
		return "", ErrInvalidEnvelope
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceLen {
		return "", ErrInvalidEnvelope
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != gcmTagLen {
		return "", ErrInvalidEnvelope
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrInvalidEnvelope
	}

	plaintext, err := v.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
