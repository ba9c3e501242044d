package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"course-entitlement/internal/domain/ports/adapter"
)

var _ adapter.CredentialCipher = (*CredentialCipher)(nil)

const cipherVersion = "v1."

var ErrMalformedCiphertext = errors.New("malformed credential ciphertext")

// CredentialCipher seals billing credentials with AES-GCM. Output is
// "v1." + base64(nonce || ciphertext).
type CredentialCipher struct {
	gcm cipher.AEAD
}

// ValidKeyLength reports whether key selects AES-128, AES-192 or AES-256.
func ValidKeyLength(key string) bool {
	n := len(key)
	return n == 16 || n == 24 || n == 32
}

func NewCredentialCipher(key string) (*CredentialCipher, error) {
	if !ValidKeyLength(key) {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", len(key))
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &CredentialCipher{gcm: gcm}, nil
}

func (c *CredentialCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("%w: empty credential", ErrMalformedCiphertext)
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return cipherVersion + base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *CredentialCipher) Decrypt(ciphertext string) (string, error) {
	body, ok := strings.CutPrefix(ciphertext, cipherVersion)
	if !ok {
		return "", fmt.Errorf("%w: unknown version", ErrMalformedCiphertext)
	}
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	ns := c.gcm.NonceSize()
	if len(data) <= ns {
		return "", fmt.Errorf("%w: too short", ErrMalformedCiphertext)
	}
	pt, err := c.gcm.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("gcm open: %w", err)
	}
	return string(pt), nil
}
