package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrCiphertextInvalid is returned when a stored credential cannot be
// authenticated: wrong key, truncated value, or a tampered payload.
// Callers must treat it as fatal for the value, never as empty plaintext.
var ErrCiphertextInvalid = errors.New("security: ciphertext invalid or tampered")

// Stored format: base64(nonce || ciphertext+tag). The nonce is random
// per value so encrypting the same secret twice never repeats output.

// EncryptString encrypts a plaintext credential with the configured key.
func EncryptString(plaintext string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("security: init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("security: nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString decrypts a stored credential. A malformed or forged
// value yields ErrCiphertextInvalid rather than garbage plaintext.
func DecryptString(encoded string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("security: init cipher: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrCiphertextInvalid
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrCiphertextInvalid
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrCiphertextInvalid
	}

	return string(plaintext), nil
}

func loadKey() ([]byte, error) {
	config := GetConfig()
	if config.ExchangeCRKey == "" {
		return nil, errors.New("security: EXCHANGE_CREDENTIALS_KEY not set")
	}

	key, err := base64.StdEncoding.DecodeString(config.ExchangeCRKey)
	if err != nil {
		return nil, fmt.Errorf("security: decode key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("security: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}
