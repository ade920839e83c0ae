package security

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTestKey(t *testing.T) {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv("EXCHANGE_CREDENTIALS_KEY", base64.StdEncoding.EncodeToString(key))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	setTestKey(t)

	plaintext := "api-key-abc123"

	encrypted, err := EncryptString(plaintext)
	require.NoError(t, err)
	require.NotEmpty(t, encrypted)
	assert.NotEqual(t, plaintext, encrypted)

	decrypted, err := DecryptString(encrypted)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptNonceIsRandomPerValue(t *testing.T) {
	setTestKey(t)

	first, err := EncryptString("same-secret")
	require.NoError(t, err)
	second, err := EncryptString("same-secret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	setTestKey(t)

	cases := []struct {
		name  string
		value string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short"))},
		{"empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecryptString(tc.value)
			assert.True(t, errors.Is(err, ErrCiphertextInvalid), "expected ErrCiphertextInvalid, got %v", err)
		})
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	setTestKey(t)

	encrypted, err := EncryptString("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF

	_, err = DecryptString(base64.StdEncoding.EncodeToString(raw))
	assert.True(t, errors.Is(err, ErrCiphertextInvalid))
}

func TestDecryptFailsWithoutKey(t *testing.T) {
	t.Setenv("EXCHANGE_CREDENTIALS_KEY", "")

	_, err := DecryptString("anything")
	assert.Error(t, err)
}
