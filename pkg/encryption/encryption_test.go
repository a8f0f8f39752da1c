package encryption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte("a snapshot's worth of gzip(json) bytes")

	ciphertext, err := Encrypt("correct horse battery staple", plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	got, err := Decrypt("correct horse battery staple", ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptWrongPassphraseProducesGarbage(t *testing.T) {
	plaintext := []byte("secret payload")
	ciphertext, err := Encrypt("right-passphrase", plaintext)
	require.NoError(t, err)

	got, err := Decrypt("wrong-passphrase", ciphertext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, got)
}

func TestDecryptRejectsShortInput(t *testing.T) {
	_, err := Decrypt("pw", []byte("short"))
	assert.Error(t, err)
}

func TestEncryptProducesDistinctSaltPerCall(t *testing.T) {
	plaintext := []byte("same input both times")
	a, err := Encrypt("pw", plaintext)
	require.NoError(t, err)
	b, err := Encrypt("pw", plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "salt/iv should differ across calls")
}
