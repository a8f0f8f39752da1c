// Package encryption provides optional at-rest encryption for snapshot
// artifacts. It derives a stream-cipher key from a passphrase via PBKDF2
// and wraps/unwraps a byte stream with AES-CTR. Off by default: snapshots
// are plain gzip(JSON) unless a passphrase is configured.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLen     = 32 // AES-256
	saltLen    = 16
	iterations = 100_000
)

// DeriveKey stretches passphrase into an AES-256 key using PBKDF2-HMAC-SHA256.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, keyLen, sha256.New)
}

// Encrypt prepends a random salt and IV to an AES-CTR ciphertext of
// plaintext, keyed by a PBKDF2 derivation of passphrase.
func Encrypt(passphrase string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("encryption: salt: %w", err)
	}

	key := DeriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encryption: cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("encryption: iv: %w", err)
	}

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, plaintext)

	out := make([]byte, 0, saltLen+aes.BlockSize+len(ciphertext))
	out = append(out, salt...)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decrypt reverses Encrypt, reading the salt and IV from the front of data.
func Decrypt(passphrase string, data []byte) ([]byte, error) {
	if len(data) < saltLen+aes.BlockSize {
		return nil, fmt.Errorf("encryption: ciphertext too short")
	}
	salt := data[:saltLen]
	iv := data[saltLen : saltLen+aes.BlockSize]
	ciphertext := data[saltLen+aes.BlockSize:]

	key := DeriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encryption: cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCTR(block, iv).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}
