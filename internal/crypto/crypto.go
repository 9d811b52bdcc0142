// Package crypto encrypts sensitive values at rest, such as the remote
// submission credential. Uses AES-256-GCM with a key derived from a
// machine-specific identifier.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

var (
	// ErrInvalidCiphertext is returned when decryption or authentication
	// fails.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrInvalidKey is returned when the key is empty.
	ErrInvalidKey = errors.New("invalid key")
)

// Encrypt seals plaintext with AES-256-GCM under a key derived from the
// input via SHA-256, returning base64 for storage.
func Encrypt(plaintext, key []byte) (string, error) {
	if len(key) == 0 {
		return "", ErrInvalidKey
	}
	derived := sha256.Sum256(key)

	block, err := aes.NewCipher(derived[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func Decrypt(ciphertext string, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrInvalidKey
	}
	derived := sha256.Sum256(key)

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(derived[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrInvalidCiphertext
	}
	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

// DeriveKey derives a stable 32-byte key from a machine-specific
// identifier. Not a substitute for a platform key store.
func DeriveKey(machineID string) []byte {
	if machineID == "" {
		machineID = "intelsync-default-key"
	}
	hash := sha256.Sum256([]byte("intelsync:" + machineID))
	return hash[:]
}
