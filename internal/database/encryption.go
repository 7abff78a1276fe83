package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	encryptionSalt       = "chatrelay-message-body-v1"
	minEncryptionSecret  = 32
	encryptedValuePrefix = "enc:v1:"
	keyDerivationRounds  = 100000
	aes256KeyLen         = 32
)

// encryptor seals message bodies at rest. A nil gcm means encryption is
// disabled and values pass through unchanged.
type encryptor struct {
	gcm cipher.AEAD
}

func newEncryptor(enabled bool, secret string) (*encryptor, error) {
	if !enabled {
		return &encryptor{}, nil
	}

	if len(secret) < minEncryptionSecret {
		return nil, fmt.Errorf("encryption secret must be at least %d characters long", minEncryptionSecret)
	}

	key := pbkdf2.Key([]byte(secret), []byte(encryptionSalt), keyDerivationRounds, aes256KeyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

func (e *encryptor) enabled() bool {
	return e.gcm != nil
}

// Encrypt returns plaintext sealed with a random nonce, base64 encoded and
// tagged so rows written before encryption was enabled stay readable.
func (e *encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || !e.enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, e.gcm.NonceSize(), e.gcm.NonceSize()+len(plaintext)+e.gcm.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedValuePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *encryptor) Decrypt(value string) (string, error) {
	if len(value) < len(encryptedValuePrefix) || value[:len(encryptedValuePrefix)] != encryptedValuePrefix {
		return value, nil
	}
	if !e.enabled() {
		return "", fmt.Errorf("encrypted value found but encryption is disabled")
	}

	data, err := base64.StdEncoding.DecodeString(value[len(encryptedValuePrefix):])
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	if len(data) < e.gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:e.gcm.NonceSize()], data[e.gcm.NonceSize():]
	plaintext, err := e.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}
