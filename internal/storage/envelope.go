package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

// FormatGCM is the magic number that prefixes sealed objects.
const FormatGCM = "GCM3NCR0"

const (
	saltSize   = 16
	nonceSize  = 12
	tagSize    = 16
	keySize    = 32
	iterations = 100000
)

// ErrNotSealed is returned by Open for data without the envelope magic number.
var ErrNotSealed = errors.New("data is not a sealed envelope")

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New)
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts data as magic(8) + salt(16) + nonce(12) + ciphertext + tag(16).
func Seal(data []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("seal: empty password")
	}
	salt := make([]byte, saltSize)
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(FormatGCM)+saltSize+nonceSize+len(data)+tagSize)
	out = append(out, FormatGCM...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// Sealed reports whether data carries the envelope magic number.
func Sealed(data []byte) bool {
	return len(data) >= len(FormatGCM) && string(data[:len(FormatGCM)]) == FormatGCM
}

// Open decrypts an envelope produced by Seal.
func Open(data []byte, password string) ([]byte, error) {
	if !Sealed(data) {
		return nil, ErrNotSealed
	}
	if len(data) < len(FormatGCM)+saltSize+nonceSize+tagSize {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(data))
	}
	salt := data[8:24]
	nonce := data[24:36]

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, data[36:], nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	log.Debug().Int("size", len(plaintext)).Msg("opened GCM envelope")
	return plaintext, nil
}
