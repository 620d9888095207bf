// Package vault encrypts API keys for at-rest storage. The symmetric key is
// derived once at startup from an operator-configured seed and a random salt
// persisted next to the data. If the salt file is lost or corrupted a new salt
// is generated, which invalidates every previously stored credential; users
// then have to set their keys again.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltFileName     = ".salt"
	saltSize         = 16
	pbkdf2Iterations = 100_000
	keySize          = 32 // AES-256
)

// ErrDecryptionFailed is returned for any token that cannot be decrypted:
// malformed encoding, truncated nonce, tampered data or a key derived from a
// different seed/salt.
var ErrDecryptionFailed = errors.New("decryption failed")

// Vault provides authenticated encryption for opaque secret strings. The
// derived key is immutable, so a Vault is safe for concurrent use.
type Vault struct {
	aead cipher.AEAD
}

// New derives the vault key from seed and the salt stored under dataDir,
// creating the data directory and salt file on first startup.
func New(seed string, dataDir string) (*Vault, error) {
	salt, err := loadOrCreateSalt(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize salt: %w", err)
	}

	key := pbkdf2.Key([]byte(seed), salt, pbkdf2Iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext with AES-GCM under a fresh random nonce. The nonce
// is prepended to the ciphertext and the whole token is base64 encoded.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt opens a token produced by Encrypt. It never returns garbage
// plaintext: any tampering or key mismatch yields ErrDecryptionFailed.
func (v *Vault) Decrypt(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", ErrDecryptionFailed)
	}

	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("%w: token too short", ErrDecryptionFailed)
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}

	return string(plaintext), nil
}

// loadOrCreateSalt reads the persisted salt, regenerating it when the file is
// missing or not exactly saltSize bytes.
func loadOrCreateSalt(dataDir string) ([]byte, error) {
	saltPath := filepath.Join(dataDir, saltFileName)

	if salt, err := os.ReadFile(saltPath); err == nil && len(salt) == saltSize {
		return salt, nil
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(saltPath, salt, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write salt file: %w", err)
	}

	return salt, nil
}
