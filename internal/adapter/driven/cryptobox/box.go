// Package cryptobox implements the Cipher port with AES-256-GCM.
package cryptobox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	ivSize  = 12
	tagSize = 16

	kdfIterations = 100000
)

// kdfSalt is fixed so the same secret always derives the same key.
var kdfSalt = []byte("usage-dashboard-salt-v1")

// Compile-time interface satisfaction check.
var _ driven.Cipher = (*Box)(nil)

// Box encrypts and decrypts payloads with a key fixed at construction.
// Blobs are base64(IV || tag || ciphertext).
type Box struct {
	aead cipher.AEAD
	rand io.Reader
}

// New creates a Box from a 32-byte key.
func New(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	return &Box{aead: aead, rand: rand.Reader}, nil
}

// NewFromConfig builds a Box from an external secret when one is configured,
// otherwise from the key file at keyPath (created on first use).
func NewFromConfig(secret, keyPath string) (*Box, error) {
	if secret != "" {
		return New(DeriveKey(secret))
	}

	key, err := LoadOrCreateKeyFile(keyPath)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// DeriveKey stretches secret into a 32-byte key with PBKDF2-HMAC-SHA256.
func DeriveKey(secret string) []byte {
	return pbkdf2.Key([]byte(secret), kdfSalt, kdfIterations, KeySize, sha256.New)
}

// Encrypt seals plaintext under a fresh random IV.
func (b *Box) Encrypt(plaintext []byte) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(b.rand, iv); err != nil {
		return "", fmt.Errorf("rand iv: %w", err)
	}

	// Seal returns ciphertext || tag; the tag is moved in front to keep the
	// IV || tag || ciphertext layout.
	sealed := b.aead.Seal(nil, iv, plaintext, nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, ivSize+tagSize+len(ct))
	out = append(out, iv...)
	out = append(out, tag...)
	out = append(out, ct...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a blob produced by Encrypt. Every failure wraps
// model.ErrIntegrity.
func (b *Box) Decrypt(blob string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode: %v", model.ErrIntegrity, err)
	}
	if len(data) < ivSize+tagSize {
		return nil, fmt.Errorf("%w: %w", model.ErrIntegrity, errShortBlob)
	}

	iv, tag, ct := data[:ivSize], data[ivSize:ivSize+tagSize], data[ivSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := b.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm.Open: %v", model.ErrIntegrity, err)
	}
	return plaintext, nil
}

var errShortBlob = errors.New("blob shorter than iv and tag")
