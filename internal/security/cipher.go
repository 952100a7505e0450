// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length in bytes of a registry key.
const KeySize = chacha20poly1305.KeySize

// blobVersion prefixes every sealed blob so the format can change later
// without guessing.
const blobVersion byte = 1

var (
	// ErrInvalidKey is returned when a registry key is missing or malformed.
	ErrInvalidKey = errors.New("invalid registry key")
	// ErrMalformedBlob is returned for blobs that are too short or carry an
	// unknown version.
	ErrMalformedBlob = errors.New("malformed ciphertext")
	// ErrAuthentication is returned when a blob fails authentication: wrong
	// key, tampered bytes or mismatched associated data.
	ErrAuthentication = errors.New("ciphertext authentication failed")
)

// ParseKey decodes a hex encoded 32 byte key.
func ParseKey(hexKey string) (Secret, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, fmt.Errorf("%w: key is empty", ErrInvalidKey)
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != KeySize {
		clear(raw)
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(raw))
	}
	return Secret(raw), nil
}

// GenerateKey returns a fresh random key and its hex encoding.
func GenerateKey() (Secret, string, error) {
	raw := make([]byte, KeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("read random key: %w", err)
	}
	return Secret(raw), hex.EncodeToString(raw), nil
}

// Cipher seals and opens registry blobs with XChaCha20-Poly1305.
//
// Blob layout: version (1 byte) | nonce (24 bytes) | ciphertext+tag.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 32 byte key.
func NewCipher(key Secret) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Cipher{aead: aead}, nil
}

// NewCipherFromHex is ParseKey followed by NewCipher.
func NewCipherFromHex(hexKey string) (*Cipher, error) {
	key, err := ParseKey(hexKey)
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return NewCipher(key)
}

// Seal encrypts plaintext, binding aad into the authentication tag.
func (c *Cipher) Seal(plaintext, aad []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	out := make([]byte, 1+ns, 1+ns+len(plaintext)+c.aead.Overhead())
	out[0] = blobVersion
	nonce := out[1:]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return c.aead.Seal(out, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts a blob produced by Seal. No plaintext is
// returned unless authentication succeeds.
func (c *Cipher) Open(blob, aad []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(blob) < 1+ns+c.aead.Overhead() {
		return nil, ErrMalformedBlob
	}
	if blob[0] != blobVersion {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedBlob, blob[0])
	}
	nonce := blob[1 : 1+ns]
	plaintext, err := c.aead.Open(nil, nonce, blob[1+ns:], aad)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
