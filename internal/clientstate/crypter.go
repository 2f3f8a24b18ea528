package clientstate

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	crypterKeyInfo = "gadgethost client state v1"
	signingKeyInfo = "gadgethost security token v1"
)

// deriveKey stretches the shared secret into a 32 byte key for one purpose.
func deriveKey(secret, info string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("client state secret is empty")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Crypter encrypts client state with AES-256-GCM. Output is unpadded
// base64url so it can travel in query strings.
type Crypter struct {
	aead cipher.AEAD
}

// NewCrypter derives the AES key from secret.
func NewCrypter(secret string) (*Crypter, error) {
	key, err := deriveKey(secret, crypterKeyInfo)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Crypter{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Crypter) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt with the same secret.
func (c *Crypter) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidClientState, err)
	}
	n := c.aead.NonceSize()
	if len(raw) < n+c.aead.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrInvalidClientState)
	}
	plain, err := c.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrInvalidClientState)
	}
	return string(plain), nil
}
