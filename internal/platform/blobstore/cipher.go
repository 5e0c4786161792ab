package blobstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// Cipher seals object content with AES-256-GCM. The nonce is prepended to
// the ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("blobstore cipher: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("blobstore cipher: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("blobstore cipher: create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Seal encrypts data. additional binds the ciphertext to its object key so
// a sealed blob cannot be replayed under another key.
func (c *Cipher) Seal(data, additional []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("blobstore encrypt: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, data, additional), nil
}

// Open reverses Seal.
func (c *Cipher) Open(data, additional []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("blobstore decrypt: ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, additional)
	if err != nil {
		return nil, fmt.Errorf("blobstore decrypt: %w", err)
	}
	return plaintext, nil
}
