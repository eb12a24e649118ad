/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package crypto encrypts Upstream access tokens at rest with AES-256-GCM.
// Ciphertexts are stored as hex(iv):hex(tag):hex(data) with a 16-byte IV and
// a 16-byte auth tag, so rows stay printable and greppable in the database.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	ivSize  = 16
	tagSize = 16
)

// ErrMalformedCiphertext is returned when a stored value does not parse as
// iv:tag:data hex segments.
var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Encryptor provides AES-256-GCM encryption for sensitive data at rest.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor creates an Encryptor from arbitrary key material. The material
// is hashed to a 32-byte AES-256 key, so any passphrase of reasonable length
// works; config enforces the minimum.
func NewEncryptor(keyMaterial string) (*Encryptor, error) {
	if keyMaterial == "" {
		return nil, errors.New("empty key material")
	}
	key := sha256.Sum256([]byte(keyMaterial))
	return newWithKey(key[:])
}

// NewEncryptorFromMachine derives the key from machine identity. Tokens
// encrypted this way do not survive moving the database to another host,
// which is the intended tradeoff when DATA_ENCRYPTION_KEY is not set.
func NewEncryptorFromMachine() (*Encryptor, error) {
	id := machineIdentity()
	r := hkdf.New(sha256.New, []byte(id), []byte("prevue-data-at-rest"), []byte("token encryption v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return newWithKey(key)
}

func newWithKey(key []byte) (*Encryptor, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Encryptor{gcm: gcm}, nil
}

// Encrypt encrypts plaintext and returns iv:tag:data, each part hex encoded.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	// Seal appends the tag after the ciphertext; split it back out for the
	// stored representation.
	sealed := e.gcm.Seal(nil, iv, []byte(plaintext), nil)
	data, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(data), nil
}

// Decrypt decrypts a value produced by Encrypt.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	parts := strings.Split(ciphertext, ":")
	if len(parts) != 3 {
		return "", ErrMalformedCiphertext
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", ErrMalformedCiphertext
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrMalformedCiphertext
	}
	data, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	plaintext, err := e.gcm.Open(nil, iv, append(data, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}

	return string(plaintext), nil
}

// machineIdentity returns a stable per-host identifier.
func machineIdentity() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if b, err := os.ReadFile(path); err == nil {
			if id := strings.TrimSpace(string(b)); id != "" {
				return id
			}
		}
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "prevue-fallback-identity"
	}
	return host
}
