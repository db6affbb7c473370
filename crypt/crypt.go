// Package crypt provides the reversible field encryption applied to stored message text,
// goal descriptions and configured secrets
package crypt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Prefix marks a value produced by Encrypt. Values without it are treated as plain text
const Prefix = "enc:"

const hkdfInfo = "elonbot field encryption"

// Cipher is implemented by any value that can reversibly transform a string field
type Cipher interface {
	Encrypt(plaintext string) (ciphertext string, err error)
	Decrypt(ciphertext string) (plaintext string, err error)
}

// XChaCha is a Cipher backed by XChaCha20-Poly1305
type XChaCha struct {
	key []byte
}

// New returns a Cipher for the given key material. A 64 character hex string is used as the raw
// 32 byte key; anything else is treated as a passphrase and stretched with HKDF-SHA256. An empty
// key returns a Noop cipher
func New(keyMaterial string) (c Cipher, err error) {
	keyMaterial = strings.TrimSpace(keyMaterial)
	if keyMaterial == "" {
		return Noop{}, nil
	}

	key, err := deriveKey(keyMaterial)
	if err != nil {
		return nil, err
	}

	return &XChaCha{key: key}, nil
}

func deriveKey(keyMaterial string) (key []byte, err error) {
	if len(keyMaterial) == 2*chacha20poly1305.KeySize {
		if raw, err := hex.DecodeString(keyMaterial); err == nil {
			return raw, nil
		}
	}

	key = make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, []byte(keyMaterial), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Wrap(err, "failed to derive encryption key")
	}

	return key, nil
}

// Encrypt seals the plaintext and returns it as a prefixed base64 string. Empty values are
// returned unchanged
func (x *XChaCha) Encrypt(plaintext string) (ciphertext string, err error) {
	if plaintext == "" {
		return "", nil
	}

	aead, err := chacha20poly1305.NewX(x.key)
	if err != nil {
		return "", errors.Wrap(err, "failed to create cipher")
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "failed to generate nonce")
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Values without the Prefix are returned as-is so that
// plain text written before encryption was enabled stays readable
func (x *XChaCha) Decrypt(ciphertext string) (plaintext string, err error) {
	if !IsEncrypted(ciphertext) {
		return ciphertext, nil
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, Prefix))
	if err != nil {
		return "", errors.Wrap(err, "invalid encrypted value encoding")
	}

	aead, err := chacha20poly1305.NewX(x.key)
	if err != nil {
		return "", errors.Wrap(err, "failed to create cipher")
	}

	if len(sealed) < aead.NonceSize() {
		return "", errors.New("encrypted value too short")
	}

	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	opened, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to decrypt value")
	}

	return string(opened), nil
}

// IsEncrypted returns true if the value carries the encryption Prefix
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// Noop is a Cipher that leaves values untouched
type Noop struct{}

// Encrypt returns the plaintext
func (Noop) Encrypt(plaintext string) (string, error) {
	return plaintext, nil
}

// Decrypt returns the value, failing only for values that were encrypted since there is no key to
// open them with
func (Noop) Decrypt(ciphertext string) (string, error) {
	if IsEncrypted(ciphertext) {
		return "", errors.New("value is encrypted but no encryption key is configured")
	}

	return ciphertext, nil
}
