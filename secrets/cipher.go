// Package secrets provides authenticated symmetric encryption for OAuth
// credentials at rest. Ciphertext is a self-describing colon-delimited hex
// string (nonce:tag:body) so malformed input is rejected deterministically.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/scrypt"
)

// ErrDecryptionFailed is returned whenever a ciphertext cannot be opened:
// truncated input, tag mismatch, or wrong key. Callers must treat it as
// "credential unusable" and never retry silently. The error carries no
// detail that would distinguish the failure modes to an external observer.
var ErrDecryptionFailed = errors.New("decryption failed")

const (
	keySize   = 32 // AES-256
	nonceSize = 12 // standard GCM nonce
	tagSize   = 16 // GCM authentication tag

	// Fixed salt for stretching operator secrets shorter than a full key.
	// Changing it invalidates every stored ciphertext.
	kdfSalt = "postloop-credential-vault-v1"

	devSecret = "postloop-dev-only-insecure-key"
)

// Cipher seals and opens opaque secrets with AES-256-GCM. Both operations
// are pure and CPU-bound; a Cipher is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the encryption key from the operator-supplied secret.
// A 32-byte secret is used directly; anything else is stretched with scrypt.
// An empty secret is fatal in production. In any other environment it falls
// back to a deterministic development-only key, which is unsafe and logged
// loudly as such.
func NewCipher(secret, env string) (*Cipher, error) {
	if strings.TrimSpace(secret) == "" {
		if strings.EqualFold(env, "production") {
			return nil, errors.New("[NewCipher] cipher secret is required in production")
		}
		log.Warn().Msg("CIPHER_SECRET not set - using insecure development key, do NOT use in production")
		secret = devSecret
	}

	key := []byte(secret)
	if len(key) != keySize {
		stretched, err := scrypt.Key(key, []byte(kdfSalt), 1<<15, 8, 1, keySize)
		if err != nil {
			return nil, errors.Wrap(err, "[NewCipher] scrypt")
		}
		key = stretched
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "[NewCipher] aes.NewCipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "[NewCipher] cipher.NewGCM")
	}

	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext with a fresh random nonce and returns the
// nonce:tag:body hex string. Every call produces a distinct ciphertext.
func (c *Cipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "[Cipher.Seal] rand.Read")
	}

	// GCM appends the tag to the ciphertext; split it back out so the
	// stored shape is nonce:tag:body.
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	body := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(body), nil
}

// Open decrypts a nonce:tag:body ciphertext. Any structural defect, tag
// mismatch, or key mismatch yields ErrDecryptionFailed.
func (c *Cipher) Open(ciphertext string) (string, error) {
	parts := strings.Split(ciphertext, ":")
	if len(parts) != 3 {
		return "", ErrDecryptionFailed
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", ErrDecryptionFailed
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrDecryptionFailed
	}
	body, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrDecryptionFailed
	}

	plaintext, err := c.aead.Open(nil, nonce, append(body, tag...), nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
