// Package token provides hashing primitives for opaque credentials.
//
// Refresh credentials are high-entropy random strings shown to the client
// exactly once; the server persists only a digest. The digest is
// HMAC-SHA256(token, key) when a key is configured, and plain SHA-256
// otherwise. Output is always a 64-char hex string, suitable for a UNIQUE
// column and constant-time comparison.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// MinHMACKeyBytes is the minimum accepted HMAC key size.
const MinHMACKeyBytes = 32

// ErrHMACKeyTooShort is returned when a configured HMAC key is below MinHMACKeyBytes.
var ErrHMACKeyTooShort = errors.New("token HMAC key too short")

// NewOpaque returns nBytes of cryptographic randomness encoded as
// URL-safe base64 without padding.
func NewOpaque(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HashRefreshHex computes the server-stored digest for a refresh credential.
// A nil or empty key selects the plain SHA-256 mode.
func HashRefreshHex(tok string, key []byte) string {
	if len(key) == 0 {
		return HashSHA256Hex(tok)
	}
	return HashHMACSHA256Hex(tok, key)
}

// ValidateHMACKey enforces the minimum key size for a non-empty key.
func ValidateHMACKey(key []byte) error {
	if len(key) == 0 {
		return nil
	}
	if len(key) < MinHMACKeyBytes {
		return ErrHMACKeyTooShort
	}
	return nil
}
