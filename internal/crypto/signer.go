// Package crypto implements keyed message authentication for tokens and links.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
)

// MinKeyLen is the minimum accepted signing key length in bytes (256 bits).
const MinKeyLen = 32

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Signer produces and verifies HMAC-SHA256 signatures with a process-wide
// secret. The key is set once at construction and never exposed or logged.
type Signer struct {
	key []byte
}

// NewSigner constructs a Signer, rejecting keys below MinKeyLen.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) < MinKeyLen {
		return nil, errors.New("signing key too short: need at least 256 bits")
	}
	k := append([]byte(nil), key...)
	return &Signer{key: k}, nil
}

// Sign returns the HMAC-SHA256 of payload under the signer's key.
func (s *Signer) Sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return mac.Sum(nil)
}

// Verify reports whether sig matches the recomputed signature of payload.
// Comparison is constant-time; a mismatch returns false, never an error.
func (s *Signer) Verify(payload, sig []byte) bool {
	return hmac.Equal(s.Sign(payload), sig)
}
