// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Validation sentinels for consent tokens and trust links. The token authority
// checks in a fixed order so the most specific sentinel is always the one returned.
var (
	// ErrUnknownScope indicates a scope string outside the closed registry.
	ErrUnknownScope = errors.New("unknown scope")

	// ErrMalformedToken indicates input that does not parse as a token or link.
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidSignature indicates a signature mismatch on recomputation.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrTokenExpired indicates expires_at has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked indicates the identity appears in the revocation registry.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrInsufficientScope indicates the granted scope does not match the required one.
	ErrInsufficientScope = errors.New("insufficient scope")

	// ErrUnauthorizedDelegation indicates the authorizing token for a trust link
	// is invalid, expired, revoked, or held by/for someone else.
	ErrUnauthorizedDelegation = errors.New("unauthorized delegation")

	// ErrWrongRecipient indicates a trust link presented by an agent other than to_agent.
	ErrWrongRecipient = errors.New("trust link wrong recipient")
)

// Vault and storage sentinels.
var (
	// ErrVaultIntegrity indicates tamper or corruption detected on decrypt.
	ErrVaultIntegrity = errors.New("vault integrity failure")

	// ErrBackendUnavailable indicates a storage backend I/O failure.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
)
