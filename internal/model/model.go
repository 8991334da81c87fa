// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/agentmesh/trustcore/internal/scope"
)

// ConsentToken is a single user's grant of one scope to one agent.
// Immutable once issued; "revocation" records its ID in the revocation
// registry rather than mutating the token.
type ConsentToken struct {
	UserID    string      // opaque user identifier
	AgentID   string      // opaque agent identifier
	Scope     scope.Scope // granted permission
	IssuedAt  time.Time   // truncated to milliseconds on the wire
	ExpiresAt time.Time   // must be after IssuedAt
	Nonce     string      // >=128 bits of randomness, unique per issuance
	Signature []byte      // HMAC-SHA256 over the canonical payload
}

// TrustLink is agent FromAgent delegating a previously granted scope to
// agent ToAgent, on behalf of UserID, for a bounded time.
type TrustLink struct {
	FromAgent string
	ToAgent   string
	UserID    string
	Scope     scope.Scope
	IssuedAt  time.Time
	ExpiresAt time.Time
	Context   map[string]string // opaque description of what is being shared
	Nonce     string
	Signature []byte
}

// VaultRecord is one encrypted blob of an agent's persisted state for a user.
// Uniquely addressed by (UserID, AgentID, RecordType, RecordID) and owned
// exclusively by that (user, agent) pair.
type VaultRecord struct {
	UserID     string
	AgentID    string
	RecordType string      // e.g. "memory", "campaign", "event"
	RecordID   string      // caller-chosen, unique within type
	Scope      scope.Scope // scope that authorized the write
	Ciphertext []byte
	IV         []byte // fresh per encryption, never reused with the same key
	Tag        []byte // AEAD authentication tag
	Algorithm  string // versioned cipher identifier, e.g. "AES-256-GCM-v1"
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
