// Package trust implements agent-to-agent delegation of user-granted scopes.
// A trust link never grants more than the consent token that authorized it:
// creation requires validating that token for the exact link scope.
package trust

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/agentmesh/trustcore/internal/crypto"
	"github.com/agentmesh/trustcore/internal/errs"
	"github.com/agentmesh/trustcore/internal/model"
	"github.com/agentmesh/trustcore/internal/revocation"
	"github.com/agentmesh/trustcore/internal/scope"
	"github.com/agentmesh/trustcore/internal/token"
)

// Manager issues and verifies trust links with the same signing discipline as
// the token authority. Link revocation is tracked independently: revoking the
// authorizing consent token does not cascade to links already delegated from
// it (a deliberate policy choice, not an oversight).
type Manager struct {
	authority *token.Authority
	signer    *pkgcrypto.Signer
	revoked   revocation.Registry

	now func() time.Time // overridable in tests
}

// NewManager constructs a Manager with required dependencies.
func NewManager(authority *token.Authority, signer *pkgcrypto.Signer, revoked revocation.Registry) *Manager {
	return &Manager{authority: authority, signer: signer, revoked: revoked, now: time.Now}
}

// Create mints a trust link from fromAgent to toAgent for sc, on behalf of
// userID. authorizingToken must be a wire consent token currently valid for sc
// and held by (userID, fromAgent); otherwise ErrUnauthorizedDelegation.
func (m *Manager) Create(ctx context.Context, fromAgent, toAgent, userID string, sc scope.Scope, ttl time.Duration,
	dctx map[string]string, authorizingToken string) (string, model.TrustLink, error) {
	if fromAgent == "" || toAgent == "" || userID == "" {
		return "", model.TrustLink{}, errors.New("validation: empty agent/user id")
	}
	if ttl <= 0 {
		return "", model.TrustLink{}, errors.New("validation: non-positive ttl")
	}
	now := m.now().Truncate(time.Millisecond)
	auth, err := m.authority.Validate(ctx, authorizingToken, sc, now)
	if err != nil {
		return "", model.TrustLink{}, fmt.Errorf("%w: %w", errs.ErrUnauthorizedDelegation, err)
	}
	if auth.UserID != userID || auth.AgentID != fromAgent {
		return "", model.TrustLink{}, fmt.Errorf("authorizing token held by (%s,%s), not (%s,%s): %w",
			auth.UserID, auth.AgentID, userID, fromAgent, errs.ErrUnauthorizedDelegation)
	}
	nonce, err := uuid.NewV4()
	if err != nil {
		return "", model.TrustLink{}, err
	}
	l := model.TrustLink{
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		UserID:    userID,
		Scope:     sc,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		Context:   dctx,
		Nonce:     nonce.String(),
	}
	l.Signature = m.signer.Sign(Canonical(l))
	raw, err := Encode(l)
	if err != nil {
		return "", model.TrustLink{}, err
	}
	return raw, l, nil
}

// Verify checks a wire trust link for callerAgent at the given instant. The
// five token checks run first in the same fixed order, then the recipient
// check: a link presented by any agent other than to_agent is rejected.
func (m *Manager) Verify(ctx context.Context, raw string, required scope.Scope, callerAgent string, now time.Time) (model.TrustLink, error) {
	l, err := Decode(raw)
	if err != nil {
		return model.TrustLink{}, err
	}
	if !m.signer.Verify(Canonical(l), l.Signature) {
		return model.TrustLink{}, fmt.Errorf("trust link: %w", errs.ErrInvalidSignature)
	}
	if !now.Before(l.ExpiresAt) {
		return model.TrustLink{}, fmt.Errorf("trust link expired at %s: %w", l.ExpiresAt.UTC().Format(time.RFC3339), errs.ErrTokenExpired)
	}
	revoked, err := m.revoked.Contains(ctx, ID(l))
	if err != nil {
		return model.TrustLink{}, fmt.Errorf("revocation lookup: %w: %w", errs.ErrBackendUnavailable, err)
	}
	if revoked {
		return model.TrustLink{}, fmt.Errorf("trust link: %w", errs.ErrTokenRevoked)
	}
	if l.Scope != required {
		return model.TrustLink{}, fmt.Errorf("link grants %q, need %q: %w", l.Scope, required, errs.ErrInsufficientScope)
	}
	if l.ToAgent != callerAgent {
		return model.TrustLink{}, fmt.Errorf("link addressed to %q, presented by %q: %w", l.ToAgent, callerAgent, errs.ErrWrongRecipient)
	}
	return l, nil
}

// Revoke records the link's own identity in the revocation registry,
// independent from the consent token that authorized it. Idempotent.
func (m *Manager) Revoke(ctx context.Context, raw string) error {
	l, err := Decode(raw)
	if err != nil {
		return err
	}
	if err := m.revoked.Add(ctx, ID(l), l.ExpiresAt); err != nil {
		return fmt.Errorf("revocation add: %w: %w", errs.ErrBackendUnavailable, err)
	}
	return nil
}
