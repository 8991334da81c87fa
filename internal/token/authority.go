// Package token implements the consent token authority: issuance, validation
// and revocation of signed, scoped, time-bound grants from a user to an agent.
package token

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
)

// Authority issues and validates consent tokens. Validation is pure apart from
// the revocation registry lookup, so concurrent validations of the same token
// with the same now are deterministic.
type Authority struct {
	signer  *pkgcrypto.Signer
	revoked revocation.Registry

	now func() time.Time // overridable in tests
}

// NewAuthority constructs an Authority with required dependencies.
func NewAuthority(signer *pkgcrypto.Signer, revoked revocation.Registry) *Authority {
	return &Authority{signer: signer, revoked: revoked, now: time.Now}
}

// Issue mints and signs a consent token granting sc to agentID on behalf of
// userID for ttl. The token is immutable once returned; continued access needs
// a new issuance, never an extension.
func (a *Authority) Issue(userID, agentID string, sc scope.Scope, ttl time.Duration) (string, model.ConsentToken, error) {
	if userID == "" || agentID == "" {
		return "", model.ConsentToken{}, errors.New("validation: empty user/agent id")
	}
	if !scope.Known(sc) {
		return "", model.ConsentToken{}, fmt.Errorf("scope %q: %w", sc, errs.ErrUnknownScope)
	}
	if ttl <= 0 {
		return "", model.ConsentToken{}, errors.New("validation: non-positive ttl")
	}
	nonce, err := uuid.NewV4() // 128 bits of randomness
	if err != nil {
		return "", model.ConsentToken{}, err
	}
	issued := a.now().Truncate(time.Millisecond)
	t := model.ConsentToken{
		UserID:    userID,
		AgentID:   agentID,
		Scope:     sc,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(ttl),
		Nonce:     nonce.String(),
	}
	t.Signature = a.signer.Sign(Canonical(t))
	raw, err := Encode(t)
	if err != nil {
		return "", model.ConsentToken{}, err
	}
	return raw, t, nil
}

// Validate checks a wire token against the required scope at the given instant.
// Checks run in a fixed order (parse, signature, expiry, revocation, scope) so
// the most specific error always surfaces for a given failing input.
func (a *Authority) Validate(ctx context.Context, raw string, required scope.Scope, now time.Time) (model.ConsentToken, error) {
	t, err := Decode(raw)
	if err != nil {
		return model.ConsentToken{}, err
	}
	if !a.signer.Verify(Canonical(t), t.Signature) {
		return model.ConsentToken{}, fmt.Errorf("consent token: %w", errs.ErrInvalidSignature)
	}
	if !now.Before(t.ExpiresAt) {
		return model.ConsentToken{}, fmt.Errorf("consent token expired at %s: %w", t.ExpiresAt.UTC().Format(time.RFC3339), errs.ErrTokenExpired)
	}
	revoked, err := a.revoked.Contains(ctx, ID(t))
	if err != nil {
		return model.ConsentToken{}, fmt.Errorf("revocation lookup: %w: %w", errs.ErrBackendUnavailable, err)
	}
	if revoked {
		return model.ConsentToken{}, fmt.Errorf("consent token: %w", errs.ErrTokenRevoked)
	}
	if t.Scope != required {
		return model.ConsentToken{}, fmt.Errorf("token grants %q, need %q: %w", t.Scope, required, errs.ErrInsufficientScope)
	}
	return t, nil
}

// Revoke records the token's identity in the revocation registry. The token is
// parsed without signature verification so a leaked-but-corrupted grant can
// still be killed. Idempotent.
func (a *Authority) Revoke(ctx context.Context, raw string) error {
	t, err := Decode(raw)
	if err != nil {
		return err
	}
	if err := a.revoked.Add(ctx, ID(t), t.ExpiresAt); err != nil {
		return fmt.Errorf("revocation add: %w: %w", errs.ErrBackendUnavailable, err)
	}
	return nil
}
