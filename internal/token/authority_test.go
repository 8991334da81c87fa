package token

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	pkgcrypto "github.com/agentmesh/trustcore/internal/crypto"
	"github.com/agentmesh/trustcore/internal/errs"
	"github.com/agentmesh/trustcore/internal/revocation"
	"github.com/agentmesh/trustcore/internal/scope"
)

type failingRegistry struct {
	containsErr error
	addErr      error
}

func (f *failingRegistry) Add(_ context.Context, _ string, _ time.Time) error { return f.addErr }
func (f *failingRegistry) Contains(_ context.Context, _ string) (bool, error) {
	return false, f.containsErr
}
func (f *failingRegistry) PurgeExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func newAuthority(t *testing.T) *Authority {
	t.Helper()
	key, err := pkgcrypto.RandBytes(pkgcrypto.MinKeyLen)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	signer, err := pkgcrypto.NewSigner(key)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return NewAuthority(signer, revocation.NewMemory())
}

func TestAuthority_IssueAndValidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := newAuthority(t)

	raw, tok, err := a.Issue("u1", "a1", scope.VaultReadEmail, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !tok.ExpiresAt.After(tok.IssuedAt) {
		t.Fatalf("expires_at must be after issued_at")
	}

	got, err := a.Validate(ctx, raw, scope.VaultReadEmail, time.Now())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.UserID != "u1" || got.AgentID != "a1" || got.Scope != scope.VaultReadEmail {
		t.Fatalf("validated token fields: %+v", got)
	}
}

func TestAuthority_Issue_Validation(t *testing.T) {
	t.Parallel()
	a := newAuthority(t)

	if _, _, err := a.Issue("u1", "a1", scope.Scope("vault.read.everything"), time.Hour); !errors.Is(err, errs.ErrUnknownScope) {
		t.Fatalf("want ErrUnknownScope, got %v", err)
	}
	if _, _, err := a.Issue("", "a1", scope.VaultReadEmail, time.Hour); err == nil {
		t.Fatalf("want error on empty user id")
	}
	if _, _, err := a.Issue("u1", "a1", scope.VaultReadEmail, 0); err == nil {
		t.Fatalf("want error on zero ttl")
	}
}

func TestAuthority_Issue_FreshNonce(t *testing.T) {
	t.Parallel()
	a := newAuthority(t)

	_, t1, _ := a.Issue("u1", "a1", scope.VaultReadEmail, time.Hour)
	_, t2, _ := a.Issue("u1", "a1", scope.VaultReadEmail, time.Hour)
	if t1.Nonce == t2.Nonce {
		t.Fatalf("nonce reused across issuances")
	}
	if ID(t1) == ID(t2) {
		t.Fatalf("identical identities for separate issuances")
	}
}

func TestAuthority_Validate_ScopeMismatch(t *testing.T) {
	t.Parallel()
	a := newAuthority(t)

	raw, _, _ := a.Issue("u1", "a1", scope.VaultReadEmail, time.Hour)
	_, err := a.Validate(context.Background(), raw, scope.VaultWriteCalendar, time.Now())
	if !errors.Is(err, errs.ErrInsufficientScope) {
		t.Fatalf("want ErrInsufficientScope, got %v", err)
	}
}

func TestAuthority_Validate_Expired(t *testing.T) {
	t.Parallel()
	a := newAuthority(t)

	raw, tok, _ := a.Issue("u1", "a1", scope.VaultReadEmail, time.Second)
	_, err := a.Validate(context.Background(), raw, scope.VaultReadEmail, tok.ExpiresAt.Add(time.Second))
	if !errors.Is(err, errs.ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired, got %v", err)
	}

	// exactly at expiry is already expired
	if _, err := a.Validate(context.Background(), raw, scope.VaultReadEmail, tok.ExpiresAt); !errors.Is(err, errs.ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired at the boundary, got %v", err)
	}
}

func TestAuthority_Validate_Revoked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := newAuthority(t)

	raw, _, _ := a.Issue("u1", "a1", scope.VaultReadEmail, time.Hour)
	if err := a.Revoke(ctx, raw); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	// read-after-write: a completed revoke is observed immediately
	if _, err := a.Validate(ctx, raw, scope.VaultReadEmail, time.Now()); !errors.Is(err, errs.ErrTokenRevoked) {
		t.Fatalf("want ErrTokenRevoked, got %v", err)
	}

	if err := a.Revoke(ctx, raw); err != nil {
		t.Fatalf("second Revoke must be idempotent: %v", err)
	}
}

func TestAuthority_Validate_Tampered(t *testing.T) {
	t.Parallel()
	a := newAuthority(t)

	raw, tok, _ := a.Issue("u1", "a1", scope.VaultReadEmail, time.Hour)

	// re-encode with a widened scope; the signature no longer matches
	forged := tok
	forged.Scope = scope.VaultWriteCalendar
	rawForged, err := Encode(forged)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := a.Validate(context.Background(), rawForged, scope.VaultWriteCalendar, time.Now()); !errors.Is(err, errs.ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}

	// flipping a character in the signature part fails the same way
	i := strings.LastIndex(raw, ".") + 1
	c := byte('A')
	if raw[i] == 'A' {
		c = 'B'
	}
	if _, err := a.Validate(context.Background(), raw[:i]+string(c)+raw[i+1:], scope.VaultReadEmail, time.Now()); !errors.Is(err, errs.ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature for corrupted signature, got %v", err)
	}
}

// Ids are opaque and may contain any byte, so a signature minted for one
// (user, agent) pair must never verify for a re-partitioning of the same
// concatenated characters.
func TestAuthority_Validate_RepartitionedIdentity(t *testing.T) {
	t.Parallel()
	a := newAuthority(t)

	_, tok, err := a.Issue("u1", "a1|x", scope.VaultReadEmail, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	forged := tok
	forged.UserID = "u1|a1"
	forged.AgentID = "x"
	rawForged, err := Encode(forged)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := a.Validate(context.Background(), rawForged, scope.VaultReadEmail, time.Now()); !errors.Is(err, errs.ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature for re-partitioned ids, got %v", err)
	}

	// the revocation identities must not collide either
	if ID(tok) == ID(forged) {
		t.Fatalf("distinct (user, agent) pairs share an ID")
	}
}

// The check order is a contract: for a token that fails several checks, the
// earliest check in the sequence decides the error.
func TestAuthority_Validate_ErrorOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := newAuthority(t)

	// expired AND revoked AND wrong scope -> expiry wins
	raw, tok, _ := a.Issue("u1", "a1", scope.VaultReadEmail, time.Second)
	if err := a.Revoke(ctx, raw); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	after := tok.ExpiresAt.Add(time.Minute)
	if _, err := a.Validate(ctx, raw, scope.VaultWriteCalendar, after); !errors.Is(err, errs.ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired to win, got %v", err)
	}

	// revoked AND wrong scope -> revocation wins
	raw2, _, _ := a.Issue("u1", "a1", scope.VaultReadEmail, time.Hour)
	_ = a.Revoke(ctx, raw2)
	if _, err := a.Validate(ctx, raw2, scope.VaultWriteCalendar, time.Now()); !errors.Is(err, errs.ErrTokenRevoked) {
		t.Fatalf("want ErrTokenRevoked to win, got %v", err)
	}

	// tampered AND expired -> signature wins
	forged := tok
	forged.Scope = scope.VaultWriteCalendar
	rawForged, _ := Encode(forged)
	if _, err := a.Validate(ctx, rawForged, scope.VaultWriteCalendar, after); !errors.Is(err, errs.ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature to win, got %v", err)
	}

	// malformed beats everything
	if _, err := a.Validate(ctx, "garbage", scope.VaultReadEmail, time.Now()); !errors.Is(err, errs.ErrMalformedToken) {
		t.Fatalf("want ErrMalformedToken, got %v", err)
	}
}

func TestAuthority_RegistryFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	key, _ := pkgcrypto.RandBytes(pkgcrypto.MinKeyLen)
	signer, _ := pkgcrypto.NewSigner(key)
	boom := errors.New("connection refused")
	a := NewAuthority(signer, &failingRegistry{containsErr: boom, addErr: boom})

	raw, _, _ := a.Issue("u1", "a1", scope.VaultReadEmail, time.Hour)

	_, err := a.Validate(ctx, raw, scope.VaultReadEmail, time.Now())
	if !errors.Is(err, errs.ErrBackendUnavailable) || !errors.Is(err, boom) {
		t.Fatalf("want wrapped ErrBackendUnavailable, got %v", err)
	}
	if err := a.Revoke(ctx, raw); !errors.Is(err, errs.ErrBackendUnavailable) {
		t.Fatalf("want ErrBackendUnavailable from Revoke, got %v", err)
	}
}

func TestAuthority_Revoke_Malformed(t *testing.T) {
	t.Parallel()
	a := newAuthority(t)

	if err := a.Revoke(context.Background(), "not-a-token"); !errors.Is(err, errs.ErrMalformedToken) {
		t.Fatalf("want ErrMalformedToken, got %v", err)
	}
}
