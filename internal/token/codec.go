package token

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentmesh/trustcore/internal/errs"
	"github.com/agentmesh/trustcore/internal/model"
	"github.com/agentmesh/trustcore/internal/scope"
)

// WirePrefix versions the consent token wire format. The full shape is
// "ct1:<base64url(json payload)>.<base64url(signature)>"; trust links use a
// distinct prefix so the two never collide in a shared namespace.
const WirePrefix = "ct1"

var b64 = base64.RawURLEncoding

type payload struct {
	UserID    string `json:"user_id"`
	AgentID   string `json:"agent_id"`
	Scope     string `json:"scope"`
	IssuedAt  int64  `json:"issued_at"`  // unix ms
	ExpiresAt int64  `json:"expires_at"` // unix ms
	Nonce     string `json:"nonce"`
}

func toPayload(t model.ConsentToken) payload {
	return payload{
		UserID:    t.UserID,
		AgentID:   t.AgentID,
		Scope:     string(t.Scope),
		IssuedAt:  t.IssuedAt.UnixMilli(),
		ExpiresAt: t.ExpiresAt.UnixMilli(),
		Nonce:     t.Nonce,
	}
}

// Canonical returns the deterministic byte string the signature covers: the
// wire prefix followed by the JSON payload. JSON framing keeps the
// serialization injective, so ids are free to contain any delimiter and no
// combination of field values collides with another token's.
func Canonical(t model.ConsentToken) []byte {
	body, _ := json.Marshal(toPayload(t)) // strings and ints cannot fail to marshal
	return append([]byte(WirePrefix+":"), body...)
}

// ID is the token's revocation identity: hex SHA-256 of the canonical payload.
func ID(t model.ConsentToken) string {
	sum := sha256.Sum256(Canonical(t))
	return hex.EncodeToString(sum[:])
}

// Encode serializes a signed token to its opaque wire string.
func Encode(t model.ConsentToken) (string, error) {
	body, err := json.Marshal(toPayload(t))
	if err != nil {
		return "", err
	}
	return WirePrefix + ":" + b64.EncodeToString(body) + "." + b64.EncodeToString(t.Signature), nil
}

// Decode parses a wire string back into a token without verifying anything
// beyond structure. Any structural defect fails with ErrMalformedToken.
func Decode(raw string) (model.ConsentToken, error) {
	rest, ok := strings.CutPrefix(raw, WirePrefix+":")
	if !ok {
		return model.ConsentToken{}, fmt.Errorf("missing %q prefix: %w", WirePrefix, errs.ErrMalformedToken)
	}
	bodyPart, sigPart, ok := strings.Cut(rest, ".")
	if !ok {
		return model.ConsentToken{}, fmt.Errorf("missing signature part: %w", errs.ErrMalformedToken)
	}
	body, err := b64.DecodeString(bodyPart)
	if err != nil {
		return model.ConsentToken{}, fmt.Errorf("payload base64: %w", errs.ErrMalformedToken)
	}
	sig, err := b64.DecodeString(sigPart)
	if err != nil {
		return model.ConsentToken{}, fmt.Errorf("signature base64: %w", errs.ErrMalformedToken)
	}
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return model.ConsentToken{}, fmt.Errorf("payload json: %w", errs.ErrMalformedToken)
	}
	if p.UserID == "" || p.AgentID == "" || p.Scope == "" || p.Nonce == "" {
		return model.ConsentToken{}, fmt.Errorf("empty payload field: %w", errs.ErrMalformedToken)
	}
	return model.ConsentToken{
		UserID:    p.UserID,
		AgentID:   p.AgentID,
		Scope:     scope.Scope(p.Scope),
		IssuedAt:  time.UnixMilli(p.IssuedAt),
		ExpiresAt: time.UnixMilli(p.ExpiresAt),
		Nonce:     p.Nonce,
		Signature: sig,
	}, nil
}
