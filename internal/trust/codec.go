package trust

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

// WirePrefix versions the trust-link wire format, kept distinct from the
// consent token prefix so the two stay unambiguous in a shared namespace.
const WirePrefix = "tl1"

var b64 = base64.RawURLEncoding

type payload struct {
	FromAgent string            `json:"from_agent"`
	ToAgent   string            `json:"to_agent"`
	UserID    string            `json:"user_id"`
	Scope     string            `json:"scope"`
	IssuedAt  int64             `json:"issued_at"`  // unix ms
	ExpiresAt int64             `json:"expires_at"` // unix ms
	Context   map[string]string `json:"delegation_context,omitempty"`
	Nonce     string            `json:"nonce"`
}

func toPayload(l model.TrustLink) payload {
	return payload{
		FromAgent: l.FromAgent,
		ToAgent:   l.ToAgent,
		UserID:    l.UserID,
		Scope:     string(l.Scope),
		IssuedAt:  l.IssuedAt.UnixMilli(),
		ExpiresAt: l.ExpiresAt.UnixMilli(),
		Context:   l.Context,
		Nonce:     l.Nonce,
	}
}

// Canonical returns the deterministic byte string the signature covers: the
// wire prefix followed by the JSON payload. encoding/json writes map keys in
// sorted order and escapes values, so the delegation context serializes
// deterministically and injectively regardless of what its entries contain.
func Canonical(l model.TrustLink) []byte {
	body, _ := json.Marshal(toPayload(l)) // strings, ints and a string map cannot fail to marshal
	return append([]byte(WirePrefix+":"), body...)
}

// ID is the link's revocation identity, independent from the identity of the
// consent token that authorized its creation.
func ID(l model.TrustLink) string {
	sum := sha256.Sum256(Canonical(l))
	return hex.EncodeToString(sum[:])
}

// Encode serializes a signed trust link to its opaque wire string.
func Encode(l model.TrustLink) (string, error) {
	body, err := json.Marshal(toPayload(l))
	if err != nil {
		return "", err
	}
	return WirePrefix + ":" + b64.EncodeToString(body) + "." + b64.EncodeToString(l.Signature), nil
}

// Decode parses a wire string back into a trust link without verifying
// anything beyond structure.
func Decode(raw string) (model.TrustLink, error) {
	rest, ok := strings.CutPrefix(raw, WirePrefix+":")
	if !ok {
		return model.TrustLink{}, fmt.Errorf("missing %q prefix: %w", WirePrefix, errs.ErrMalformedToken)
	}
	bodyPart, sigPart, ok := strings.Cut(rest, ".")
	if !ok {
		return model.TrustLink{}, fmt.Errorf("missing signature part: %w", errs.ErrMalformedToken)
	}
	body, err := b64.DecodeString(bodyPart)
	if err != nil {
		return model.TrustLink{}, fmt.Errorf("payload base64: %w", errs.ErrMalformedToken)
	}
	sig, err := b64.DecodeString(sigPart)
	if err != nil {
		return model.TrustLink{}, fmt.Errorf("signature base64: %w", errs.ErrMalformedToken)
	}
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return model.TrustLink{}, fmt.Errorf("payload json: %w", errs.ErrMalformedToken)
	}
	if p.FromAgent == "" || p.ToAgent == "" || p.UserID == "" || p.Scope == "" || p.Nonce == "" {
		return model.TrustLink{}, fmt.Errorf("empty payload field: %w", errs.ErrMalformedToken)
	}
	return model.TrustLink{
		FromAgent: p.FromAgent,
		ToAgent:   p.ToAgent,
		UserID:    p.UserID,
		Scope:     scope.Scope(p.Scope),
		IssuedAt:  time.UnixMilli(p.IssuedAt),
		ExpiresAt: time.UnixMilli(p.ExpiresAt),
		Context:   p.Context,
		Nonce:     p.Nonce,
		Signature: sig,
	}, nil
}
