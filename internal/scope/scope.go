// Package scope defines the closed registry of consent scopes. Every permission
// check in the core resolves against this enumeration; raw strings from callers
// must pass through Parse before reaching signing or validation logic.
package scope

import (
	"fmt"

	"github.com/agentmesh/trustcore/internal/errs"
)

// Scope is an enumerated permission identifier. Values are stable wire
// constants; adding one requires a registry update here.
type Scope string

const (
	VaultReadEmail     Scope = "vault.read.email"
	VaultWriteEmail    Scope = "vault.write.email"
	VaultReadCalendar  Scope = "vault.read.calendar"
	VaultWriteCalendar Scope = "vault.write.calendar"
	VaultReadFinance   Scope = "vault.read.finance"
	VaultWriteFinance  Scope = "vault.write.finance"
	VaultReadMemory    Scope = "vault.read.memory"
	VaultWriteMemory   Scope = "vault.write.memory"
	VaultReadCampaign  Scope = "vault.read.campaign"
	VaultWriteCampaign Scope = "vault.write.campaign"
	CustomTemporary    Scope = "custom.temporary"
)

// RegistryVersion identifies the scope set; bumped whenever a scope is added.
const RegistryVersion = "v1"

var registry = map[Scope]struct{}{
	VaultReadEmail:     {},
	VaultWriteEmail:    {},
	VaultReadCalendar:  {},
	VaultWriteCalendar: {},
	VaultReadFinance:   {},
	VaultWriteFinance:  {},
	VaultReadMemory:    {},
	VaultWriteMemory:   {},
	VaultReadCampaign:  {},
	VaultWriteCampaign: {},
	CustomTemporary:    {},
}

// Known reports whether s is a member of the registry.
func Known(s Scope) bool {
	_, ok := registry[s]
	return ok
}

// Parse maps an untrusted raw string to a registered Scope.
// Unrecognized values fail with ErrUnknownScope before any signing logic sees them.
func Parse(raw string) (Scope, error) {
	s := Scope(raw)
	if !Known(s) {
		return "", fmt.Errorf("scope %q: %w", raw, errs.ErrUnknownScope)
	}
	return s, nil
}

// All returns the registered scopes (order unspecified).
func All() []Scope {
	out := make([]Scope, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	return out
}
