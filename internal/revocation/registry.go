// Package revocation tracks invalidated token and trust-link identities.
// It is the only shared mutable state in the core and must provide
// read-after-write consistency: an Add that completes before a Contains
// begins is always observed.
package revocation

import (
	"context"
	"sync"
	"time"
)

// Registry is consulted on every token and trust-link validation.
type Registry interface {
	// Add marks id as revoked. expiresAt is the natural expiry of the
	// underlying grant, used to bound registry growth. Idempotent.
	Add(ctx context.Context, id string, expiresAt time.Time) error
	// Contains reports whether id has been revoked.
	Contains(ctx context.Context, id string) (bool, error)
	// PurgeExpired drops entries whose grant would have expired by now anyway
	// and returns the number removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Memory is an in-process Registry for tests and single-replica runs.
// Multi-replica deployments need the PostgreSQL-backed registry so no
// replica validates against a stale view.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]time.Time // id -> grant expiry
}

// NewMemory constructs an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]time.Time)}
}

// Add marks id as revoked.
func (m *Memory) Add(_ context.Context, id string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = expiresAt
	return nil
}

// Contains reports whether id has been revoked.
func (m *Memory) Contains(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[id]
	return ok, nil
}

// PurgeExpired removes entries whose grant expiry has passed.
func (m *Memory) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, exp := range m.entries {
		if !now.Before(exp) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}
