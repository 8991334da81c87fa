// Package repository declares storage interfaces implemented by backends.
package repository

import (
	"context"

	"github.com/agentmesh/trustcore/internal/model"
)

// VaultRecordRepository persists encrypted vault records addressed by
// (user_id, agent_id, record_type, record_id).
type VaultRecordRepository interface {
	// Upsert inserts the record or overwrites the existing row at the same
	// address, refreshing updated_at. Returns the stored record with
	// timestamps populated.
	Upsert(ctx context.Context, rec *model.VaultRecord) (*model.VaultRecord, error)

	// Get returns the record at the address, or errs.ErrNotFound.
	Get(ctx context.Context, userID, agentID, recordType, recordID string) (*model.VaultRecord, error)

	// Delete removes the record at the address. Deleting an absent record is
	// not an error.
	Delete(ctx context.Context, userID, agentID, recordType, recordID string) error
}
