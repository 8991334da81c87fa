package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/agentmesh/trustcore/internal/errs"
	"github.com/agentmesh/trustcore/internal/model"
	"github.com/agentmesh/trustcore/internal/scope"
)

// RecordRepo implements VaultRecordRepository using PostgreSQL.
type RecordRepo struct{ db *DB }

// NewRecordRepo constructs a vault record repository.
func NewRecordRepo(db *DB) *RecordRepo { return &RecordRepo{db: db} }

// Upsert inserts or overwrites the record at its address. updated_at moves on
// every overwrite; created_at is set once.
func (r *RecordRepo) Upsert(ctx context.Context, rec *model.VaultRecord) (*model.VaultRecord, error) {
	const q = `
INSERT INTO vault_records
  (user_id, agent_id, record_type, record_id, scope, ciphertext, iv, tag, algorithm, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
ON CONFLICT (user_id, agent_id, record_type, record_id) DO UPDATE
SET scope=EXCLUDED.scope, ciphertext=EXCLUDED.ciphertext, iv=EXCLUDED.iv,
    tag=EXCLUDED.tag, algorithm=EXCLUDED.algorithm, updated_at=now()
RETURNING created_at, updated_at`
	row := r.db.Pool.QueryRow(ctx, q,
		rec.UserID, rec.AgentID, rec.RecordType, rec.RecordID,
		string(rec.Scope), rec.Ciphertext, rec.IV, rec.Tag, rec.Algorithm)
	out := *rec
	if err := row.Scan(&out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns the record at the address.
func (r *RecordRepo) Get(ctx context.Context, userID, agentID, recordType, recordID string) (*model.VaultRecord, error) {
	const q = `
SELECT user_id, agent_id, record_type, record_id, scope, ciphertext, iv, tag, algorithm, created_at, updated_at
FROM vault_records
WHERE user_id=$1 AND agent_id=$2 AND record_type=$3 AND record_id=$4`
	row := r.db.Pool.QueryRow(ctx, q, userID, agentID, recordType, recordID)
	var rec model.VaultRecord
	var sc string
	err := row.Scan(&rec.UserID, &rec.AgentID, &rec.RecordType, &rec.RecordID,
		&sc, &rec.Ciphertext, &rec.IV, &rec.Tag, &rec.Algorithm, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	rec.Scope = scope.Scope(sc)
	return &rec, nil
}

// Delete removes the record at the address; absent rows are a no-op.
func (r *RecordRepo) Delete(ctx context.Context, userID, agentID, recordType, recordID string) error {
	const q = `
DELETE FROM vault_records
WHERE user_id=$1 AND agent_id=$2 AND record_type=$3 AND record_id=$4`
	_, err := r.db.Pool.Exec(ctx, q, userID, agentID, recordType, recordID)
	return err
}
