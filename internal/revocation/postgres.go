package revocation

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed Registry. Backing the registry with a single
// shared table keeps every server replica's view of revocations consistent.
type PG struct {
	pool pgxQuerier
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed registry.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

// NewPGWithQuerier constructs a PostgreSQL-backed registry over any querier.
func NewPGWithQuerier(q pgxQuerier) *PG {
	return &PG{pool: q}
}

// Add inserts the revoked identity; re-revoking is a no-op.
func (r *PG) Add(ctx context.Context, id string, expiresAt time.Time) error {
	const q = `
INSERT INTO revocations (id, expires_at, revoked_at)
VALUES ($1, $2, now())
ON CONFLICT (id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, id, expiresAt)
	return err
}

// Contains reports whether id has been revoked.
func (r *PG) Contains(ctx context.Context, id string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM revocations WHERE id=$1)`
	var ok bool
	if err := r.pool.QueryRow(ctx, q, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// PurgeExpired deletes entries for grants that have expired anyway.
func (r *PG) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM revocations WHERE expires_at <= $1`
	tag, err := r.pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
