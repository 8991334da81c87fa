package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/trustcore/internal/errs"
	"github.com/agentmesh/trustcore/internal/model"
	"github.com/agentmesh/trustcore/internal/scope"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func sampleRecord() *model.VaultRecord {
	return &model.VaultRecord{
		UserID:     "u1",
		AgentID:    "a1",
		RecordType: "note",
		RecordID:   "n1",
		Scope:      scope.VaultWriteMemory,
		Ciphertext: []byte("ct"),
		IV:         []byte("iv"),
		Tag:        []byte("tag"),
		Algorithm:  "AES-256-GCM-v1",
	}
}

func TestRecordRepo_Upsert_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRecordRepo(db)

	rec := sampleRecord()
	created := time.Now().Add(-time.Hour)
	updated := time.Now()

	mock.ExpectQuery(`INSERT INTO vault_records`).
		WithArgs(rec.UserID, rec.AgentID, rec.RecordType, rec.RecordID,
			string(rec.Scope), rec.Ciphertext, rec.IV, rec.Tag, rec.Algorithm).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, updated))

	out, err := r.Upsert(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, created, out.CreatedAt)
	require.Equal(t, updated, out.UpdatedAt)
	require.Equal(t, rec.Ciphertext, out.Ciphertext)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_Upsert_Error(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRecordRepo(db)

	rec := sampleRecord()
	boom := errors.New("connection refused")
	mock.ExpectQuery(`INSERT INTO vault_records`).
		WithArgs(rec.UserID, rec.AgentID, rec.RecordType, rec.RecordID,
			string(rec.Scope), rec.Ciphertext, rec.IV, rec.Tag, rec.Algorithm).
		WillReturnError(boom)

	_, err := r.Upsert(context.Background(), rec)
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_Get_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRecordRepo(db)

	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"user_id", "agent_id", "record_type", "record_id", "scope",
		"ciphertext", "iv", "tag", "algorithm", "created_at", "updated_at",
	}).AddRow("u1", "a1", "note", "n1", "vault.write.memory",
		[]byte("ct"), []byte("iv"), []byte("tag"), "AES-256-GCM-v1", now, now)

	mock.ExpectQuery(`SELECT user_id, agent_id, record_type, record_id, scope, ciphertext, iv, tag, algorithm, created_at, updated_at`).
		WithArgs("u1", "a1", "note", "n1").
		WillReturnRows(rows)

	rec, err := r.Get(context.Background(), "u1", "a1", "note", "n1")
	require.NoError(t, err)
	require.Equal(t, scope.VaultWriteMemory, rec.Scope)
	require.Equal(t, []byte("ct"), rec.Ciphertext)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepo_Get_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRecordRepo(db)

	mock.ExpectQuery(`SELECT user_id, agent_id`).
		WithArgs("u1", "a1", "note", "missing").
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}))

	_, err := r.Get(context.Background(), "u1", "a1", "note", "missing")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRecordRepo_Delete_Idempotent(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRecordRepo(db)

	mock.ExpectExec(`DELETE FROM vault_records`).
		WithArgs("u1", "a1", "note", "n1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	// zero rows affected is still success
	require.NoError(t, r.Delete(context.Background(), "u1", "a1", "note", "n1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
