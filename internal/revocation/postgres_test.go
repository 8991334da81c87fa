package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return mock
}

func TestPG_Add(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	r := NewPGWithQuerier(mock)

	exp := time.Now().Add(time.Hour)
	mock.ExpectExec(`INSERT INTO revocations`).
		WithArgs("id-1", exp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, r.Add(context.Background(), "id-1", exp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPG_Add_Idempotent(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	r := NewPGWithQuerier(mock)

	exp := time.Now().Add(time.Hour)
	// conflict path affects zero rows but is not an error
	mock.ExpectExec(`INSERT INTO revocations`).
		WithArgs("id-1", exp).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, r.Add(context.Background(), "id-1", exp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPG_Contains(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	r := NewPGWithQuerier(mock)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM revocations WHERE id=\$1\)`).
		WithArgs("id-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := r.Contains(context.Background(), "id-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPG_Contains_Error(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	r := NewPGWithQuerier(mock)

	boom := errors.New("connection refused")
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("id-1").
		WillReturnError(boom)

	_, err := r.Contains(context.Background(), "id-1")
	require.ErrorIs(t, err, boom)
}

func TestPG_PurgeExpired(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	r := NewPGWithQuerier(mock)

	now := time.Now()
	mock.ExpectExec(`DELETE FROM revocations WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := r.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
