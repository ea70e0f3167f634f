package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/citybus/internal/repository"
)

var serializableRW = pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}

func TestStore_RunTx_Commit(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectBeginTx(serializableRW)
	mock.ExpectQuery(q("array_append")).
		WithArgs(int64(1), 2).
		WillReturnRows(pgxmock.NewRows([]string{"available_seats"}).AddRow(9))
	mock.ExpectCommit()

	err := store.RunTx(context.Background(), nil, func(ctx context.Context, tx DB) error {
		_, err := store.Trips().With(tx).ReserveSeat(ctx, 1, 2)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RunTx_RollbackOnError(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectBeginTx(serializableRW)
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.RunTx(context.Background(), nil, func(ctx context.Context, tx DB) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RunTx_Options(t *testing.T) {
	mock, store := newMock(t)

	ro := pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}
	mock.ExpectBeginTx(ro)
	mock.ExpectCommit()

	err := store.RunTx(context.Background(), &ro, func(ctx context.Context, tx DB) error {
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"})))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryable(errors.New("other")))
}

func TestTranslateDBErr(t *testing.T) {
	assert.Nil(t, translateDBErr(nil))
	assert.ErrorIs(t, translateDBErr(pgx.ErrNoRows), repository.ErrNotFound)
	assert.ErrorIs(t, translateDBErr(&pgconn.PgError{Code: "23505"}), repository.ErrConflict)
	assert.ErrorIs(t, translateDBErr(&pgconn.PgError{Code: "23514"}), repository.ErrConflict)
	assert.ErrorIs(t,
		translateDBErr(&pgconn.PgError{Code: "23505", ConstraintName: "bookings_trip_seat_confirmed_uq"}),
		repository.ErrSeatUnavailable,
	)

	other := errors.New("io")
	assert.Equal(t, other, translateDBErr(other))
}
