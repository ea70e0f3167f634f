package passes

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/citybus/internal/domain"
	postgresrepo "github.com/kirinyoku/citybus/internal/repository/postgres"
	"github.com/kirinyoku/citybus/internal/repository/postgres/postgrestest"
)

var (
	q    = postgrestest.Q
	from = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

type zeroRandom struct{}

func (zeroRandom) IntN(int) int { return 0 }

func newService(t *testing.T, now time.Time) (pgxmock.PgxPoolIface, *Service) {
	t.Helper()

	mock := postgrestest.NewPool(t)
	svc := New(postgresrepo.NewStore(mock), nil, Config{
		Now: func() time.Time { return now },
		IDs: domain.NewIDGenerator(zeroRandom{}),
	})

	return mock, svc
}

func testPass(userID uuid.UUID) *domain.BusPass {
	p, _ := domain.NewBusPass(userID, domain.PassDaily, "Pune", from, "PASS_AAAAAAAAAAAAAAAAAAAAAAAA")
	p.CreatedAt = from
	return p
}

func TestService_Create(t *testing.T) {
	mock, svc := newService(t, from)
	userID := uuid.New()

	mock.ExpectQuery(q("ON CONFLICT (qr_token) DO NOTHING")).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}))
	mock.ExpectQuery(q("ON CONFLICT (qr_token) DO NOTHING")).
		WithArgs(pgxmock.AnyArg(), userID, "daily", "Pune", from, from.AddDate(0, 0, 1),
			int64(50), "active", 0, 10, "PASS_AAAAAAAAAAAAAAAAAAAAAAAA").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(from))

	p, err := svc.Create(context.Background(), userID, domain.PassDaily, " Pune ", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, from.AddDate(0, 0, 1), p.ValidTo)
	assert.Equal(t, int64(50), p.Price)
	assert.Equal(t, 10, p.MaxUsage)
	assert.Equal(t, domain.PassActive, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Create_Invalid(t *testing.T) {
	_, svc := newService(t, from)

	_, err := svc.Create(context.Background(), uuid.New(), "hourly", "Pune", from)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), uuid.New(), domain.PassWeekly, " ", from)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_Create_Exhausted(t *testing.T) {
	mock, svc := newService(t, from)

	for range MaxIdentifierAttempts {
		mock.ExpectQuery(q("INSERT INTO bus_passes")).
			WillReturnRows(pgxmock.NewRows([]string{"created_at"}))
	}

	_, err := svc.Create(context.Background(), uuid.New(), domain.PassDaily, "Pune", from)
	assert.ErrorIs(t, err, ErrIdentifierExhausted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Get(t *testing.T) {
	userID := uuid.New()
	p := testPass(userID)

	t.Run("elapsed pass reads as expired", func(t *testing.T) {
		mock, svc := newService(t, from.Add(48*time.Hour))

		mock.ExpectQuery(q("FROM bus_passes WHERE id = $1")).
			WithArgs(p.ID).
			WillReturnRows(postgrestest.PassRows(p))

		got, err := svc.Get(context.Background(), p.ID, userID)
		require.NoError(t, err)
		assert.Equal(t, domain.PassExpired, got.Status)
	})

	t.Run("other user", func(t *testing.T) {
		mock, svc := newService(t, from)

		mock.ExpectQuery(q("FROM bus_passes WHERE id = $1")).
			WillReturnRows(postgrestest.PassRows(p))

		_, err := svc.Get(context.Background(), p.ID, uuid.New())
		assert.ErrorIs(t, err, ErrPassNotFound)
	})
}

func TestService_Validate(t *testing.T) {
	userID := uuid.New()
	p := testPass(userID)
	p.UsageCount = 4

	mock, svc := newService(t, from.Add(time.Hour))

	mock.ExpectQuery(q("FROM bus_passes WHERE id = $1")).
		WillReturnRows(postgrestest.PassRows(p))

	v, err := svc.Validate(context.Background(), p.ID, userID)
	require.NoError(t, err)

	assert.True(t, v.Valid)
	assert.Equal(t, domain.PassActive, v.Status)
	require.NotNil(t, v.RemainingUsage)
	assert.Equal(t, 6, *v.RemainingUsage)
}

func TestService_Use(t *testing.T) {
	userID := uuid.New()
	p := testPass(userID)
	now := from.Add(time.Hour)

	t.Run("counted", func(t *testing.T) {
		mock, svc := newService(t, now)

		mock.ExpectQuery(q("SET usage_count = usage_count + 1")).
			WithArgs(p.ID, userID, now).
			WillReturnRows(pgxmock.NewRows([]string{"usage_count", "max_usage"}).AddRow(10, 10))

		u, err := svc.Use(context.Background(), p.ID, userID)
		require.NoError(t, err)
		assert.Equal(t, 10, u.UsageCount)
		require.NotNil(t, u.RemainingUsage)
		assert.Equal(t, 0, *u.RemainingUsage)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("used up", func(t *testing.T) {
		mock, svc := newService(t, now)

		spent := *p
		spent.UsageCount = 10

		mock.ExpectQuery(q("SET usage_count = usage_count + 1")).
			WillReturnRows(pgxmock.NewRows([]string{"usage_count", "max_usage"}))
		mock.ExpectQuery(q("FROM bus_passes WHERE id = $1")).
			WillReturnRows(postgrestest.PassRows(&spent))

		_, err := svc.Use(context.Background(), p.ID, userID)
		assert.ErrorIs(t, err, ErrPassInvalid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown pass", func(t *testing.T) {
		mock, svc := newService(t, now)

		mock.ExpectQuery(q("SET usage_count = usage_count + 1")).
			WillReturnRows(pgxmock.NewRows([]string{"usage_count", "max_usage"}))
		mock.ExpectQuery(q("FROM bus_passes WHERE id = $1")).
			WillReturnRows(pgxmock.NewRows(postgrestest.PassColumns))

		_, err := svc.Use(context.Background(), uuid.New(), userID)
		assert.ErrorIs(t, err, ErrPassNotFound)
	})

	t.Run("unlimited", func(t *testing.T) {
		mock, svc := newService(t, now)

		mock.ExpectQuery(q("SET usage_count = usage_count + 1")).
			WillReturnRows(pgxmock.NewRows([]string{"usage_count", "max_usage"}).AddRow(99, 0))

		u, err := svc.Use(context.Background(), p.ID, userID)
		require.NoError(t, err)
		assert.Nil(t, u.RemainingUsage)
	})
}

func TestService_Cancel(t *testing.T) {
	userID := uuid.New()
	p := testPass(userID)

	t.Run("active", func(t *testing.T) {
		mock, svc := newService(t, from)

		mock.ExpectExec(q("SET status = 'cancelled'")).
			WithArgs(p.ID, userID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, svc.Cancel(context.Background(), p.ID, userID))
	})

	t.Run("already cancelled", func(t *testing.T) {
		mock, svc := newService(t, from)

		cancelled := *p
		cancelled.Status = domain.PassCancelled

		mock.ExpectExec(q("SET status = 'cancelled'")).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(q("FROM bus_passes WHERE id = $1")).
			WillReturnRows(postgrestest.PassRows(&cancelled))

		assert.ErrorIs(t, svc.Cancel(context.Background(), p.ID, userID), ErrPassNotActive)
	})
}

func TestService_ExpireOverdue(t *testing.T) {
	now := from.Add(72 * time.Hour)
	mock, svc := newService(t, now)

	mock.ExpectExec(q("SET status = 'expired'")).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
