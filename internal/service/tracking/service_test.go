package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/citybus/internal/domain"
	postgresrepo "github.com/kirinyoku/citybus/internal/repository/postgres"
	"github.com/kirinyoku/citybus/internal/repository/postgres/postgrestest"
	redisrepo "github.com/kirinyoku/citybus/internal/repository/redis"
)

var (
	q              = postgrestest.Q
	serializableRW = pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}
	// 08:30 on the local clock
	now = time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	ist = time.FixedZone("IST", 5*3600+1800)
)

func newService(t *testing.T) (pgxmock.PgxPoolIface, *miniredis.Miniredis, *Service) {
	t.Helper()

	mock := postgrestest.NewPool(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	svc := New(
		postgresrepo.NewStore(mock),
		redisrepo.New(rdb),
		redisrepo.NewTripsPubSub(rdb),
		nil,
		Config{Location: ist, Now: func() time.Time { return now }},
	)

	return mock, mr, svc
}

func testTrip() *domain.Trip {
	return &domain.Trip{
		ID: 7, BusName: "City Express", BusNumber: "MH12AB1234", TrackingNumber: "PU0042",
		City: "Pune", From: "Swargate", To: "Hinjewadi", BusType: domain.BusAC,
		DepartureTime: domain.MustTimeOfDay("08:00"), ArrivalTime: domain.MustTimeOfDay("09:15"),
		TotalSeats: 30, Fare: 100, Status: domain.TripRunning, DelayMinutes: 10,
		RouteStops: []domain.RouteStop{
			{Stand: "Swargate", ScheduledArrival: domain.MustTimeOfDay("08:00"), Status: domain.StopDeparted},
			{Stand: "Shivajinagar", ScheduledArrival: domain.MustTimeOfDay("08:20"), Status: domain.StopPending},
			{Stand: "Aundh", ScheduledArrival: domain.MustTimeOfDay("08:45"), Status: domain.StopPending},
			{Stand: "Hinjewadi", ScheduledArrival: domain.MustTimeOfDay("09:15"), Status: domain.StopPending},
		},
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
}

func TestService_TrackBus(t *testing.T) {
	mock, mr, svc := newService(t)

	mock.ExpectQuery(q("FROM trips WHERE tracking_number = $1")).
		WithArgs("PU0042").
		WillReturnRows(postgrestest.TripRows(t, testTrip()))

	view, err := svc.TrackBus(context.Background(), " pu0042 ")
	require.NoError(t, err)

	assert.Equal(t, "PU0042", view.Bus.TrackingNumber)
	assert.Equal(t, domain.TripRunning, view.Bus.Status)

	require.Len(t, view.RouteStops, 4)
	assert.Equal(t, "08:30", view.RouteStops[1].EstimatedArrival.String())

	// Swargate departed, Shivajinagar scheduled before 08:30
	require.Len(t, view.NextStops, 2)
	assert.Equal(t, "Aundh", view.NextStops[0].Stand)

	assert.Equal(t, "09:25", view.Schedule.EstimatedArrival.String())
	assert.True(t, mr.Exists(redisrepo.KeyTrackingView("PU0042")))

	// second read is served from cache
	_, err = svc.TrackBus(context.Background(), "PU0042")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_TrackBus_NotFound(t *testing.T) {
	mock, _, svc := newService(t)

	mock.ExpectQuery(q("FROM trips WHERE tracking_number = $1")).
		WillReturnRows(pgxmock.NewRows(postgrestest.TripColumns))

	_, err := svc.TrackBus(context.Background(), "XX0000")
	assert.ErrorIs(t, err, ErrBusNotFound)
}

func TestService_Route(t *testing.T) {
	mock, _, svc := newService(t)

	mock.ExpectQuery(q("FROM trips WHERE tracking_number = $1")).
		WillReturnRows(postgrestest.TripRows(t, testTrip()))

	r, err := svc.Route(context.Background(), "PU0042")
	require.NoError(t, err)
	assert.Equal(t, 10, r.DelayMinutes)
	assert.Len(t, r.RouteStops, 4)
}

func TestService_CityBuses(t *testing.T) {
	mock, _, svc := newService(t)

	mock.ExpectQuery(q("WHERE is_active")).
		WithArgs("pune", "", "").
		WillReturnRows(postgrestest.TripRows(t, testTrip()))

	out, err := svc.CityBuses(context.Background(), "pune")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "MH12AB1234", out[0].BusNumber)

	_, err = svc.CityBuses(context.Background(), " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_UpdateLocation(t *testing.T) {
	mock, mr, svc := newService(t)

	require.NoError(t, mr.Set(redisrepo.KeyTrackingView("PU0042"), "{}"))

	mock.ExpectQuery(q("SET current_location = $2")).
		WithArgs("PU0042", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	loc, err := svc.UpdateLocation(context.Background(), "pu0042", "Aundh", 18.56, 73.81)
	require.NoError(t, err)

	assert.Equal(t, "Aundh", loc.Stand)
	assert.Equal(t, now, loc.UpdatedAt)
	assert.False(t, mr.Exists(redisrepo.KeyTrackingView("PU0042")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_UpdateLocation_Invalid(t *testing.T) {
	_, _, svc := newService(t)

	_, err := svc.UpdateLocation(context.Background(), "PU0042", "Aundh", 91, 0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdateLocation(context.Background(), "PU0042", "", 0, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_UpdateStatus(t *testing.T) {
	mock, _, svc := newService(t)

	mock.ExpectQuery(q("SET current_status = $2, delay_minutes = $3")).
		WithArgs("PU0042", "delayed", 15).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	require.NoError(t, svc.UpdateStatus(context.Background(), "PU0042", domain.TripDelayed, 15))

	// any status may follow any other
	mock.ExpectQuery(q("SET current_status = $2, delay_minutes = $3")).
		WithArgs("PU0042", "not_started", 0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	require.NoError(t, svc.UpdateStatus(context.Background(), "PU0042", domain.TripNotStarted, 0))

	mock.ExpectQuery(q("SET current_status = $2")).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	err := svc.UpdateStatus(context.Background(), "XX0000", domain.TripRunning, 0)
	assert.ErrorIs(t, err, ErrBusNotFound)

	assert.ErrorIs(t, svc.UpdateStatus(context.Background(), "PU0042", "parked", 0), ErrValidation)
	assert.ErrorIs(t, svc.UpdateStatus(context.Background(), "PU0042", domain.TripDelayed, -5), ErrValidation)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_UpdateStopStatus(t *testing.T) {
	mock, _, svc := newService(t)
	arrived := domain.MustTimeOfDay("08:27")

	mock.ExpectBeginTx(serializableRW)
	mock.ExpectQuery(q("FROM trips WHERE tracking_number = $1")).
		WithArgs("PU0042").
		WillReturnRows(postgrestest.TripRows(t, testTrip()))
	mock.ExpectExec(q("SET route_stops = $2")).
		WithArgs(int64(7), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	route, err := svc.UpdateStopStatus(context.Background(), "PU0042", "Shivajinagar", domain.StopArrived, &arrived)
	require.NoError(t, err)

	assert.Equal(t, domain.StopArrived, route[1].Status)
	require.NotNil(t, route[1].ActualArrival)
	assert.Equal(t, "08:27", route[1].ActualArrival.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_UpdateStopStatus_Rejected(t *testing.T) {
	cases := []struct {
		name   string
		stand  string
		status domain.StopStatus
		want   error
	}{
		{"regression", "Swargate", domain.StopPending, ErrStopRegression},
		{"unknown stand", "Katraj", domain.StopArrived, ErrStopNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock, _, svc := newService(t)

			mock.ExpectBeginTx(serializableRW)
			mock.ExpectQuery(q("FROM trips WHERE tracking_number = $1")).
				WillReturnRows(postgrestest.TripRows(t, testTrip()))
			mock.ExpectRollback()

			_, err := svc.UpdateStopStatus(context.Background(), "PU0042", tc.stand, tc.status, nil)
			assert.ErrorIs(t, err, tc.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	_, _, svc := newService(t)
	_, err := svc.UpdateStopStatus(context.Background(), "PU0042", "Aundh", "teleported", nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_UpdateStopStatus_InactiveTrip(t *testing.T) {
	mock, _, svc := newService(t)

	trip := testTrip()
	trip.IsActive = false

	mock.ExpectBeginTx(serializableRW)
	mock.ExpectQuery(q("FROM trips WHERE tracking_number = $1")).
		WithArgs("PU0042").
		WillReturnRows(postgrestest.TripRows(t, trip))
	mock.ExpectRollback()

	_, err := svc.UpdateStopStatus(context.Background(), "PU0042", "Shivajinagar", domain.StopArrived, nil)
	assert.ErrorIs(t, err, ErrBusNotFound)
	// the route is left untouched
	assert.NoError(t, mock.ExpectationsWereMet())
}
