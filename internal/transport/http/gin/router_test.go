package httpgin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/citybus/internal/auth"
	"github.com/kirinyoku/citybus/internal/domain"
	postgresrepo "github.com/kirinyoku/citybus/internal/repository/postgres"
	"github.com/kirinyoku/citybus/internal/repository/postgres/postgrestest"
	redisrepo "github.com/kirinyoku/citybus/internal/repository/redis"
	"github.com/kirinyoku/citybus/internal/service"
	"github.com/kirinyoku/citybus/internal/service/booking"
	"github.com/kirinyoku/citybus/internal/service/passes"
	"github.com/kirinyoku/citybus/internal/service/tracking"
	"github.com/kirinyoku/citybus/internal/service/trips"
)

var (
	q              = postgrestest.Q
	serializableRW = pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}
	now            = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type zeroRandom struct{}

func (zeroRandom) IntN(int) int { return 0 }

type server struct {
	mock   pgxmock.PgxPoolIface
	mr     *miniredis.Miniredis
	svcs   *service.Services
	tokens *auth.Tokens
	logger *slog.Logger
	router *gin.Engine
}

func newServer(t *testing.T) *server {
	t.Helper()

	mock := postgrestest.NewPool(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := func() time.Time { return now }
	ids := domain.NewIDGenerator(zeroRandom{})

	svcs := service.NewServices(
		postgresrepo.NewStore(mock),
		redisrepo.New(rdb),
		redisrepo.NewTripsPubSub(rdb),
		redisrepo.NewBookingLimiter(rdb, 10, time.Minute),
		nil,
		service.Config{
			Booking: booking.Config{Now: clock, IDs: ids},
			Trips:   trips.Config{IDs: ids},
			Passes:  passes.Config{Now: clock, IDs: ids},
		},
	)

	tokens := auth.NewTokens("test-secret", "citybus", time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &server{
		mock:   mock,
		mr:     mr,
		svcs:   svcs,
		tokens: tokens,
		logger: logger,
		router: NewRouter(svcs, redisrepo.NewIdempotencyStore(rdb, time.Hour), tokens, logger),
	}
}

func (s *server) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *server) token(t *testing.T, userID uuid.UUID, roles ...string) string {
	t.Helper()

	tok, err := s.tokens.Issue(userID, roles...)
	require.NoError(t, err)
	return tok
}

func testTrip() *domain.Trip {
	return &domain.Trip{
		ID: 7, BusName: "City Express", BusNumber: "MH12AB1234", TrackingNumber: "PU0042",
		City: "Pune", From: "Swargate", To: "Hinjewadi", BusType: domain.BusAC,
		DepartureTime: domain.MustTimeOfDay("08:00"), ArrivalTime: domain.MustTimeOfDay("09:15"),
		TotalSeats: 30, BookedSeats: []int{3}, Fare: 100, Status: domain.TripNotStarted,
		RouteStops: []domain.RouteStop{
			{Stand: "Swargate", ScheduledArrival: domain.MustTimeOfDay("08:00"), Status: domain.StopPending},
			{Stand: "Hinjewadi", ScheduledArrival: domain.MustTimeOfDay("09:15"), Status: domain.StopPending},
		},
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
}

func TestHealthz(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestGetTrip_ETag(t *testing.T) {
	s := newServer(t)

	s.mock.ExpectQuery(q("FROM trips WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(postgrestest.TripRows(t, testTrip()))

	w := s.do(t, http.MethodGet, "/trips/7", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got domain.Trip
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "PU0042", got.TrackingNumber)
	assert.Equal(t, cacheTrip, w.Header().Get("Cache-Control"))

	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)

	// served from cache, no second query
	w = s.do(t, http.MethodGet, "/trips/7", "", nil, "If-None-Match", tag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.Bytes())
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestGetTrip_Errors(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodGet, "/trips/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.mock.ExpectQuery(q("FROM trips WHERE id = $1")).
		WillReturnRows(pgxmock.NewRows(postgrestest.TripColumns))

	w = s.do(t, http.MethodGet, "/trips/9", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"trip not found"}`, w.Body.String())
}

func TestCreateBooking_Idempotent(t *testing.T) {
	s := newServer(t)
	userID := uuid.New()
	tok := s.token(t, userID)

	s.mock.ExpectBeginTx(serializableRW)
	s.mock.ExpectQuery(q("FROM trips WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(postgrestest.TripRows(t, testTrip()))
	s.mock.ExpectQuery(q("SET booked_seats = array_append(booked_seats, $2)")).
		WithArgs(int64(7), 5).
		WillReturnRows(pgxmock.NewRows([]string{"available_seats"}).AddRow(28))
	s.mock.ExpectQuery(q("ON CONFLICT (pnr) DO NOTHING")).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	s.mock.ExpectCommit()

	body := CreateBookingRequest{
		TripID:     7,
		SeatNumber: 5,
		TravelDate: "2024-05-04",
		Passenger:  PassengerInput{Name: "Asha", Phone: "9800000000"},
	}

	w := s.do(t, http.MethodPost, "/bookings", tok, body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "k-1", w.Header().Get("Idempotency-Key"))

	var first domain.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, "A000000000", first.PNR)
	assert.Equal(t, userID, first.UserID)
	assert.Equal(t, domain.PaymentCash, first.PaymentMethod)

	// the retry replays the stored response without touching the database
	w = s.do(t, http.MethodPost, "/bookings", tok, body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, w.Code)

	var replayed domain.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &replayed))
	assert.Equal(t, first.ID, replayed.ID)
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestCreateBooking_SeatTakenReleasesKey(t *testing.T) {
	s := newServer(t)
	userID := uuid.New()

	s.mock.ExpectBeginTx(serializableRW)
	s.mock.ExpectQuery(q("FROM trips WHERE id = $1")).
		WillReturnRows(postgrestest.TripRows(t, testTrip()))
	s.mock.ExpectRollback()

	body := CreateBookingRequest{
		TripID: 7, SeatNumber: 3, TravelDate: "2024-05-04",
		Passenger: PassengerInput{Name: "Asha"},
	}

	w := s.do(t, http.MethodPost, "/bookings", s.token(t, userID), body, "Idempotency-Key", "k-2")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, s.mr.Exists(redisrepo.KeyIdemBooking(userID, "k-2")))
}

func TestCreateBooking_IdempotencyStoreDown(t *testing.T) {
	s := newServer(t)
	userID := uuid.New()

	down := miniredis.NewMiniRedis()
	require.NoError(t, down.Start())
	addr := down.Addr()
	down.Close()

	idemRDB := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	t.Cleanup(func() { _ = idemRDB.Close() })
	s.router = NewRouter(s.svcs, redisrepo.NewIdempotencyStore(idemRDB, time.Hour), s.tokens, s.logger)

	s.mock.ExpectBeginTx(serializableRW)
	s.mock.ExpectQuery(q("FROM trips WHERE id = $1")).
		WillReturnRows(postgrestest.TripRows(t, testTrip()))
	s.mock.ExpectQuery(q("SET booked_seats = array_append(booked_seats, $2)")).
		WithArgs(int64(7), 5).
		WillReturnRows(pgxmock.NewRows([]string{"available_seats"}).AddRow(28))
	s.mock.ExpectQuery(q("ON CONFLICT (pnr) DO NOTHING")).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	s.mock.ExpectCommit()

	body := CreateBookingRequest{
		TripID: 7, SeatNumber: 5, TravelDate: "2024-05-04",
		Passenger: PassengerInput{Name: "Asha"},
	}

	w := s.do(t, http.MethodPost, "/bookings", s.token(t, userID), body, "Idempotency-Key", "k-3")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	// no replay protection was in place, so the key is not echoed
	assert.Empty(t, w.Header().Get("Idempotency-Key"))
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestCreateTrip_RequiresTimes(t *testing.T) {
	s := newServer(t)
	admin := s.token(t, uuid.New(), auth.RoleAdmin)

	trip := func() map[string]any {
		return map[string]any{
			"bus_name": "City Express", "bus_number": "MH12AB1234", "city": "Pune",
			"from": "Swargate", "to": "Hinjewadi", "bus_type": "AC",
			"departure_time": "08:00", "arrival_time": "09:15", "total_seats": 30, "fare": 100,
			"route_stops": []map[string]any{
				{"stand": "Swargate", "scheduled_arrival": "08:00"},
				{"stand": "Hinjewadi", "scheduled_arrival": "09:15"},
			},
		}
	}

	noDeparture := trip()
	delete(noDeparture, "departure_time")

	noArrival := trip()
	delete(noArrival, "arrival_time")

	noStopTime := trip()
	noStopTime["route_stops"] = []map[string]any{{"stand": "Swargate"}}

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing departure_time", noDeparture},
		{"missing arrival_time", noArrival},
		{"missing scheduled_arrival", noStopTime},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/admin/trips", admin, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestCreateBooking_BadRequest(t *testing.T) {
	s := newServer(t)
	tok := s.token(t, uuid.New())

	cases := []struct {
		name string
		body any
	}{
		{"missing passenger", map[string]any{"trip_id": 7, "seat_number": 1, "travel_date": "2024-05-04"}},
		{"bad payment method", map[string]any{
			"trip_id": 7, "seat_number": 1, "travel_date": "2024-05-04",
			"passenger": map[string]string{"name": "Asha"}, "payment_method": "barter",
		}},
		{"bad date", map[string]any{
			"trip_id": 7, "seat_number": 1, "travel_date": "04/05/2024",
			"passenger": map[string]string{"name": "Asha"},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/bookings", tok, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAuth(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodGet, "/bookings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	w = s.do(t, http.MethodGet, "/bookings", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	user := s.token(t, uuid.New(), auth.RoleUser)
	w = s.do(t, http.MethodPost, "/admin/passes/expire", user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPut, "/tracking/PU0042/status", user, UpdateStatusRequest{Status: "running"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminExpirePasses(t *testing.T) {
	s := newServer(t)

	s.mock.ExpectExec(q("SET status = 'expired'")).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	w := s.do(t, http.MethodPost, "/admin/passes/expire", s.token(t, uuid.New(), auth.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"expired":2}`, w.Body.String())
}

func TestDriverUpdatesStatus(t *testing.T) {
	s := newServer(t)

	s.mock.ExpectQuery(q("SET current_status = $2, delay_minutes = $3")).
		WithArgs("PU0042", "delayed", 12).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	driver := s.token(t, uuid.New(), auth.RoleDriver)
	w := s.do(t, http.MethodPut, "/tracking/pu0042/status", driver,
		UpdateStatusRequest{Status: "delayed", DelayMinutes: 12})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodPut, "/tracking/PU0042/status", driver,
		UpdateStatusRequest{Status: "parked"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "status", resp.Field)
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestGetBookingByPNR(t *testing.T) {
	s := newServer(t)
	b := &domain.Booking{
		ID: uuid.New(), PNR: "A123456789", UserID: uuid.New(), TripID: 7,
		BusName: "City Express", City: "Pune", From: "Swargate", To: "Hinjewadi",
		TravelDate: now, SeatNumber: 5, Passenger: domain.Passenger{Name: "Asha"},
		Fare: 100, Status: domain.BookingConfirmed,
		PaymentStatus: domain.PaymentPaid, PaymentMethod: domain.PaymentCash, BookingTime: now,
	}

	s.mock.ExpectQuery(q("FROM bookings WHERE pnr = $1")).
		WithArgs("A123456789").
		WillReturnRows(postgrestest.BookingRows(b))

	w := s.do(t, http.MethodGet, "/bookings/pnr/a123456789", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got domain.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, b.ID, got.ID)
}

func TestRespondErr(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.Invalid("city", "is required"), http.StatusBadRequest},
		{auth.ErrInvalidToken, http.StatusUnauthorized},
		{booking.ErrTripNotFound, http.StatusNotFound},
		{booking.ErrBookingNotFound, http.StatusNotFound},
		{passes.ErrPassNotFound, http.StatusNotFound},
		{tracking.ErrBusNotFound, http.StatusNotFound},
		{tracking.ErrStopNotFound, http.StatusNotFound},
		{booking.ErrSeatUnavailable, http.StatusConflict},
		{booking.ErrAlreadyCancelled, http.StatusConflict},
		{booking.ErrBookingCompleted, http.StatusConflict},
		{trips.ErrTripConflict, http.StatusConflict},
		{trips.ErrSeatsStillBooked, http.StatusConflict},
		{tracking.ErrStopRegression, http.StatusConflict},
		{passes.ErrPassNotActive, http.StatusConflict},
		{booking.ErrWithinCancellationWindow, http.StatusUnprocessableEntity},
		{passes.ErrPassInvalid, http.StatusUnprocessableEntity},
		{booking.RateLimitedError{RetryAfter: 1500 * time.Millisecond}, http.StatusTooManyRequests},
		{booking.ErrIdentifierExhausted, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondErr(c, fmt.Errorf("service.x.Y:%w", tc.err))
			assert.Equal(t, tc.status, w.Code)
		})
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondErr(c, booking.RateLimitedError{RetryAfter: 1500 * time.Millisecond})
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestEtagMatches(t *testing.T) {
	tag := `W/"abc"`

	assert.True(t, etagMatches(`W/"abc"`, tag))
	assert.True(t, etagMatches(`"abc"`, tag))
	assert.True(t, etagMatches(`"x", W/"abc"`, tag))
	assert.True(t, etagMatches(`*`, tag))
	assert.False(t, etagMatches(``, tag))
	assert.False(t, etagMatches(`"abd"`, tag))
}
