package postgresrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/citybus/internal/domain"
	"github.com/kirinyoku/citybus/internal/repository"
)

const tripColumns = `id, bus_name, bus_number, tracking_number, city, from_stand, to_stand,
	bus_type, amenities, departure_time, arrival_time, total_seats, booked_seats,
	available_seats, fare, current_status, delay_minutes, route_stops, current_location,
	is_active, created_at, updated_at`

type TripRepo struct {
	pool Pool
	db   DB
}

func (r *TripRepo) With(db DB) *TripRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TripRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a new trip with an empty seat inventory.
//
// Returns:
//   - int64: the new trip ID.
//   - error: repository.ErrDuplicateIdentifier if the tracking number is taken.
//   - error: repository.ErrConflict if the bus number is taken.
func (r *TripRepo) Create(ctx context.Context, t *domain.Trip) (int64, error) {
	const op = "postgresrepo.TripRepo.Create"

	stops, err := encodeStops(t.RouteStops)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	amenities := t.Amenities
	if amenities == nil {
		amenities = []string{}
	}

	db := r.handle()

	err = db.QueryRow(ctx,
		`INSERT INTO trips(bus_name, bus_number, tracking_number, city, from_stand, to_stand,
		                   bus_type, amenities, departure_time, arrival_time, total_seats,
		                   available_seats, fare, route_stops)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11, $12, $13)
		 ON CONFLICT (tracking_number) DO NOTHING
		 RETURNING id, created_at, updated_at`,
		t.BusName, t.BusNumber, t.TrackingNumber, t.City, t.From, t.To,
		string(t.BusType), amenities, t.DepartureTime.String(), t.ArrivalTime.String(),
		t.TotalSeats, t.Fare, stops,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%s:%w", op, repository.ErrDuplicateIdentifier)
		}
		return 0, wrapDBErr(op, err)
	}

	t.BookedSeats = []int{}
	t.AvailableSeats = t.TotalSeats
	t.Status = domain.TripNotStarted
	t.IsActive = true

	return t.ID, nil
}

// Get retrieves a trip by its ID, active or not.
func (r *TripRepo) Get(ctx context.Context, id int64) (*domain.Trip, error) {
	const op = "postgresrepo.TripRepo.Get"

	db := r.handle()

	t, err := scanTrip(db.QueryRow(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

func (r *TripRepo) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Trip, error) {
	const op = "postgresrepo.TripRepo.GetByTrackingNumber"

	db := r.handle()

	t, err := scanTrip(db.QueryRow(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE tracking_number = $1`,
		trackingNumber,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

// List returns active trips whose city, origin and destination contain the
// filter values, case-insensitively. Empty filter fields match everything.
func (r *TripRepo) List(ctx context.Context, f domain.TripFilter) ([]domain.Trip, error) {
	const op = "postgresrepo.TripRepo.List"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+tripColumns+`
		 FROM trips
		 WHERE is_active
		   AND ($1 = '' OR city ILIKE '%' || $1 || '%')
		   AND ($2 = '' OR from_stand ILIKE '%' || $2 || '%')
		   AND ($3 = '' OR to_stand ILIKE '%' || $3 || '%')
		 ORDER BY departure_time, id`,
		likeEscape(f.City), likeEscape(f.From), likeEscape(f.To),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// Update writes the administrator-editable fields of t. Available seats are
// recomputed from the stored booked set, and the row is left untouched when a
// booked seat would not fit into the new total.
//
// Returns:
//   - error: repository.ErrNotModified if the trip is inactive, missing or
//     still holds seats above the new total.
//   - error: repository.ErrConflict if the bus number is taken.
func (r *TripRepo) Update(ctx context.Context, t *domain.Trip) error {
	const op = "postgresrepo.TripRepo.Update"

	stops, err := encodeStops(t.RouteStops)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	amenities := t.Amenities
	if amenities == nil {
		amenities = []string{}
	}

	db := r.handle()

	err = db.QueryRow(ctx,
		`UPDATE trips
		    SET bus_name = $2, bus_number = $3, city = $4, from_stand = $5, to_stand = $6,
		        bus_type = $7, amenities = $8, departure_time = $9, arrival_time = $10,
		        total_seats = $11, available_seats = $11 - cardinality(booked_seats),
		        fare = $12, route_stops = $13, updated_at = now()
		  WHERE id = $1
		    AND is_active
		    AND $11 >= COALESCE((SELECT max(s) FROM unnest(booked_seats) AS s), 0)
		 RETURNING available_seats, updated_at`,
		t.ID, t.BusName, t.BusNumber, t.City, t.From, t.To,
		string(t.BusType), amenities, t.DepartureTime.String(), t.ArrivalTime.String(),
		t.TotalSeats, t.Fare, stops,
	).Scan(&t.AvailableSeats, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s:%w", op, repository.ErrNotModified)
		}
		return wrapDBErr(op, err)
	}

	return nil
}

// Deactivate hides a trip from listings and blocks further bookings on it.
func (r *TripRepo) Deactivate(ctx context.Context, id int64) error {
	const op = "postgresrepo.TripRepo.Deactivate"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE trips SET is_active = FALSE, updated_at = now()
		 WHERE id = $1 AND is_active`,
		id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// ReserveSeat atomically adds seat to the trip's booked set.
//
// Returns:
//   - int: available seats after the reservation.
//   - error: repository.ErrSeatUnavailable if the trip is inactive, the seat is
//     out of range or already booked.
func (r *TripRepo) ReserveSeat(ctx context.Context, tripID int64, seat int) (int, error) {
	const op = "postgresrepo.TripRepo.ReserveSeat"

	db := r.handle()

	var available int
	err := db.QueryRow(ctx,
		`UPDATE trips
		    SET booked_seats = array_append(booked_seats, $2),
		        available_seats = available_seats - 1,
		        updated_at = now()
		  WHERE id = $1
		    AND is_active
		    AND $2 BETWEEN 1 AND total_seats
		    AND NOT ($2 = ANY(booked_seats))
		 RETURNING available_seats`,
		tripID, seat,
	).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%s:%w", op, repository.ErrSeatUnavailable)
		}
		return 0, wrapDBErr(op, err)
	}

	return available, nil
}

// ReleaseSeat atomically removes seat from the trip's booked set.
//
// Returns:
//   - int: available seats after the release.
//   - error: repository.ErrSeatNotBooked if the seat is not booked.
func (r *TripRepo) ReleaseSeat(ctx context.Context, tripID int64, seat int) (int, error) {
	const op = "postgresrepo.TripRepo.ReleaseSeat"

	db := r.handle()

	var available int
	err := db.QueryRow(ctx,
		`UPDATE trips
		    SET booked_seats = array_remove(booked_seats, $2),
		        available_seats = available_seats + 1,
		        updated_at = now()
		  WHERE id = $1
		    AND $2 = ANY(booked_seats)
		 RETURNING available_seats`,
		tripID, seat,
	).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%s:%w", op, repository.ErrSeatNotBooked)
		}
		return 0, wrapDBErr(op, err)
	}

	return available, nil
}

// UpdateLocation replaces the current location of an active trip and returns its ID.
func (r *TripRepo) UpdateLocation(ctx context.Context, trackingNumber string, loc domain.Location) (int64, error) {
	const op = "postgresrepo.TripRepo.UpdateLocation"

	b, err := encodeLocation(&loc)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`UPDATE trips SET current_location = $2, updated_at = now()
		 WHERE tracking_number = $1 AND is_active
		 RETURNING id`,
		trackingNumber, b,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// UpdateStatus sets the operational status and delay of an active trip and returns its ID.
func (r *TripRepo) UpdateStatus(
	ctx context.Context,
	trackingNumber string,
	status domain.TripStatus,
	delayMinutes int,
) (int64, error) {
	const op = "postgresrepo.TripRepo.UpdateStatus"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`UPDATE trips SET current_status = $2, delay_minutes = $3, updated_at = now()
		 WHERE tracking_number = $1 AND is_active
		 RETURNING id`,
		trackingNumber, string(status), delayMinutes,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *TripRepo) UpdateRouteStops(ctx context.Context, tripID int64, stops []domain.RouteStop) error {
	const op = "postgresrepo.TripRepo.UpdateRouteStops"

	b, err := encodeStops(stops)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE trips SET route_stops = $2, updated_at = now() WHERE id = $1`,
		tripID, b,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func scanTrip(row pgx.Row) (*domain.Trip, error) {
	var (
		t                  domain.Trip
		busType, status    string
		departure, arrival string
		stops, location    []byte
	)

	if err := row.Scan(
		&t.ID, &t.BusName, &t.BusNumber, &t.TrackingNumber, &t.City, &t.From, &t.To,
		&busType, &t.Amenities, &departure, &arrival, &t.TotalSeats, &t.BookedSeats,
		&t.AvailableSeats, &t.Fare, &status, &t.DelayMinutes, &stops, &location,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	t.BusType = domain.BusType(busType)
	t.Status = domain.TripStatus(status)

	var err error
	if t.DepartureTime, err = domain.ParseTimeOfDay(departure); err != nil {
		return nil, err
	}
	if t.ArrivalTime, err = domain.ParseTimeOfDay(arrival); err != nil {
		return nil, err
	}

	if len(stops) > 0 {
		if err := json.Unmarshal(stops, &t.RouteStops); err != nil {
			return nil, fmt.Errorf("route_stops: %w", err)
		}
	}
	if t.RouteStops == nil {
		t.RouteStops = []domain.RouteStop{}
	}

	if len(location) > 0 {
		var loc domain.Location
		if err := json.Unmarshal(location, &loc); err != nil {
			return nil, fmt.Errorf("current_location: %w", err)
		}
		t.CurrentLocation = &loc
	}

	if t.BookedSeats == nil {
		t.BookedSeats = []int{}
	}
	if t.Amenities == nil {
		t.Amenities = []string{}
	}

	return &t, nil
}

var likeReplacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likeEscape(s string) string {
	return likeReplacer.Replace(strings.TrimSpace(s))
}
