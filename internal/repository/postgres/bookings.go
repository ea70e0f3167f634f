package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/citybus/internal/domain"
	"github.com/kirinyoku/citybus/internal/repository"
)

const bookingColumns = `id, pnr, user_id, trip_id, bus_name, city, from_stand, to_stand,
	travel_date, seat_number, passenger_name, passenger_email, passenger_phone, fare,
	status, payment_status, payment_method, booking_time, cancellation_time, refund_amount`

type BookingRepo struct {
	pool Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a confirmed booking. The PNR is only inserted if unused.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - b: the booking to insert; ID, PNR and BookingTime must be set.
//
// Returns:
//   - error: repository.ErrDuplicateIdentifier if the PNR is already taken.
//   - error: repository.ErrSeatUnavailable if another confirmed booking holds the seat.
func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgresrepo.BookingRepo.Create"

	db := r.handle()

	var id uuid.UUID
	err := db.QueryRow(ctx,
		`INSERT INTO bookings(id, pnr, user_id, trip_id, bus_name, city, from_stand, to_stand,
		                      travel_date, seat_number, passenger_name, passenger_email,
		                      passenger_phone, fare, status, payment_status, payment_method,
		                      booking_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 ON CONFLICT (pnr) DO NOTHING
		 RETURNING id`,
		b.ID, b.PNR, b.UserID, b.TripID, b.BusName, b.City, b.From, b.To,
		b.TravelDate, b.SeatNumber, b.Passenger.Name, b.Passenger.Email,
		b.Passenger.Phone, b.Fare, string(b.Status), string(b.PaymentStatus), string(b.PaymentMethod),
		b.BookingTime,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s:%w", op, repository.ErrDuplicateIdentifier)
		}
		return wrapDBErr(op, err)
	}

	return nil
}

// Get retrieves a booking by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if there is no such booking.
func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.Get"

	db := r.handle()

	b, err := scanBooking(db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

// GetByPNR retrieves a booking by its exact PNR.
//
// Returns:
//   - error: repository.ErrNotFound if there is no such booking.
func (r *BookingRepo) GetByPNR(ctx context.Context, pnr string) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.GetByPNR"

	db := r.handle()

	b, err := scanBooking(db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE pnr = $1`,
		pnr,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

// ListByUser returns a user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.ListByUser"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE user_id = $1
		 ORDER BY booking_time DESC`,
		userID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *BookingRepo) Stats(ctx context.Context, userID uuid.UUID) (*domain.BookingStats, error) {
	const op = "postgresrepo.BookingRepo.Stats"

	db := r.handle()

	var s domain.BookingStats
	if err := db.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE status = 'confirmed'),
		        count(*) FILTER (WHERE status = 'cancelled')
		 FROM bookings
		 WHERE user_id = $1`,
		userID,
	).Scan(&s.Total, &s.Confirmed, &s.Cancelled); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

// Cancel records a cancellation, only if the booking is still confirmed.
//
// Returns:
//   - error: repository.ErrNotModified if the booking is no longer confirmed.
func (r *BookingRepo) Cancel(ctx context.Context, id uuid.UUID, at time.Time, refund int64) error {
	const op = "postgresrepo.BookingRepo.Cancel"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bookings
		    SET status = 'cancelled', payment_status = 'refunded',
		        cancellation_time = $2, refund_amount = $3, updated_at = now()
		  WHERE id = $1 AND status = 'confirmed'`,
		id, at, refund,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotModified)
	}

	return nil
}

// Complete marks a confirmed booking as travelled.
//
// Returns:
//   - error: repository.ErrNotModified if the booking is no longer confirmed.
func (r *BookingRepo) Complete(ctx context.Context, id uuid.UUID) error {
	const op = "postgresrepo.BookingRepo.Complete"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bookings SET status = 'completed', updated_at = now()
		 WHERE id = $1 AND status = 'confirmed'`,
		id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotModified)
	}

	return nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var status, payStatus, payMethod string

	if err := row.Scan(
		&b.ID, &b.PNR, &b.UserID, &b.TripID, &b.BusName, &b.City, &b.From, &b.To,
		&b.TravelDate, &b.SeatNumber, &b.Passenger.Name, &b.Passenger.Email, &b.Passenger.Phone,
		&b.Fare, &status, &payStatus, &payMethod, &b.BookingTime, &b.CancellationTime,
		&b.RefundAmount,
	); err != nil {
		return nil, err
	}

	b.Status = domain.BookingStatus(status)
	b.PaymentStatus = domain.PaymentStatus(payStatus)
	b.PaymentMethod = domain.PaymentMethod(payMethod)

	return &b, nil
}
