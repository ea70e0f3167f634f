// Package postgrestest builds pgxmock result rows from domain values so that
// tests above the repository layer can script the store without repeating
// column lists.
package postgrestest

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/citybus/internal/domain"
)

var (
	TripColumns = []string{
		"id", "bus_name", "bus_number", "tracking_number", "city", "from_stand", "to_stand",
		"bus_type", "amenities", "departure_time", "arrival_time", "total_seats", "booked_seats",
		"available_seats", "fare", "current_status", "delay_minutes", "route_stops", "current_location",
		"is_active", "created_at", "updated_at",
	}

	BookingColumns = []string{
		"id", "pnr", "user_id", "trip_id", "bus_name", "city", "from_stand", "to_stand",
		"travel_date", "seat_number", "passenger_name", "passenger_email", "passenger_phone", "fare",
		"status", "payment_status", "payment_method", "booking_time", "cancellation_time", "refund_amount",
	}

	PassColumns = []string{
		"id", "user_id", "pass_type", "city", "valid_from", "valid_to", "price", "status",
		"usage_count", "max_usage", "qr_token", "created_at",
	}
)

// Q quotes s for use as a pgxmock query pattern.
func Q(s string) string { return regexp.QuoteMeta(s) }

func NewPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return mock
}

// TripRows returns one row per trip, in the column order scanned by the trip repository.
func TripRows(t *testing.T, trips ...*domain.Trip) *pgxmock.Rows {
	t.Helper()

	rows := pgxmock.NewRows(TripColumns)
	for _, tr := range trips {
		stops := tr.RouteStops
		if stops == nil {
			stops = []domain.RouteStop{}
		}
		stopsJSON, err := json.Marshal(stops)
		require.NoError(t, err)

		var location []byte
		if tr.CurrentLocation != nil {
			location, err = json.Marshal(tr.CurrentLocation)
			require.NoError(t, err)
		}

		booked := tr.BookedSeats
		if booked == nil {
			booked = []int{}
		}
		amenities := tr.Amenities
		if amenities == nil {
			amenities = []string{}
		}

		rows.AddRow(
			tr.ID, tr.BusName, tr.BusNumber, tr.TrackingNumber, tr.City, tr.From, tr.To,
			string(tr.BusType), amenities, tr.DepartureTime.String(), tr.ArrivalTime.String(),
			tr.TotalSeats, booked, tr.TotalSeats-len(booked), tr.Fare, string(tr.Status),
			tr.DelayMinutes, stopsJSON, location, tr.IsActive, tr.CreatedAt, tr.UpdatedAt,
		)
	}

	return rows
}

func BookingRows(bookings ...*domain.Booking) *pgxmock.Rows {
	rows := pgxmock.NewRows(BookingColumns)
	for _, b := range bookings {
		rows.AddRow(
			b.ID, b.PNR, b.UserID, b.TripID, b.BusName, b.City, b.From, b.To,
			b.TravelDate, b.SeatNumber, b.Passenger.Name, b.Passenger.Email, b.Passenger.Phone, b.Fare,
			string(b.Status), string(b.PaymentStatus), string(b.PaymentMethod), b.BookingTime,
			b.CancellationTime, b.RefundAmount,
		)
	}

	return rows
}

func PassRows(passes ...*domain.BusPass) *pgxmock.Rows {
	rows := pgxmock.NewRows(PassColumns)
	for _, p := range passes {
		rows.AddRow(
			p.ID, p.UserID, string(p.PassType), p.City, p.ValidFrom, p.ValidTo, p.Price,
			string(p.Status), p.UsageCount, p.MaxUsage, p.QRToken, p.CreatedAt,
		)
	}

	return rows
}
