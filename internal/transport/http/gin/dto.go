package httpgin

import (
	"time"

	"github.com/kirinyoku/citybus/internal/domain"
	"github.com/kirinyoku/citybus/internal/service/trips"
)

type PassengerInput struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone"`
}

type CreateBookingRequest struct {
	TripID        int64          `json:"trip_id" binding:"required,gt=0"`
	SeatNumber    int            `json:"seat_number" binding:"required,gt=0"`
	TravelDate    string         `json:"travel_date" binding:"required"`
	Passenger     PassengerInput `json:"passenger" binding:"required"`
	PaymentMethod string         `json:"payment_method" binding:"omitempty,oneof=cash card upi netbanking"`
}

type CancelBookingResponse struct {
	ID               string    `json:"id"`
	PNR              string    `json:"pnr"`
	RefundAmount     int64     `json:"refund_amount"`
	CancellationTime time.Time `json:"cancellation_time"`
}

type CreatePassRequest struct {
	PassType  string `json:"pass_type" binding:"required,oneof=daily weekly monthly yearly"`
	City      string `json:"city" binding:"required"`
	ValidFrom string `json:"valid_from"`
}

type ExpirePassesResponse struct {
	Expired int64 `json:"expired"`
}

// RouteStopInput describes a stand and its schedule. Stop progress is only
// changed through the tracking endpoints.
type RouteStopInput struct {
	Stand            string            `json:"stand" binding:"required"`
	ScheduledArrival *domain.TimeOfDay `json:"scheduled_arrival" binding:"required"`
}

type CreateTripRequest struct {
	BusName       string            `json:"bus_name" binding:"required"`
	BusNumber     string            `json:"bus_number" binding:"required"`
	City          string            `json:"city" binding:"required"`
	From          string            `json:"from" binding:"required"`
	To            string            `json:"to" binding:"required"`
	BusType       string            `json:"bus_type" binding:"required"`
	Amenities     []string          `json:"amenities"`
	DepartureTime *domain.TimeOfDay `json:"departure_time" binding:"required"`
	ArrivalTime   *domain.TimeOfDay `json:"arrival_time" binding:"required"`
	TotalSeats    int               `json:"total_seats" binding:"required,gt=0"`
	Fare          int64             `json:"fare" binding:"gte=0"`
	RouteStops    []RouteStopInput  `json:"route_stops" binding:"required,min=1,dive"`
}

func (r CreateTripRequest) trip() domain.Trip {
	return domain.Trip{
		BusName:       r.BusName,
		BusNumber:     r.BusNumber,
		City:          r.City,
		From:          r.From,
		To:            r.To,
		BusType:       domain.BusType(r.BusType),
		Amenities:     r.Amenities,
		DepartureTime: *r.DepartureTime,
		ArrivalTime:   *r.ArrivalTime,
		TotalSeats:    r.TotalSeats,
		Fare:          r.Fare,
		RouteStops:    routeStops(r.RouteStops),
	}
}

type UpdateTripRequest struct {
	BusName       *string           `json:"bus_name"`
	BusNumber     *string           `json:"bus_number"`
	City          *string           `json:"city"`
	From          *string           `json:"from"`
	To            *string           `json:"to"`
	BusType       *string           `json:"bus_type"`
	Amenities     []string          `json:"amenities"`
	DepartureTime *domain.TimeOfDay `json:"departure_time"`
	ArrivalTime   *domain.TimeOfDay `json:"arrival_time"`
	TotalSeats    *int              `json:"total_seats" binding:"omitempty,gt=0"`
	Fare          *int64            `json:"fare" binding:"omitempty,gte=0"`
	RouteStops    []RouteStopInput  `json:"route_stops" binding:"omitempty,min=1,dive"`
}

func (r UpdateTripRequest) patch() trips.TripPatch {
	p := trips.TripPatch{
		BusName:       r.BusName,
		BusNumber:     r.BusNumber,
		City:          r.City,
		From:          r.From,
		To:            r.To,
		Amenities:     r.Amenities,
		DepartureTime: r.DepartureTime,
		ArrivalTime:   r.ArrivalTime,
		TotalSeats:    r.TotalSeats,
		Fare:          r.Fare,
	}
	if r.BusType != nil {
		bt := domain.BusType(*r.BusType)
		p.BusType = &bt
	}
	if r.RouteStops != nil {
		p.RouteStops = routeStops(r.RouteStops)
	}
	return p
}

func routeStops(in []RouteStopInput) []domain.RouteStop {
	out := make([]domain.RouteStop, 0, len(in))
	for _, s := range in {
		out = append(out, domain.RouteStop{
			Stand:            s.Stand,
			ScheduledArrival: *s.ScheduledArrival,
			Status:           domain.StopPending,
		})
	}
	return out
}

type UpdateLocationRequest struct {
	BusStand  string   `json:"bus_stand" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

type UpdateStatusRequest struct {
	Status       string `json:"status" binding:"required"`
	DelayMinutes int    `json:"delay_minutes" binding:"gte=0"`
}

type UpdateStopRequest struct {
	Status        string            `json:"status" binding:"required"`
	ActualArrival *domain.TimeOfDay `json:"actual_arrival"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// parseDate accepts a calendar date or an RFC3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
