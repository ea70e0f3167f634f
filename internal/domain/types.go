package domain

import (
	"time"

	"github.com/google/uuid"
)

type TripStatus string

const (
	TripNotStarted TripStatus = "not_started"
	TripRunning    TripStatus = "running"
	TripDelayed    TripStatus = "delayed"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
)

func (s TripStatus) Valid() bool {
	switch s {
	case TripNotStarted, TripRunning, TripDelayed, TripCompleted, TripCancelled:
		return true
	}
	return false
}

type StopStatus string

const (
	StopPending  StopStatus = "pending"
	StopDelayed  StopStatus = "delayed"
	StopArrived  StopStatus = "arrived"
	StopDeparted StopStatus = "departed"
)

func (s StopStatus) Valid() bool {
	_, ok := stopRank[s]
	return ok
}

type BusType string

const (
	BusAC          BusType = "AC"
	BusNonAC       BusType = "Non-AC"
	BusSleeper     BusType = "Sleeper"
	BusSemiSleeper BusType = "Semi-Sleeper"
)

func (b BusType) Valid() bool {
	switch b {
	case BusAC, BusNonAC, BusSleeper, BusSemiSleeper:
		return true
	}
	return false
}

// Amenities a trip may advertise.
var Amenities = []string{"WiFi", "Charging Point", "Water Bottle", "Blanket", "Pillow", "TV", "Music"}

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "cash"
	PaymentCard       PaymentMethod = "card"
	PaymentUPI        PaymentMethod = "upi"
	PaymentNetbanking PaymentMethod = "netbanking"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentUPI, PaymentNetbanking:
		return true
	}
	return false
}

type PassType string

const (
	PassDaily   PassType = "daily"
	PassWeekly  PassType = "weekly"
	PassMonthly PassType = "monthly"
	PassYearly  PassType = "yearly"
)

type PassStatus string

const (
	PassActive    PassStatus = "active"
	PassExpired   PassStatus = "expired"
	PassCancelled PassStatus = "cancelled"
)

type Location struct {
	Stand     string    `json:"stand"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RouteStop struct {
	Stand            string     `json:"stand"`
	ScheduledArrival TimeOfDay  `json:"scheduled_arrival"`
	ActualArrival    *TimeOfDay `json:"actual_arrival,omitempty"`
	Status           StopStatus `json:"status"`
}

type Trip struct {
	ID              int64       `json:"id"`
	BusName         string      `json:"bus_name"`
	BusNumber       string      `json:"bus_number"`
	TrackingNumber  string      `json:"tracking_number"`
	City            string      `json:"city"`
	From            string      `json:"from"`
	To              string      `json:"to"`
	BusType         BusType     `json:"bus_type"`
	Amenities       []string    `json:"amenities"`
	DepartureTime   TimeOfDay   `json:"departure_time"`
	ArrivalTime     TimeOfDay   `json:"arrival_time"`
	TotalSeats      int         `json:"total_seats"`
	BookedSeats     []int       `json:"booked_seats"`
	AvailableSeats  int         `json:"available_seats"`
	Fare            int64       `json:"fare"`
	Status          TripStatus  `json:"current_status"`
	DelayMinutes    int         `json:"delay_minutes"`
	RouteStops      []RouteStop `json:"route_stops"`
	CurrentLocation *Location   `json:"current_location,omitempty"`
	IsActive        bool        `json:"is_active"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type TripFilter struct {
	City string
	From string
	To   string
}

type SeatMap struct {
	Total          int   `json:"total_seats"`
	Available      []int `json:"available_seats"`
	Booked         []int `json:"booked_seats"`
	AvailableCount int   `json:"available_count"`
}

type Passenger struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Booking struct {
	ID               uuid.UUID     `json:"id"`
	PNR              string        `json:"pnr"`
	UserID           uuid.UUID     `json:"user_id"`
	TripID           int64         `json:"trip_id"`
	BusName          string        `json:"bus_name"`
	City             string        `json:"city"`
	From             string        `json:"from"`
	To               string        `json:"to"`
	TravelDate       time.Time     `json:"travel_date"`
	SeatNumber       int           `json:"seat_number"`
	Passenger        Passenger     `json:"passenger"`
	Fare             int64         `json:"fare"`
	Status           BookingStatus `json:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	PaymentMethod    PaymentMethod `json:"payment_method"`
	BookingTime      time.Time     `json:"booking_time"`
	CancellationTime *time.Time    `json:"cancellation_time,omitempty"`
	RefundAmount     int64         `json:"refund_amount"`
}

type BookingStats struct {
	Total     int64 `json:"total_bookings"`
	Confirmed int64 `json:"confirmed_bookings"`
	Cancelled int64 `json:"cancelled_bookings"`
}

type BusPass struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	PassType   PassType   `json:"pass_type"`
	City       string     `json:"city"`
	ValidFrom  time.Time  `json:"valid_from"`
	ValidTo    time.Time  `json:"valid_to"`
	Price      int64      `json:"price"`
	Status     PassStatus `json:"status"`
	UsageCount int        `json:"usage_count"`
	MaxUsage   int        `json:"max_usage"`
	QRToken    string     `json:"qr_code"`
	CreatedAt  time.Time  `json:"created_at"`
}

type PassStats struct {
	Total   int64 `json:"total_passes"`
	Active  int64 `json:"active_passes"`
	Expired int64 `json:"expired_passes"`
}
