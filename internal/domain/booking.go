package domain

import (
	"math"
	"strings"
	"time"
)

const (
	// RefundRate is the share of the fare returned on cancellation.
	RefundRate = 0.70

	DefaultCancellationWindow = 24 * time.Hour
)

// RefundAmount returns round(fare * RefundRate).
func RefundAmount(fare int64) int64 {
	return int64(math.Round(float64(fare) * RefundRate))
}

func NormalizePNR(pnr string) string {
	return strings.ToUpper(strings.TrimSpace(pnr))
}

// CheckCancellable reports why the booking cannot be cancelled at now, if at all.
// A booking whose travel date is window or less away stays confirmed.
func (b *Booking) CheckCancellable(now time.Time, window time.Duration) error {
	switch b.Status {
	case BookingCancelled:
		return ErrAlreadyCancelled
	case BookingCompleted:
		return ErrBookingCompleted
	}

	if b.TravelDate.Sub(now) <= window {
		return ErrWithinCancellationWindow
	}

	return nil
}

// Cancel moves a confirmed booking to cancelled and records the refund.
// The caller releases the seat.
func (b *Booking) Cancel(now time.Time, window time.Duration) error {
	if err := b.CheckCancellable(now, window); err != nil {
		return err
	}

	at := now
	b.Status = BookingCancelled
	b.CancellationTime = &at
	b.RefundAmount = RefundAmount(b.Fare)
	b.PaymentStatus = PaymentRefunded

	return nil
}

func (b *Booking) Complete() error {
	switch b.Status {
	case BookingCancelled:
		return ErrAlreadyCancelled
	case BookingCompleted:
		return ErrBookingCompleted
	}

	b.Status = BookingCompleted
	return nil
}
