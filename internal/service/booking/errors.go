package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/citybus/internal/domain"
)

var (
	ErrTripNotFound        = errors.New("trip not found")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrIdentifierExhausted = errors.New("could not allocate a unique PNR")
	ErrRateLimited         = errors.New("too many booking attempts")

	ErrSeatUnavailable          = domain.ErrSeatUnavailable
	ErrSeatNotBooked            = domain.ErrSeatNotBooked
	ErrAlreadyCancelled         = domain.ErrAlreadyCancelled
	ErrBookingCompleted         = domain.ErrBookingCompleted
	ErrWithinCancellationWindow = domain.ErrWithinCancellationWindow
	ErrValidation               = domain.ErrValidation
)

// RateLimitedError carries how long the caller should wait. It matches ErrRateLimited.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf("too many booking attempts, retry in %s", e.RetryAfter)
}

func (e RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
