package domain

import "errors"

var (
	ErrSeatUnavailable          = errors.New("seat unavailable")
	ErrSeatNotBooked            = errors.New("seat not booked")
	ErrAlreadyCancelled         = errors.New("booking already cancelled")
	ErrBookingCompleted         = errors.New("booking already completed")
	ErrWithinCancellationWindow = errors.New("booking cannot be cancelled this close to travel")
	ErrPassInvalid              = errors.New("bus pass is not valid or has expired")
	ErrPassNotActive            = errors.New("bus pass is not active")
	ErrUnknownPassType          = errors.New("unknown pass type")
	ErrStopNotFound             = errors.New("route stop not found")
	ErrStopRegression           = errors.New("route stop status cannot go backwards")
	ErrInvalidStatus            = errors.New("invalid status")
	ErrInvalidDelay             = errors.New("delay must not be negative")
	ErrInvalidTimeOfDay         = errors.New("time must be in HH:MM format")
	ErrSeatsStillBooked         = errors.New("booked seats exceed new seat count")
)

var ErrValidation = errors.New("validation failed")

// ValidationError reports a rejected input field. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
