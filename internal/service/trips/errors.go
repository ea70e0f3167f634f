package trips

import (
	"errors"

	"github.com/kirinyoku/citybus/internal/domain"
)

var (
	ErrTripNotFound        = errors.New("trip not found")
	ErrTripConflict        = errors.New("bus number already in use")
	ErrIdentifierExhausted = errors.New("could not allocate a unique tracking number")

	ErrSeatsStillBooked = domain.ErrSeatsStillBooked
	ErrValidation       = domain.ErrValidation
)
