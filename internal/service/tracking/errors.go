package tracking

import (
	"errors"

	"github.com/kirinyoku/citybus/internal/domain"
)

var (
	ErrBusNotFound = errors.New("bus not found with this tracking number")

	ErrStopNotFound   = domain.ErrStopNotFound
	ErrStopRegression = domain.ErrStopRegression
	ErrValidation     = domain.ErrValidation
)
