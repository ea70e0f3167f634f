package passes

import (
	"errors"

	"github.com/kirinyoku/citybus/internal/domain"
)

var (
	ErrPassNotFound        = errors.New("bus pass not found")
	ErrIdentifierExhausted = errors.New("could not allocate a unique QR token")

	ErrPassInvalid   = domain.ErrPassInvalid
	ErrPassNotActive = domain.ErrPassNotActive
	ErrValidation    = domain.ErrValidation
)
