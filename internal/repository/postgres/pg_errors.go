package postgresrepo

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirinyoku/citybus/internal/repository"
)

const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"

	constraintConfirmedSeat = "bookings_trip_seat_confirmed_uq"
)

// IsRetryable reports whether err is a serialization failure or deadlock,
// after which the whole transaction may be run again.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return true
		}
	}

	return false
}

func translateDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		switch pge.Code {
		case codeUniqueViolation:
			if pge.ConstraintName == constraintConfirmedSeat {
				return repository.ErrSeatUnavailable
			}
			return repository.ErrConflict
		case codeCheckViolation:
			return repository.ErrConflict
		}
	}

	return err
}
