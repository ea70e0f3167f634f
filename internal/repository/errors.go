package repository

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrSeatUnavailable     = errors.New("seat unavailable")
	ErrSeatNotBooked       = errors.New("seat not booked")
	ErrDuplicateIdentifier = errors.New("generated identifier already taken")
	ErrNotModified         = errors.New("row not in expected state")
)
