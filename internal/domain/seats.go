package domain

import (
	"fmt"
	"slices"
)

// IsSeatAvailable reports whether seat is within the trip and not booked.
func (t *Trip) IsSeatAvailable(seat int) bool {
	if seat < 1 || seat > t.TotalSeats {
		return false
	}
	return !slices.Contains(t.BookedSeats, seat)
}

// ReserveSeat adds seat to the booked set. The trip repository performs the
// same check and append atomically in SQL.
func (t *Trip) ReserveSeat(seat int) error {
	if !t.IsSeatAvailable(seat) {
		return fmt.Errorf("seat %d: %w", seat, ErrSeatUnavailable)
	}

	t.BookedSeats = append(t.BookedSeats, seat)
	t.recount()

	return nil
}

// ReleaseSeat removes seat from the booked set.
func (t *Trip) ReleaseSeat(seat int) error {
	i := slices.Index(t.BookedSeats, seat)
	if i < 0 {
		return fmt.Errorf("seat %d: %w", seat, ErrSeatNotBooked)
	}

	t.BookedSeats = slices.Delete(t.BookedSeats, i, i+1)
	t.recount()

	return nil
}

// Resize changes the seat count; every booked seat must still fit.
func (t *Trip) Resize(total int) error {
	for _, s := range t.BookedSeats {
		if s > total {
			return fmt.Errorf("seat %d: %w", s, ErrSeatsStillBooked)
		}
	}

	t.TotalSeats = total
	t.recount()

	return nil
}

func (t *Trip) SeatMap() SeatMap {
	booked := slices.Clone(t.BookedSeats)
	slices.Sort(booked)

	available := make([]int, 0, t.TotalSeats-len(booked))
	for s := 1; s <= t.TotalSeats; s++ {
		if _, found := slices.BinarySearch(booked, s); !found {
			available = append(available, s)
		}
	}

	if booked == nil {
		booked = []int{}
	}

	return SeatMap{
		Total:          t.TotalSeats,
		Available:      available,
		Booked:         booked,
		AvailableCount: len(available),
	}
}

func (t *Trip) recount() {
	t.AvailableSeats = t.TotalSeats - len(t.BookedSeats)
}
