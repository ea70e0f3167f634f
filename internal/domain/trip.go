package domain

import (
	"slices"
	"strings"
)

const MaxSeats = 100

// Validate checks the administrator-supplied fields of a trip.
func (t *Trip) Validate() error {
	t.BusName = strings.TrimSpace(t.BusName)
	t.BusNumber = strings.ToUpper(strings.TrimSpace(t.BusNumber))
	t.City = strings.TrimSpace(t.City)
	t.From = strings.TrimSpace(t.From)
	t.To = strings.TrimSpace(t.To)

	switch {
	case t.BusName == "":
		return Invalid("bus_name", "is required")
	case t.BusNumber == "":
		return Invalid("bus_number", "is required")
	case len([]rune(t.City)) < 2:
		return Invalid("city", "must be at least 2 characters")
	case t.From == "":
		return Invalid("from", "is required")
	case t.To == "":
		return Invalid("to", "is required")
	case !t.BusType.Valid():
		return Invalid("bus_type", "must be one of AC, Non-AC, Sleeper, Semi-Sleeper")
	case t.TotalSeats < 1 || t.TotalSeats > MaxSeats:
		return Invalid("total_seats", "must be between 1 and 100")
	case t.Fare < 0:
		return Invalid("fare", "must not be negative")
	}

	for _, a := range t.Amenities {
		if !slices.Contains(Amenities, a) {
			return Invalid("amenities", "unknown amenity "+a)
		}
	}

	seen := make(map[string]bool, len(t.RouteStops))
	for i := range t.RouteStops {
		s := &t.RouteStops[i]
		s.Stand = strings.TrimSpace(s.Stand)
		if s.Stand == "" {
			return Invalid("route_stops", "stand is required")
		}
		if seen[s.Stand] {
			return Invalid("route_stops", "duplicate stand "+s.Stand)
		}
		seen[s.Stand] = true

		if s.Status == "" {
			s.Status = StopPending
		}
		if !s.Status.Valid() {
			return Invalid("route_stops", "unknown status "+string(s.Status))
		}
	}

	return nil
}
