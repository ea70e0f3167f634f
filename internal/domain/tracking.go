package domain

import (
	"fmt"
	"time"
)

var stopRank = map[StopStatus]int{
	StopPending:  0,
	StopDelayed:  1,
	StopArrived:  2,
	StopDeparted: 3,
}

// StopETA is a route stop together with its delay-adjusted arrival.
type StopETA struct {
	RouteStop
	EstimatedArrival TimeOfDay `json:"estimated_arrival"`
}

func (t *Trip) stopIndex(stand string) int {
	for i := range t.RouteStops {
		if t.RouteStops[i].Stand == stand {
			return i
		}
	}
	return -1
}

// EstimatedArrival is the scheduled arrival at stand shifted by the trip delay.
func (t *Trip) EstimatedArrival(stand string) (TimeOfDay, error) {
	i := t.stopIndex(stand)
	if i < 0 {
		return 0, fmt.Errorf("%q: %w", stand, ErrStopNotFound)
	}

	return t.RouteStops[i].ScheduledArrival.Add(t.DelayMinutes), nil
}

func (t *Trip) RouteWithETAs() []StopETA {
	out := make([]StopETA, 0, len(t.RouteStops))
	for _, s := range t.RouteStops {
		out = append(out, StopETA{
			RouteStop:        s,
			EstimatedArrival: s.ScheduledArrival.Add(t.DelayMinutes),
		})
	}
	return out
}

// NextStops returns stops not yet reached whose scheduled time-of-day is at or
// after now's. The comparison is same-day only: stops past midnight are dropped.
func (t *Trip) NextStops(now time.Time) []RouteStop {
	cur := TimeOfDayOf(now)

	out := make([]RouteStop, 0, len(t.RouteStops))
	for _, s := range t.RouteStops {
		if s.Status == StopArrived || s.Status == StopDeparted {
			continue
		}
		if s.ScheduledArrival >= cur {
			out = append(out, s)
		}
	}
	return out
}

// UpdateLocation replaces the current-location snapshot.
func (t *Trip) UpdateLocation(stand string, lat, lon float64, now time.Time) {
	t.CurrentLocation = &Location{
		Stand:     stand,
		Latitude:  lat,
		Longitude: lon,
		UpdatedAt: now,
	}
}

// UpdateStatus assigns status and delay. Any status may follow any other.
func (t *Trip) UpdateStatus(status TripStatus, delayMinutes int) error {
	if !status.Valid() {
		return fmt.Errorf("%q: %w", status, ErrInvalidStatus)
	}
	if delayMinutes < 0 {
		return ErrInvalidDelay
	}

	t.Status = status
	t.DelayMinutes = delayMinutes

	return nil
}

// Advance moves the stop forward to status; going backwards is rejected.
func (s *RouteStop) Advance(status StopStatus, actual *TimeOfDay) error {
	next, ok := stopRank[status]
	if !ok {
		return fmt.Errorf("%q: %w", status, ErrInvalidStatus)
	}

	if next < stopRank[s.Status] {
		return fmt.Errorf("%s -> %s: %w", s.Status, status, ErrStopRegression)
	}

	s.Status = status
	if actual != nil {
		a := *actual
		s.ActualArrival = &a
	}

	return nil
}

// AdvanceStop applies Advance to the named stop.
func (t *Trip) AdvanceStop(stand string, status StopStatus, actual *TimeOfDay) error {
	i := t.stopIndex(stand)
	if i < 0 {
		return fmt.Errorf("%q: %w", stand, ErrStopNotFound)
	}

	return t.RouteStops[i].Advance(status, actual)
}
