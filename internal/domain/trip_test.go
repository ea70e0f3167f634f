package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTrip() *Trip {
	return &Trip{
		BusName: " City Express ", BusNumber: "mh12ab1234", City: "Pune",
		From: "Swargate", To: "Hinjewadi", BusType: BusAC, TotalSeats: 30, Fare: 100,
		Amenities:  []string{"WiFi", "TV"},
		RouteStops: []RouteStop{{Stand: "Swargate", ScheduledArrival: MustTimeOfDay("08:00")}},
	}
}

func TestTrip_Validate(t *testing.T) {
	tr := validTrip()
	require.NoError(t, tr.Validate())

	assert.Equal(t, "City Express", tr.BusName)
	assert.Equal(t, "MH12AB1234", tr.BusNumber)
	assert.Equal(t, StopPending, tr.RouteStops[0].Status)
}

func TestTrip_ValidateRejects(t *testing.T) {
	cases := map[string]func(*Trip){
		"no bus name":     func(t *Trip) { t.BusName = " " },
		"short city":      func(t *Trip) { t.City = "P" },
		"bad bus type":    func(t *Trip) { t.BusType = "Double-Decker" },
		"too many seats":  func(t *Trip) { t.TotalSeats = 101 },
		"no seats":        func(t *Trip) { t.TotalSeats = 0 },
		"negative fare":   func(t *Trip) { t.Fare = -1 },
		"unknown amenity": func(t *Trip) { t.Amenities = []string{"Jacuzzi"} },
		"duplicate stand": func(t *Trip) {
			t.RouteStops = append(t.RouteStops, RouteStop{Stand: "Swargate"})
		},
		"bad stop status": func(t *Trip) { t.RouteStops[0].Status = "lost" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tr := validTrip()
			mutate(tr)
			assert.ErrorIs(t, tr.Validate(), ErrValidation)
		})
	}
}
