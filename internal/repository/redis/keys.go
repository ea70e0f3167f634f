package redisrepo

import (
	"fmt"

	"github.com/google/uuid"
)

const ns = "citybus:v1"

func KeyTripSummary(tripID int64) string {
	return fmt.Sprintf("%s:trip:%d:summary", ns, tripID)
}

func KeyTripSeatMap(tripID int64) string {
	return fmt.Sprintf("%s:trip:%d:seatmap", ns, tripID)
}

func KeyTrackingView(trackingNumber string) string {
	return fmt.Sprintf("%s:tracking:%s", ns, trackingNumber)
}

func KeyBookingAttempts(userID uuid.UUID) string {
	return fmt.Sprintf("%s:bookings:attempts:%s", ns, userID)
}

func KeyIdemBooking(userID uuid.UUID, idemKey string) string {
	return fmt.Sprintf("%s:idem:bookings:%s:%s", ns, userID, idemKey)
}

func ChannelTripsChanged() string {
	return ns + ":trips:changed"
}
