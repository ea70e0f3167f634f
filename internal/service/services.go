package service

import (
	"log/slog"

	postgresrepo "github.com/kirinyoku/citybus/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/citybus/internal/repository/redis"
	"github.com/kirinyoku/citybus/internal/service/booking"
	"github.com/kirinyoku/citybus/internal/service/passes"
	"github.com/kirinyoku/citybus/internal/service/tracking"
	"github.com/kirinyoku/citybus/internal/service/trips"
)

type Services struct {
	Bookings *booking.Service
	Trips    *trips.Service
	Passes   *passes.Service
	Tracking *tracking.Service
}

type Config struct {
	Booking  booking.Config
	Trips    trips.Config
	Passes   passes.Config
	Tracking tracking.Config
}

func NewServices(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.TripsPubSub,
	limiter *redisrepo.BookingLimiter,
	log *slog.Logger,
	cfg Config,
) *Services {
	return &Services{
		Bookings: booking.New(store, cache, pubsub, limiter, log, cfg.Booking),
		Trips:    trips.New(store, cache, pubsub, log, cfg.Trips),
		Passes:   passes.New(store, log, cfg.Passes),
		Tracking: tracking.New(store, cache, pubsub, log, cfg.Tracking),
	}
}
