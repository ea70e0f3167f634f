package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirinyoku/citybus/internal/domain"
	"github.com/kirinyoku/citybus/internal/repository"
	postgresrepo "github.com/kirinyoku/citybus/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/citybus/internal/repository/redis"
	"github.com/kirinyoku/citybus/internal/uow"
)

type Config struct {
	// Location defines the wall clock used for next-stop filtering.
	Location *time.Location
	Now      func() time.Time
	ViewTTL  time.Duration
}

type Service struct {
	store  *postgresrepo.Store
	cache  *redisrepo.Cache
	pubsub *redisrepo.TripsPubSub
	uow    *uow.UoW
	log    *slog.Logger
	cfg    Config
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.TripsPubSub,
	log *slog.Logger,
	cfg Config,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.ViewTTL <= 0 {
		cfg.ViewTTL = 15 * time.Second
	}

	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
		uow:    uow.NewUoW(store),
		log:    log.With(slog.String("service", "tracking")),
		cfg:    cfg,
	}
}

func normalize(trackingNumber string) string {
	return strings.ToUpper(strings.TrimSpace(trackingNumber))
}

type BusSummary struct {
	ID              int64             `json:"id"`
	BusName         string            `json:"bus_name"`
	BusNumber       string            `json:"bus_number"`
	TrackingNumber  string            `json:"tracking_number"`
	City            string            `json:"city"`
	From            string            `json:"from"`
	To              string            `json:"to"`
	BusType         domain.BusType    `json:"bus_type"`
	Status          domain.TripStatus `json:"current_status"`
	DelayMinutes    int               `json:"delay_minutes"`
	CurrentLocation *domain.Location  `json:"current_location,omitempty"`
}

func summarize(t *domain.Trip) BusSummary {
	return BusSummary{
		ID:              t.ID,
		BusName:         t.BusName,
		BusNumber:       t.BusNumber,
		TrackingNumber:  t.TrackingNumber,
		City:            t.City,
		From:            t.From,
		To:              t.To,
		BusType:         t.BusType,
		Status:          t.Status,
		DelayMinutes:    t.DelayMinutes,
		CurrentLocation: t.CurrentLocation,
	}
}

type Schedule struct {
	DepartureTime    domain.TimeOfDay `json:"departure_time"`
	ArrivalTime      domain.TimeOfDay `json:"arrival_time"`
	EstimatedArrival domain.TimeOfDay `json:"estimated_arrival"`
}

type BusTracking struct {
	Bus             BusSummary         `json:"bus"`
	CurrentLocation *domain.Location   `json:"current_location"`
	RouteStops      []domain.StopETA   `json:"route_stops"`
	NextStops       []domain.RouteStop `json:"next_stops"`
	Schedule        Schedule           `json:"schedule"`
}

type Route struct {
	TrackingNumber string           `json:"tracking_number"`
	BusName        string           `json:"bus_name"`
	From           string           `json:"from"`
	To             string           `json:"to"`
	DelayMinutes   int              `json:"delay_minutes"`
	RouteStops     []domain.StopETA `json:"route_stops"`
}

// TrackBus builds the live view of a bus: its location, every stop with a
// delay-adjusted ETA, the stops still ahead and the schedule.
//
// Returns:
//   - *BusTracking: the tracking view.
//   - error: tracking.ErrBusNotFound if no trip has the tracking number.
func (s *Service) TrackBus(ctx context.Context, trackingNumber string) (*BusTracking, error) {
	const op = "service.tracking.TrackBus"

	t, err := s.load(ctx, trackingNumber)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	// the destination is not always a listed stop
	eta, err := t.EstimatedArrival(t.To)
	if err != nil {
		eta = t.ArrivalTime.Add(t.DelayMinutes)
	}

	return &BusTracking{
		Bus:             summarize(&t),
		CurrentLocation: t.CurrentLocation,
		RouteStops:      t.RouteWithETAs(),
		NextStops:       t.NextStops(s.cfg.Now().In(s.cfg.Location)),
		Schedule: Schedule{
			DepartureTime:    t.DepartureTime,
			ArrivalTime:      t.ArrivalTime,
			EstimatedArrival: eta,
		},
	}, nil
}

func (s *Service) Route(ctx context.Context, trackingNumber string) (*Route, error) {
	const op = "service.tracking.Route"

	t, err := s.load(ctx, trackingNumber)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &Route{
		TrackingNumber: t.TrackingNumber,
		BusName:        t.BusName,
		From:           t.From,
		To:             t.To,
		DelayMinutes:   t.DelayMinutes,
		RouteStops:     t.RouteWithETAs(),
	}, nil
}

// load reads the trip behind a tracking number through the tracking view cache.
func (s *Service) load(ctx context.Context, trackingNumber string) (domain.Trip, error) {
	tn := normalize(trackingNumber)
	if tn == "" {
		return domain.Trip{}, domain.Invalid("tracking_number", "is required")
	}

	return redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyTrackingView(tn),
		s.cfg.ViewTTL,
		func(ctx context.Context) (domain.Trip, error) {
			t, err := s.store.Trips().GetByTrackingNumber(ctx, tn)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Trip{}, ErrBusNotFound
				}
				return domain.Trip{}, err
			}
			return *t, nil
		},
	)
}

// CityBuses lists the active buses whose city contains city, case-insensitively.
func (s *Service) CityBuses(ctx context.Context, city string) ([]BusSummary, error) {
	const op = "service.tracking.CityBuses"

	if strings.TrimSpace(city) == "" {
		return nil, fmt.Errorf("%s:%w", op, domain.Invalid("city", "is required"))
	}

	trips, err := s.store.Trips().List(ctx, domain.TripFilter{City: city})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	out := make([]BusSummary, 0, len(trips))
	for i := range trips {
		out = append(out, summarize(&trips[i]))
	}

	return out, nil
}

// UpdateLocation replaces the bus's current location snapshot.
func (s *Service) UpdateLocation(
	ctx context.Context,
	trackingNumber, stand string,
	lat, lon float64,
) (*domain.Location, error) {
	const op = "service.tracking.UpdateLocation"

	tn := normalize(trackingNumber)
	stand = strings.TrimSpace(stand)

	switch {
	case stand == "":
		return nil, fmt.Errorf("%s:%w", op, domain.Invalid("bus_stand", "is required"))
	case lat < -90 || lat > 90:
		return nil, fmt.Errorf("%s:%w", op, domain.Invalid("latitude", "must be between -90 and 90"))
	case lon < -180 || lon > 180:
		return nil, fmt.Errorf("%s:%w", op, domain.Invalid("longitude", "must be between -180 and 180"))
	}

	var t domain.Trip
	t.UpdateLocation(stand, lat, lon, s.cfg.Now().UTC())

	id, err := s.store.Trips().UpdateLocation(ctx, tn, *t.CurrentLocation)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrBusNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.tripChanged(ctx, id, tn, "location_updated")

	return t.CurrentLocation, nil
}

// UpdateStatus sets the operational status and delay. Any status may follow
// any other.
func (s *Service) UpdateStatus(
	ctx context.Context,
	trackingNumber string,
	status domain.TripStatus,
	delayMinutes int,
) error {
	const op = "service.tracking.UpdateStatus"

	tn := normalize(trackingNumber)

	var t domain.Trip
	if err := t.UpdateStatus(status, delayMinutes); err != nil {
		if errors.Is(err, domain.ErrInvalidDelay) {
			return fmt.Errorf("%s:%w", op, domain.Invalid("delay_minutes", "must not be negative"))
		}
		return fmt.Errorf("%s:%w", op, domain.Invalid("status",
			"must be one of not_started, running, delayed, completed, cancelled"))
	}

	id, err := s.store.Trips().UpdateStatus(ctx, tn, t.Status, t.DelayMinutes)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrBusNotFound)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	s.tripChanged(ctx, id, tn, "status_updated")

	return nil
}

// UpdateStopStatus moves one route stop forward. A stop never goes back to an
// earlier status.
//
// Returns:
//   - []domain.StopETA: the updated route.
//   - error: tracking.ErrBusNotFound, tracking.ErrStopNotFound or
//     tracking.ErrStopRegression.
func (s *Service) UpdateStopStatus(
	ctx context.Context,
	trackingNumber, stand string,
	status domain.StopStatus,
	actualArrival *domain.TimeOfDay,
) ([]domain.StopETA, error) {
	const op = "service.tracking.UpdateStopStatus"

	tn := normalize(trackingNumber)

	if !status.Valid() {
		return nil, fmt.Errorf("%s:%w", op, domain.Invalid("status",
			"must be one of pending, delayed, arrived, departed"))
	}

	var route []domain.StopETA

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		t, err := s.store.Trips().With(tx).GetByTrackingNumber(ctx, tn)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBusNotFound
			}
			return err
		}

		if !t.IsActive {
			return ErrBusNotFound
		}

		if err := t.AdvanceStop(strings.TrimSpace(stand), status, actualArrival); err != nil {
			return err
		}

		if err := s.store.Trips().With(tx).UpdateRouteStops(ctx, t.ID, t.RouteStops); err != nil {
			return err
		}

		route = t.RouteWithETAs()

		after(func(ctx context.Context) {
			s.tripChanged(ctx, t.ID, tn, "stop_updated")
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return route, nil
}

func (s *Service) tripChanged(ctx context.Context, tripID int64, trackingNumber, reason string) {
	if err := s.cache.InvalidateTrip(ctx, tripID, trackingNumber); err != nil {
		s.log.WarnContext(ctx, "cache invalidation failed",
			slog.String("tracking_number", trackingNumber), slog.Any("err", err))
	}

	if err := s.pubsub.PublishTripChanged(ctx, tripID, trackingNumber, reason); err != nil {
		s.log.WarnContext(ctx, "publish trip change failed",
			slog.String("tracking_number", trackingNumber), slog.Any("err", err))
	}
}
