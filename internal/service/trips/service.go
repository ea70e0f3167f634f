package trips

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

// MaxIdentifierAttempts bounds tracking number regeneration after a collision.
const MaxIdentifierAttempts = 5

type Config struct {
	SummaryTTL time.Duration
	SeatMapTTL time.Duration
	IDs        *domain.IDGenerator
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
	if cfg.SummaryTTL <= 0 {
		cfg.SummaryTTL = 60 * time.Second
	}

	if cfg.SeatMapTTL <= 0 {
		cfg.SeatMapTTL = 15 * time.Second
	}

	if cfg.IDs == nil {
		cfg.IDs = domain.NewIDGenerator(nil)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
		uow:    uow.NewUoW(store),
		log:    log.With(slog.String("service", "trips")),
		cfg:    cfg,
	}
}

// CreateTrip registers a new trip with an empty seat inventory and a freshly
// generated tracking number.
//
// Parameters:
//   - ctx: request-scoped context.
//   - t: the trip; ID, tracking number and seat bookkeeping are filled in.
//
// Returns:
//   - *domain.Trip: the stored trip.
//   - error: trips.ErrValidation if a field is invalid.
//   - error: trips.ErrTripConflict if the bus number is taken.
//   - error: trips.ErrIdentifierExhausted if no free tracking number was found.
func (s *Service) CreateTrip(ctx context.Context, t domain.Trip) (*domain.Trip, error) {
	const op = "service.trips.CreateTrip"

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	for range MaxIdentifierAttempts {
		t.TrackingNumber = s.cfg.IDs.TrackingNumber(t.City)

		_, err := s.store.Trips().Create(ctx, &t)
		switch {
		case err == nil:
			return &t, nil
		case errors.Is(err, repository.ErrDuplicateIdentifier):
			continue
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%s:%w", op, ErrTripConflict)
		default:
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	return nil, fmt.Errorf("%s:%w", op, ErrIdentifierExhausted)
}

// TripPatch lists the fields an administrator may change. Nil fields are kept.
type TripPatch struct {
	BusName       *string
	BusNumber     *string
	City          *string
	From          *string
	To            *string
	BusType       *domain.BusType
	Amenities     []string
	DepartureTime *domain.TimeOfDay
	ArrivalTime   *domain.TimeOfDay
	TotalSeats    *int
	Fare          *int64
	RouteStops    []domain.RouteStop
}

func (p TripPatch) apply(t *domain.Trip) error {
	setIf(&t.BusName, p.BusName)
	setIf(&t.BusNumber, p.BusNumber)
	setIf(&t.City, p.City)
	setIf(&t.From, p.From)
	setIf(&t.To, p.To)
	setIf(&t.BusType, p.BusType)
	setIf(&t.DepartureTime, p.DepartureTime)
	setIf(&t.ArrivalTime, p.ArrivalTime)
	setIf(&t.Fare, p.Fare)

	if p.Amenities != nil {
		t.Amenities = p.Amenities
	}

	if p.RouteStops != nil {
		t.RouteStops = mergeStops(t.RouteStops, p.RouteStops)
	}

	if p.TotalSeats != nil {
		if err := t.Resize(*p.TotalSeats); err != nil {
			return err
		}
	}

	return t.Validate()
}

// mergeStops takes the stand list and schedule from next. Stands already on
// the route keep their recorded status and actual arrival; new stands start
// pending.
func mergeStops(current, next []domain.RouteStop) []domain.RouteStop {
	byStand := make(map[string]domain.RouteStop, len(current))
	for _, s := range current {
		byStand[strings.TrimSpace(s.Stand)] = s
	}

	out := make([]domain.RouteStop, 0, len(next))
	for _, s := range next {
		merged := domain.RouteStop{
			Stand:            s.Stand,
			ScheduledArrival: s.ScheduledArrival,
			Status:           domain.StopPending,
		}
		if prev, ok := byStand[strings.TrimSpace(s.Stand)]; ok {
			merged.Status = prev.Status
			merged.ActualArrival = prev.ActualArrival
		}
		out = append(out, merged)
	}

	return out
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// UpdateTrip applies a partial update to an active trip. Shrinking the seat
// count below a booked seat is rejected.
//
// Returns:
//   - *domain.Trip: the updated trip.
//   - error: trips.ErrTripNotFound if the trip is missing or inactive.
//   - error: trips.ErrSeatsStillBooked if a booked seat would not fit.
//   - error: trips.ErrTripConflict if the new bus number is taken.
func (s *Service) UpdateTrip(ctx context.Context, id int64, patch TripPatch) (*domain.Trip, error) {
	const op = "service.trips.UpdateTrip"

	var trip *domain.Trip

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		t, err := s.store.Trips().With(tx).Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrTripNotFound
			}
			return err
		}

		if !t.IsActive {
			return ErrTripNotFound
		}

		if err := patch.apply(t); err != nil {
			return err
		}

		if err := s.store.Trips().With(tx).Update(ctx, t); err != nil {
			switch {
			case errors.Is(err, repository.ErrNotModified):
				return ErrSeatsStillBooked
			case errors.Is(err, repository.ErrConflict):
				return ErrTripConflict
			}
			return err
		}

		trip = t

		after(func(ctx context.Context) {
			s.tripChanged(ctx, t.ID, t.TrackingNumber, "trip_updated")
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return trip, nil
}

// DeactivateTrip hides a trip from listings and closes it for booking.
func (s *Service) DeactivateTrip(ctx context.Context, id int64) error {
	const op = "service.trips.DeactivateTrip"

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		t, err := s.store.Trips().With(tx).Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrTripNotFound
			}
			return err
		}

		if err := s.store.Trips().With(tx).Deactivate(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrTripNotFound
			}
			return err
		}

		after(func(ctx context.Context) {
			s.tripChanged(ctx, t.ID, t.TrackingNumber, "trip_deactivated")
		})

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// ListTrips returns active trips matching the filter.
func (s *Service) ListTrips(ctx context.Context, f domain.TripFilter) ([]domain.Trip, error) {
	const op = "service.trips.ListTrips"

	out, err := s.store.Trips().List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// GetTrip returns an active trip, served from cache when possible.
//
// Returns:
//   - *domain.Trip: the trip.
//   - error: trips.ErrTripNotFound if the trip is missing or inactive.
func (s *Service) GetTrip(ctx context.Context, id int64) (*domain.Trip, error) {
	const op = "service.trips.GetTrip"

	trip, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyTripSummary(id),
		s.cfg.SummaryTTL,
		func(ctx context.Context) (domain.Trip, error) {
			return s.loadActive(ctx, id)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &trip, nil
}

// SeatMap lists the available and booked seats of an active trip.
func (s *Service) SeatMap(ctx context.Context, id int64) (*domain.SeatMap, error) {
	const op = "service.trips.SeatMap"

	sm, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyTripSeatMap(id),
		s.cfg.SeatMapTTL,
		func(ctx context.Context) (domain.SeatMap, error) {
			t, err := s.loadActive(ctx, id)
			if err != nil {
				return domain.SeatMap{}, err
			}
			return t.SeatMap(), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &sm, nil
}

func (s *Service) loadActive(ctx context.Context, id int64) (domain.Trip, error) {
	t, err := s.store.Trips().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Trip{}, ErrTripNotFound
		}
		return domain.Trip{}, err
	}

	if !t.IsActive {
		return domain.Trip{}, ErrTripNotFound
	}

	return *t, nil
}

// Events streams change notifications for one trip to emit until ctx is done.
// ready is closed once the subscription is live.
func (s *Service) Events(
	ctx context.Context,
	tripID int64,
	ready chan<- struct{},
	emit func(redisrepo.TripChanged),
) error {
	const op = "service.trips.Events"

	err := s.pubsub.Subscribe(ctx, ready, func(ctx context.Context, msg redisrepo.TripChanged) {
		if msg.TripID == tripID {
			emit(msg)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (s *Service) tripChanged(ctx context.Context, tripID int64, trackingNumber, reason string) {
	if err := s.cache.InvalidateTrip(ctx, tripID, trackingNumber); err != nil {
		s.log.WarnContext(ctx, "cache invalidation failed",
			slog.Int64("trip_id", tripID), slog.Any("err", err))
	}

	if err := s.pubsub.PublishTripChanged(ctx, tripID, trackingNumber, reason); err != nil {
		s.log.WarnContext(ctx, "publish trip change failed",
			slog.Int64("trip_id", tripID), slog.Any("err", err))
	}
}
