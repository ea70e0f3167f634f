package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/citybus/internal/domain"
	"github.com/kirinyoku/citybus/internal/repository"
	postgresrepo "github.com/kirinyoku/citybus/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/citybus/internal/repository/redis"
	"github.com/kirinyoku/citybus/internal/ticket"
	"github.com/kirinyoku/citybus/internal/uow"
)

// MaxIdentifierAttempts bounds PNR regeneration after a collision.
const MaxIdentifierAttempts = 5

type Config struct {
	CancellationWindow time.Duration
	Now                func() time.Time
	IDs                *domain.IDGenerator
}

type Service struct {
	store   *postgresrepo.Store
	cache   *redisrepo.Cache
	pubsub  *redisrepo.TripsPubSub
	limiter *redisrepo.BookingLimiter
	uow     *uow.UoW
	log     *slog.Logger
	cfg     Config
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.TripsPubSub,
	limiter *redisrepo.BookingLimiter,
	log *slog.Logger,
	cfg Config,
) *Service {
	if cfg.CancellationWindow <= 0 {
		cfg.CancellationWindow = domain.DefaultCancellationWindow
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.IDs == nil {
		cfg.IDs = domain.NewIDGenerator(nil)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:   store,
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		uow:     uow.NewUoW(store),
		log:     log.With(slog.String("service", "booking")),
		cfg:     cfg,
	}
}

type CreateParams struct {
	UserID        uuid.UUID
	TripID        int64
	SeatNumber    int
	TravelDate    time.Time
	Passenger     domain.Passenger
	PaymentMethod domain.PaymentMethod
}

func (p *CreateParams) validate() error {
	p.Passenger.Name = strings.TrimSpace(p.Passenger.Name)
	p.Passenger.Email = strings.TrimSpace(p.Passenger.Email)
	p.Passenger.Phone = strings.TrimSpace(p.Passenger.Phone)

	if p.PaymentMethod == "" {
		p.PaymentMethod = domain.PaymentCash
	}

	switch {
	case p.UserID == uuid.Nil:
		return domain.Invalid("user_id", "is required")
	case p.TripID <= 0:
		return domain.Invalid("trip_id", "must be positive")
	case p.SeatNumber < 1:
		return domain.Invalid("seat_number", "must be at least 1")
	case p.TravelDate.IsZero():
		return domain.Invalid("travel_date", "is required")
	case p.Passenger.Name == "":
		return domain.Invalid("passenger.name", "is required")
	case !p.PaymentMethod.Valid():
		return domain.Invalid("payment_method", "must be one of cash, card, upi, netbanking")
	}

	return nil
}

// Create books one seat on a trip for a passenger.
//
// The seat is reserved and the booking inserted in the same transaction, so a
// failed insert never leaves a seat taken.
//
// Parameters:
//   - ctx: request-scoped context.
//   - p: booking parameters; PaymentMethod defaults to cash.
//
// Returns:
//   - *domain.Booking: the confirmed booking.
//   - error: booking.ErrTripNotFound if the trip is missing or inactive.
//   - error: booking.ErrSeatUnavailable if the seat is out of range or taken.
//   - error: booking.ErrRateLimited (as RateLimitedError) when the user books too often.
//   - error: booking.ErrIdentifierExhausted if no free PNR was found.
func (s *Service) Create(ctx context.Context, p CreateParams) (*domain.Booking, error) {
	const op = "service.booking.Create"

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if err := s.allow(ctx, p.UserID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var booking *domain.Booking

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		trip, err := s.store.Trips().With(tx).Get(ctx, p.TripID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrTripNotFound
			}
			return err
		}

		if !trip.IsActive {
			return ErrTripNotFound
		}

		// the conditional update below still settles concurrent claims
		if !trip.IsSeatAvailable(p.SeatNumber) {
			return ErrSeatUnavailable
		}

		if _, err := s.store.Trips().With(tx).ReserveSeat(ctx, trip.ID, p.SeatNumber); err != nil {
			if errors.Is(err, repository.ErrSeatUnavailable) {
				return ErrSeatUnavailable
			}
			return err
		}

		b := &domain.Booking{
			ID:            uuid.New(),
			UserID:        p.UserID,
			TripID:        trip.ID,
			BusName:       trip.BusName,
			City:          trip.City,
			From:          trip.From,
			To:            trip.To,
			TravelDate:    p.TravelDate,
			SeatNumber:    p.SeatNumber,
			Passenger:     p.Passenger,
			Fare:          trip.Fare,
			Status:        domain.BookingConfirmed,
			PaymentStatus: domain.PaymentPaid,
			PaymentMethod: p.PaymentMethod,
			BookingTime:   s.cfg.Now().UTC(),
		}

		if err := s.insertWithFreshPNR(ctx, tx, b); err != nil {
			return err
		}

		booking = b

		after(func(ctx context.Context) {
			s.tripChanged(ctx, trip.ID, trip.TrackingNumber, "seat_reserved")
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return booking, nil
}

func (s *Service) insertWithFreshPNR(ctx context.Context, tx postgresrepo.DB, b *domain.Booking) error {
	for range MaxIdentifierAttempts {
		b.PNR = s.cfg.IDs.PNR()

		err := s.store.Bookings().With(tx).Create(ctx, b)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, repository.ErrDuplicateIdentifier):
			continue
		case errors.Is(err, repository.ErrSeatUnavailable):
			return ErrSeatUnavailable
		default:
			return err
		}
	}

	return ErrIdentifierExhausted
}

func (s *Service) allow(ctx context.Context, userID uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}

	ok, retry, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		s.log.WarnContext(ctx, "rate limiter unavailable", slog.Any("err", err))
		return nil
	}

	if !ok {
		return RateLimitedError{RetryAfter: retry}
	}

	return nil
}

// Cancel cancels a user's confirmed booking, refunds 70% of the fare and
// frees the seat.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: ID of the booking.
//   - userID: the caller; bookings of other users are reported as not found.
//
// Returns:
//   - *domain.Booking: the cancelled booking with refund amount and cancellation time.
//   - error: booking.ErrBookingNotFound if there is no such booking for the user.
//   - error: booking.ErrAlreadyCancelled, booking.ErrBookingCompleted or
//     booking.ErrWithinCancellationWindow if the booking cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id, userID uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Cancel"

	var booking *domain.Booking

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		b, err := s.store.Bookings().With(tx).Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		if b.UserID != userID {
			return ErrBookingNotFound
		}

		if err := b.Cancel(s.cfg.Now().UTC(), s.cfg.CancellationWindow); err != nil {
			return err
		}

		if err := s.store.Bookings().With(tx).Cancel(ctx, b.ID, *b.CancellationTime, b.RefundAmount); err != nil {
			if errors.Is(err, repository.ErrNotModified) {
				return ErrAlreadyCancelled
			}
			return err
		}

		if _, err := s.store.Trips().With(tx).ReleaseSeat(ctx, b.TripID, b.SeatNumber); err != nil {
			if errors.Is(err, repository.ErrSeatNotBooked) {
				return ErrSeatNotBooked
			}
			return err
		}

		booking = b

		after(func(ctx context.Context) {
			s.tripChanged(ctx, b.TripID, "", "seat_released")
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return booking, nil
}

// Complete marks a confirmed booking as travelled. The seat stays booked.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Complete"

	var booking *domain.Booking

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		_ func(uow.AfterCommit),
	) error {
		b, err := s.store.Bookings().With(tx).Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		if err := b.Complete(); err != nil {
			return err
		}

		if err := s.store.Bookings().With(tx).Complete(ctx, b.ID); err != nil {
			if errors.Is(err, repository.ErrNotModified) {
				return ErrBookingCompleted
			}
			return err
		}

		booking = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return booking, nil
}

// GetByPNR looks a booking up by PNR. Surrounding blanks and letter case are ignored.
func (s *Service) GetByPNR(ctx context.Context, pnr string) (*domain.Booking, error) {
	const op = "service.booking.GetByPNR"

	pnr = domain.NormalizePNR(pnr)
	if pnr == "" {
		return nil, fmt.Errorf("%s:%w", op, domain.Invalid("pnr", "is required"))
	}

	b, err := s.store.Bookings().GetByPNR(ctx, pnr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

func (s *Service) GetForUser(ctx context.Context, id, userID uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.GetForUser"

	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if b.UserID != userID {
		return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
	}

	return b, nil
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.Booking, error) {
	const op = "service.booking.ListForUser"

	out, err := s.store.Bookings().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (*domain.BookingStats, error) {
	const op = "service.booking.Stats"

	st, err := s.store.Bookings().Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return st, nil
}

// TicketPDF renders the e-ticket of the booking with the given PNR.
// A trip that has since disappeared only drops the schedule from the ticket.
func (s *Service) TicketPDF(ctx context.Context, pnr string) (*domain.Booking, []byte, error) {
	const op = "service.booking.TicketPDF"

	b, err := s.GetByPNR(ctx, pnr)
	if err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	trip, err := s.store.Trips().Get(ctx, b.TripID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s:%w", op, err)
		}
		trip = nil
	}

	pdf, err := ticket.Render(b, trip)
	if err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, pdf, nil
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
