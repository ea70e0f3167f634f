package passes

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
)

// MaxIdentifierAttempts bounds QR token regeneration after a collision.
const MaxIdentifierAttempts = 5

type Config struct {
	Now func() time.Time
	IDs *domain.IDGenerator
}

type Service struct {
	store *postgresrepo.Store
	log   *slog.Logger
	cfg   Config
}

func New(store *postgresrepo.Store, log *slog.Logger, cfg Config) *Service {
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
		store: store,
		log:   log.With(slog.String("service", "passes")),
		cfg:   cfg,
	}
}

// Create issues a pass to userID. A zero validFrom means now.
//
// Returns:
//   - *domain.BusPass: the issued pass with price, usage cap and QR token.
//   - error: passes.ErrValidation for an unknown pass type or missing city.
//   - error: passes.ErrIdentifierExhausted if no free QR token was found.
func (s *Service) Create(
	ctx context.Context,
	userID uuid.UUID,
	passType domain.PassType,
	city string,
	validFrom time.Time,
) (*domain.BusPass, error) {
	const op = "service.passes.Create"

	city = strings.TrimSpace(city)

	switch {
	case !passType.Valid():
		return nil, fmt.Errorf("%s:%w", op, domain.Invalid("pass_type", "must be one of daily, weekly, monthly, yearly"))
	case city == "":
		return nil, fmt.Errorf("%s:%w", op, domain.Invalid("city", "is required"))
	}

	if validFrom.IsZero() {
		validFrom = s.cfg.Now()
	}

	for range MaxIdentifierAttempts {
		p, err := domain.NewBusPass(userID, passType, city, validFrom.UTC(), s.cfg.IDs.QRToken())
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}

		err = s.store.Passes().Create(ctx, p)
		switch {
		case err == nil:
			return p, nil
		case errors.Is(err, repository.ErrDuplicateIdentifier):
			continue
		default:
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	return nil, fmt.Errorf("%s:%w", op, ErrIdentifierExhausted)
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]domain.BusPass, error) {
	const op = "service.passes.List"

	out, err := s.store.Passes().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	now := s.cfg.Now()
	for i := range out {
		out[i].Status = out[i].EffectiveStatus(now)
	}

	return out, nil
}

// Get returns a pass owned by userID, with an elapsed pass reported as expired.
func (s *Service) Get(ctx context.Context, id, userID uuid.UUID) (*domain.BusPass, error) {
	const op = "service.passes.Get"

	p, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	p.Status = p.EffectiveStatus(s.cfg.Now())

	return p, nil
}

func (s *Service) owned(ctx context.Context, id, userID uuid.UUID) (*domain.BusPass, error) {
	p, err := s.store.Passes().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPassNotFound
		}
		return nil, err
	}

	if p.UserID != userID {
		return nil, ErrPassNotFound
	}

	return p, nil
}

type Validity struct {
	Valid          bool              `json:"is_valid"`
	Status         domain.PassStatus `json:"status"`
	ValidFrom      time.Time         `json:"valid_from"`
	ValidTo        time.Time         `json:"valid_to"`
	UsageCount     int               `json:"usage_count"`
	RemainingUsage *int              `json:"remaining_usage"`
}

// Validate reports whether the pass could be used right now.
func (s *Service) Validate(ctx context.Context, id, userID uuid.UUID) (*Validity, error) {
	const op = "service.passes.Validate"

	p, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	now := s.cfg.Now()

	return &Validity{
		Valid:          p.IsValid(now),
		Status:         p.EffectiveStatus(now),
		ValidFrom:      p.ValidFrom,
		ValidTo:        p.ValidTo,
		UsageCount:     p.UsageCount,
		RemainingUsage: p.RemainingUsage(),
	}, nil
}

type Usage struct {
	UsageCount     int  `json:"usage_count"`
	RemainingUsage *int `json:"remaining_usage"`
}

// Use records one ride. The increment is a single conditional update, so
// concurrent rides never push a pass past its usage cap.
//
// Returns:
//   - *Usage: usage count after the ride and rides left (nil when unlimited).
//   - error: passes.ErrPassNotFound if the user has no such pass.
//   - error: passes.ErrPassInvalid if the pass is not active, outside its
//     window or used up.
func (s *Service) Use(ctx context.Context, id, userID uuid.UUID) (*Usage, error) {
	const op = "service.passes.Use"

	usage, maxUsage, err := s.store.Passes().Use(ctx, id, userID, s.cfg.Now().UTC())
	if err != nil {
		if !errors.Is(err, repository.ErrNotModified) {
			return nil, fmt.Errorf("%s:%w", op, err)
		}

		if _, err := s.owned(ctx, id, userID); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}

		return nil, fmt.Errorf("%s:%w", op, ErrPassInvalid)
	}

	p := domain.BusPass{UsageCount: usage, MaxUsage: maxUsage}

	return &Usage{UsageCount: usage, RemainingUsage: p.RemainingUsage()}, nil
}

// Cancel moves an active pass to cancelled. No refund is issued.
func (s *Service) Cancel(ctx context.Context, id, userID uuid.UUID) error {
	const op = "service.passes.Cancel"

	err := s.store.Passes().Cancel(ctx, id, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotModified) {
			return fmt.Errorf("%s:%w", op, err)
		}

		if _, err := s.owned(ctx, id, userID); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		return fmt.Errorf("%s:%w", op, ErrPassNotActive)
	}

	return nil
}

func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (*domain.PassStats, error) {
	const op = "service.passes.Stats"

	st, err := s.store.Passes().Stats(ctx, userID, s.cfg.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return st, nil
}

// ExpireOverdue stores the expired status on every active pass whose window
// has ended and returns how many were changed.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	const op = "service.passes.ExpireOverdue"

	n, err := s.store.Passes().ExpireOverdue(ctx, s.cfg.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	if n > 0 {
		s.log.InfoContext(ctx, "expired bus passes", slog.Int64("count", n))
	}

	return n, nil
}
