package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/citybus/internal/domain"
	"github.com/kirinyoku/citybus/internal/repository"
)

const passColumns = `id, user_id, pass_type, city, valid_from, valid_to, price, status,
	usage_count, max_usage, qr_token, created_at`

type PassRepo struct {
	pool Pool
	db   DB
}

func (r *PassRepo) With(db DB) *PassRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *PassRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts p unless its QR token is already taken, in which case it
// returns repository.ErrDuplicateIdentifier.
func (r *PassRepo) Create(ctx context.Context, p *domain.BusPass) error {
	const op = "postgresrepo.PassRepo.Create"

	db := r.handle()

	err := db.QueryRow(ctx,
		`INSERT INTO bus_passes(id, user_id, pass_type, city, valid_from, valid_to, price,
		                        status, usage_count, max_usage, qr_token)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (qr_token) DO NOTHING
		 RETURNING created_at`,
		p.ID, p.UserID, string(p.PassType), p.City, p.ValidFrom, p.ValidTo, p.Price,
		string(p.Status), p.UsageCount, p.MaxUsage, p.QRToken,
	).Scan(&p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s:%w", op, repository.ErrDuplicateIdentifier)
		}
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *PassRepo) Get(ctx context.Context, id uuid.UUID) (*domain.BusPass, error) {
	const op = "postgresrepo.PassRepo.Get"

	db := r.handle()

	p, err := scanPass(db.QueryRow(ctx,
		`SELECT `+passColumns+` FROM bus_passes WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return p, nil
}

func (r *PassRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.BusPass, error) {
	const op = "postgresrepo.PassRepo.ListByUser"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+passColumns+`
		 FROM bus_passes
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.BusPass{}
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// Use records one ride on the pass. The increment only happens while the pass
// is active, inside its validity window and below its usage cap, so
// concurrent uses can never exceed max_usage.
//
// Returns:
//   - int: the usage count after this ride.
//   - int: the pass's max usage (0 = unlimited).
//   - error: repository.ErrNotModified if the pass is missing or not usable.
func (r *PassRepo) Use(ctx context.Context, id, userID uuid.UUID, now time.Time) (int, int, error) {
	const op = "postgresrepo.PassRepo.Use"

	db := r.handle()

	var usage, maxUsage int
	err := db.QueryRow(ctx,
		`UPDATE bus_passes
		    SET usage_count = usage_count + 1, updated_at = now()
		  WHERE id = $1
		    AND user_id = $2
		    AND status = 'active'
		    AND $3 BETWEEN valid_from AND valid_to
		    AND (max_usage = 0 OR usage_count < max_usage)
		 RETURNING usage_count, max_usage`,
		id, userID, now,
	).Scan(&usage, &maxUsage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, fmt.Errorf("%s:%w", op, repository.ErrNotModified)
		}
		return 0, 0, wrapDBErr(op, err)
	}

	return usage, maxUsage, nil
}

// Cancel moves an active pass owned by userID to cancelled.
//
// Returns:
//   - error: repository.ErrNotModified if the pass is missing or not active.
func (r *PassRepo) Cancel(ctx context.Context, id, userID uuid.UUID) error {
	const op = "postgresrepo.PassRepo.Cancel"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bus_passes SET status = 'cancelled', updated_at = now()
		 WHERE id = $1 AND user_id = $2 AND status = 'active'`,
		id, userID,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotModified)
	}

	return nil
}

// Stats counts a user's passes. Active passes past their window count as expired.
func (r *PassRepo) Stats(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.PassStats, error) {
	const op = "postgresrepo.PassRepo.Stats"

	db := r.handle()

	var s domain.PassStats
	if err := db.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE status = 'active' AND valid_to >= $2),
		        count(*) FILTER (WHERE status = 'expired' OR (status = 'active' AND valid_to < $2))
		 FROM bus_passes
		 WHERE user_id = $1`,
		userID, now,
	).Scan(&s.Total, &s.Active, &s.Expired); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

// ExpireOverdue marks active passes whose window ended before now as expired.
func (r *PassRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	const op = "postgresrepo.PassRepo.ExpireOverdue"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bus_passes SET status = 'expired', updated_at = now()
		 WHERE status = 'active' AND valid_to < $1`,
		now,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

func scanPass(row pgx.Row) (*domain.BusPass, error) {
	var (
		p                domain.BusPass
		passType, status string
	)

	if err := row.Scan(
		&p.ID, &p.UserID, &passType, &p.City, &p.ValidFrom, &p.ValidTo, &p.Price, &status,
		&p.UsageCount, &p.MaxUsage, &p.QRToken, &p.CreatedAt,
	); err != nil {
		return nil, err
	}

	p.PassType = domain.PassType(passType)
	p.Status = domain.PassStatus(status)

	return &p, nil
}
