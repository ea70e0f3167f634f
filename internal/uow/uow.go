package uow

import (
	"context"

	"github.com/jackc/pgx/v5"

	postgresrepo "github.com/kirinyoku/citybus/internal/repository/postgres"
)

// DefaultAttempts bounds how many times a transaction is run when Postgres
// reports a serialization failure or deadlock.
const DefaultAttempts = 3

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// TxFunc is the body of a unit of work. Hooks registered through after run
// only once the transaction that registered them has committed.
type TxFunc func(ctx context.Context, tx postgresrepo.DB, after func(AfterCommit)) error

// UoW represents a unit of work.
type UoW struct {
	store    *postgresrepo.Store
	attempts int
}

func NewUoW(store *postgresrepo.Store) *UoW {
	return &UoW{store: store, attempts: DefaultAttempts}
}

// WithAttempts returns a copy that runs retryable transactions up to n times.
func (u *UoW) WithAttempts(n int) *UoW {
	cp := *u
	cp.attempts = max(n, 1)
	return &cp
}

// Do runs fn inside a serializable transaction. After a successful commit,
// it executes all after-commit hooks.
func (u *UoW) Do(ctx context.Context, fn TxFunc) error {
	return u.DoWithOpts(ctx, nil, fn)
}

// DoWithOpts runs fn inside the transaction with the given options, retrying
// the whole transaction on serialization failures. Hooks from failed attempts
// are discarded.
func (u *UoW) DoWithOpts(ctx context.Context, opts *pgx.TxOptions, fn TxFunc) error {
	var (
		hooks []AfterCommit
		err   error
	)

	for attempt := 1; attempt <= u.attempts; attempt++ {
		hooks = hooks[:0]

		err = u.store.RunTx(ctx, opts, func(ctx context.Context, tx postgresrepo.DB) error {
			return fn(ctx, tx, func(h AfterCommit) {
				hooks = append(hooks, h)
			})
		})
		if err == nil || !postgresrepo.IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
