// Package postgres implements the order core on PostgreSQL. Stock and coupon
// mutations take a row lock in a short transaction; lock waits are bounded
// and lock conflicts are retried a fixed number of times before surfacing as
// fault.ErrContention.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/stockorder/db"
	"github.com/xenking/stockorder/internal/domain/fault"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

// RetryPolicy bounds lock waits and conflict retries.
type RetryPolicy struct {
	// LockWait is the per-statement lock_timeout. Zero leaves the server default.
	LockWait time.Duration
	// MaxAttempts is the total number of tries for one step.
	MaxAttempts int
	// Backoff is multiplied by the attempt number between tries.
	Backoff time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		LockWait:    2 * time.Second,
		MaxAttempts: 5,
		Backoff:     10 * time.Millisecond,
	}
}

const setLockTimeoutSQL = `SELECT set_config('lock_timeout', $1, true)`

// Postgres error codes treated as transient lock conflicts.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// txRunner runs a function in a transaction and retries it on lock conflicts.
type txRunner struct {
	pool   *pgxpool.Pool
	policy RetryPolicy
}

func newTxRunner(pool *pgxpool.Pool, policy RetryPolicy) txRunner {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return txRunner{pool: pool, policy: policy}
}

// inTx runs fn in a transaction bounded by the policy's lock wait, retrying
// lock conflicts up to MaxAttempts before reporting Contention.
func (r txRunner) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	return r.run(ctx, op, r.policy.LockWait, r.policy.MaxAttempts, fn)
}

// undoTx runs a compensating fn with no lock_timeout and retries lock
// conflicts until it succeeds or ctx ends. Giving up would leave a
// reservation or redemption behind.
func (r txRunner) undoTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	return r.run(ctx, op, 0, 0, fn)
}

// run retries lock conflicts; maxAttempts <= 0 means no limit.
func (r txRunner) run(ctx context.Context, op string, lockWait time.Duration, maxAttempts int, fn func(tx pgx.Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			if lockWait > 0 {
				timeout := fmt.Sprintf("%dms", lockWait.Milliseconds())
				if _, err := tx.Exec(ctx, setLockTimeoutSQL, timeout); err != nil {
					return errors.Wrap(err, "set lock timeout")
				}
			}
			return fn(tx)
		})
		if err == nil || !isLockConflict(err) {
			return err
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return fault.Wrap(fault.Contention, fault.ErrContention, fmt.Sprintf("%s after %d attempts", op, attempt))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff(attempt)):
		}
	}
}

// maxBackoff caps the wait between attempts of an unbounded undo.
const maxBackoff = time.Second

func (r txRunner) backoff(attempt int) time.Duration {
	return min(r.policy.Backoff*time.Duration(attempt), maxBackoff)
}

func isLockConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	default:
		return false
	}
}
