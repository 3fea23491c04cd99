package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrRetryable is returned when a transaction kept failing with transient errors.
var ErrRetryable = errors.New("transaction aborted by a transient conflict")

const (
	txMaxRetries  = 3
	txBaseBackoff = 100 * time.Millisecond
	txMaxBackoff  = 3 * time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// Beginner starts transactions. *pgxpool.Conn and *pgxpool.Pool satisfy it.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TxFunc is the unit of work executed inside a transaction.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// WithTx acquires a connection from pool and runs fn in a transaction.
func WithTx(ctx context.Context, pool Pool, opts pgx.TxOptions, fn TxFunc) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return RunInTx(ctx, conn, opts, fn)
}

// RunInTx executes fn in a transaction, retrying with exponential backoff when the database
// reports a transient conflict. Errors returned by fn that are not transient abort immediately.
func RunInTx(ctx context.Context, b Beginner, opts pgx.TxOptions, fn TxFunc) error {
	var lastErr error
	for attempt := 0; attempt < txMaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return err
			}
		}

		err := runOnce(ctx, b, opts, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %v", ErrRetryable, lastErr)
}

func runOnce(ctx context.Context, b Beginner, opts pgx.TxOptions, fn TxFunc) error {
	tx, err := b.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func sleepBackoff(ctx context.Context, attempt int) error {
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * txBaseBackoff
	if backoff > txMaxBackoff {
		backoff = txMaxBackoff
	}
	timer := time.NewTimer(backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := retryablePgErrorCodes[pgErr.Code]; ok {
			return true
		}
	}

	return errors.Is(err, pgx.ErrTxClosed)
}
