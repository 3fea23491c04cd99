package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/linkup/backend/internal/credits"
	"github.com/linkup/backend/internal/db"
)

// PostgresCreditStore keeps post credit balances on the users table. Every mutation is a single
// conditional statement so concurrent requests cannot overdraw a balance.
type PostgresCreditStore struct {
	pool db.Pool
}

var _ credits.Store = (*PostgresCreditStore)(nil)

// NewPostgresCreditStore constructs a credit store backed by PostgreSQL.
func NewPostgresCreditStore(pool db.Pool) *PostgresCreditStore {
	return &PostgresCreditStore{pool: pool}
}

// ResetIfStale implements credits.Store.
func (s *PostgresCreditStore) ResetIfStale(ctx context.Context, userID string, window credits.Window, allowance int, now time.Time) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return resetIfStale(ctx, conn, userID, window, allowance, now)
}

// Consume implements credits.Store.
func (s *PostgresCreditStore) Consume(ctx context.Context, userID string, amount int) (int, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return consumeCredits(ctx, conn, userID, amount)
}

// AddPurchased implements credits.Store.
func (s *PostgresCreditStore) AddPurchased(ctx context.Context, userID string, amount int) (int, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var balance int
	err = conn.QueryRow(ctx, `
        UPDATE users
        SET daily_post_credits = daily_post_credits + $2,
            purchased_credits = purchased_credits + $2
        WHERE id = $1
        RETURNING daily_post_credits
    `, userID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, credits.ErrUnknownUser
		}
		return 0, fmt.Errorf("add purchased credits: %w", err)
	}
	return balance, nil
}

// Balance implements credits.Store.
func (s *PostgresCreditStore) Balance(ctx context.Context, userID string) (int, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var balance int
	if err := conn.QueryRow(ctx, `SELECT daily_post_credits FROM users WHERE id = $1`, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, credits.ErrUnknownUser
		}
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return balance, nil
}

func resetIfStale(ctx context.Context, q querier, userID string, window credits.Window, allowance int, now time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
        UPDATE users
        SET daily_post_credits = $2, last_credit_reset = $3
        WHERE id = $1 AND (last_credit_reset < $4 OR last_credit_reset >= $5)
    `, userID, allowance, now.UTC(), window.Start.UTC(), window.End.UTC())
	if err != nil {
		return false, fmt.Errorf("reset credits: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return false, credits.ErrUnknownUser
	}
	return false, nil
}

func consumeCredits(ctx context.Context, q querier, userID string, amount int) (int, error) {
	var remaining int
	err := q.QueryRow(ctx, `
        UPDATE users
        SET daily_post_credits = daily_post_credits - $2
        WHERE id = $1 AND daily_post_credits >= $2
        RETURNING daily_post_credits
    `, userID, amount).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("consume credits: %w", err)
	}

	var balance int
	if err := q.QueryRow(ctx, `SELECT daily_post_credits FROM users WHERE id = $1`, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, credits.ErrUnknownUser
		}
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return balance, credits.ErrInsufficientCredits
}
