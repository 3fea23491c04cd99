package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/linkup/backend/internal/db"
	"github.com/linkup/backend/internal/models"
)

// PostgresTokenRepository stores hashed one-time tokens. A user holds at most one token per purpose.
type PostgresTokenRepository struct {
	pool db.Pool
}

// NewPostgresTokenRepository constructs a token repository backed by PostgreSQL.
func NewPostgresTokenRepository(pool db.Pool) *PostgresTokenRepository {
	return &PostgresTokenRepository{pool: pool}
}

// Save replaces any previous token the user held for the same purpose.
func (r *PostgresTokenRepository) Save(ctx context.Context, token models.OneTimeToken) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO one_time_tokens (user_id, purpose, token_hash, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id, purpose)
        DO UPDATE SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at
    `, token.UserID, token.Purpose, token.TokenHash, token.ExpiresAt.UTC(), token.CreatedAt.UTC())
	if err != nil {
		if translate(err) == ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

// Find loads the token the user holds for purpose.
func (r *PostgresTokenRepository) Find(ctx context.Context, userID, purpose string) (models.OneTimeToken, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.OneTimeToken{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var token models.OneTimeToken
	err = conn.QueryRow(ctx, `
        SELECT user_id, purpose, token_hash, expires_at, created_at
        FROM one_time_tokens
        WHERE user_id = $1 AND purpose = $2
    `, userID, purpose).Scan(&token.UserID, &token.Purpose, &token.TokenHash, &token.ExpiresAt, &token.CreatedAt)
	if err != nil {
		if translate(err) == ErrNotFound {
			return models.OneTimeToken{}, ErrNotFound
		}
		return models.OneTimeToken{}, fmt.Errorf("select token: %w", err)
	}
	token.ExpiresAt = token.ExpiresAt.UTC()
	token.CreatedAt = token.CreatedAt.UTC()
	return token, nil
}

// Delete consumes the user's token for purpose.
func (r *PostgresTokenRepository) Delete(ctx context.Context, userID, purpose string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM one_time_tokens WHERE user_id = $1 AND purpose = $2`, userID, purpose)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpired purges tokens that expired before now.
func (r *PostgresTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM one_time_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
