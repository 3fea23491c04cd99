package repositories

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/linkup/backend/internal/auth"
	"github.com/linkup/backend/internal/db"
)

// PostgresSessionStore persists refresh sessions. Only a SHA-256 digest of each refresh token
// is stored, so a leaked table cannot be replayed.
type PostgresSessionStore struct {
	pool db.Pool
}

var _ auth.SessionStore = (*PostgresSessionStore)(nil)

// NewPostgresSessionStore constructs a session store backed by PostgreSQL.
func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

func digestToken(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:])
}

// Save stores a session, replacing any record with the same token.
func (s *PostgresSessionStore) Save(ctx context.Context, session auth.Session) error {
	_, err := s.exec(ctx, "save session", `
        INSERT INTO sessions (refresh_token, user_id, expires_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (refresh_token)
        DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at
    `, digestToken(session.RefreshToken), session.UserID, session.ExpiresAt.UTC())
	return err
}

// Find loads the session issued for refreshToken.
func (s *PostgresSessionStore) Find(ctx context.Context, refreshToken string) (auth.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return auth.Session{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	session := auth.Session{RefreshToken: refreshToken}
	err = conn.QueryRow(ctx, `SELECT user_id, expires_at FROM sessions WHERE refresh_token = $1`,
		digestToken(refreshToken)).Scan(&session.UserID, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return auth.Session{}, fmt.Errorf("select session: %w", err)
	}

	session.ExpiresAt = session.ExpiresAt.UTC()
	return session, nil
}

// Take deletes and returns the session for refreshToken in one statement, so a token cannot
// be exchanged twice.
func (s *PostgresSessionStore) Take(ctx context.Context, refreshToken string) (auth.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return auth.Session{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	session := auth.Session{RefreshToken: refreshToken}
	err = conn.QueryRow(ctx, `DELETE FROM sessions WHERE refresh_token = $1 RETURNING user_id, expires_at`,
		digestToken(refreshToken)).Scan(&session.UserID, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return auth.Session{}, fmt.Errorf("take session: %w", err)
	}

	session.ExpiresAt = session.ExpiresAt.UTC()
	return session, nil
}

// Delete removes the session issued for refreshToken.
func (s *PostgresSessionStore) Delete(ctx context.Context, refreshToken string) error {
	n, err := s.exec(ctx, "delete session", `DELETE FROM sessions WHERE refresh_token = $1`, digestToken(refreshToken))
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

// DeleteForUser removes every session of userID.
func (s *PostgresSessionStore) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	return s.exec(ctx, "delete user sessions", `DELETE FROM sessions WHERE user_id = $1`, userID)
}

// DeleteExpired purges sessions whose refresh token expired before now.
func (s *PostgresSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.exec(ctx, "delete expired sessions", `DELETE FROM sessions WHERE expires_at <= $1`, now.UTC())
}

func (s *PostgresSessionStore) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}
