package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/linkup/backend/internal/db"
	"github.com/linkup/backend/internal/models"
)

const userColumns = `id, first_name, last_name, email, password_hash, location, profession, profile_url,
        verified, daily_post_credits, purchased_credits, last_credit_reset, created_at, updated_at`

const summaryColumns = `u.id, u.first_name, u.last_name, u.location, u.profile_url, u.profession`

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record. A duplicate email yields ErrConflict.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, first_name, last_name, email, password_hash, location, profession, profile_url,
            verified, daily_post_credits, purchased_credits, last_credit_reset, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
    `, user.ID, user.FirstName, user.LastName, strings.ToLower(user.Email), user.Password, user.Location,
		user.Profession, user.ProfileURL, user.Verified, user.DailyPostCredits, user.PurchasedCredits,
		user.LastCreditReset.UTC(), user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if err != nil {
		if translated := translate(err); translated == ErrConflict {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByID fetches a user by id.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByEmail fetches a user by their email address, ignoring case.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *PostgresUserRepository) findOne(ctx context.Context, query string, arg string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	user, err := scanUser(conn.QueryRow(ctx, query, arg))
	if err != nil {
		if translate(err) == ErrNotFound {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

// FindProfile fetches a user together with their friend ids and profile viewers.
func (r *PostgresUserRepository) FindProfile(ctx context.Context, id string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	user, err := scanUser(conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if translate(err) == ErrNotFound {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}

	err = conn.QueryRow(ctx, `
        SELECT
            ARRAY(SELECT friend_id FROM friendships WHERE user_id = $1 ORDER BY created_at),
            ARRAY(SELECT viewer_id FROM profile_views WHERE user_id = $1 ORDER BY viewed_at DESC)
    `, id).Scan(&user.Friends, &user.Views)
	if err != nil {
		return models.User{}, fmt.Errorf("select user relations: %w", err)
	}
	user.Friends = emptyIfNil(user.Friends)
	user.Views = emptyIfNil(user.Views)

	return user, nil
}

// UpdateProfile modifies the public profile fields of an existing user.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, user models.User) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	updated, err := scanUser(conn.QueryRow(ctx, `
        UPDATE users
        SET first_name = $2, last_name = $3, location = $4, profession = $5,
            profile_url = CASE WHEN $6 = '' THEN profile_url ELSE $6 END,
            updated_at = $7
        WHERE id = $1
        RETURNING `+userColumns,
		user.ID, user.FirstName, user.LastName, user.Location, user.Profession, user.ProfileURL, user.UpdatedAt.UTC()))
	if err != nil {
		if translate(err) == ErrNotFound {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("update user: %w", err)
	}

	return updated, nil
}

// SetPassword replaces the stored password hash.
func (r *PostgresUserRepository) SetPassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	return r.execOne(ctx, "update password", `
        UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1
    `, userID, passwordHash, at.UTC())
}

// MarkVerified flags the user's email address as verified.
func (r *PostgresUserRepository) MarkVerified(ctx context.Context, userID string, at time.Time) error {
	return r.execOne(ctx, "verify user", `
        UPDATE users SET verified = TRUE, updated_at = $2 WHERE id = $1
    `, userID, at.UTC())
}

func (r *PostgresUserRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordProfileView notes that viewerID looked at ownerID's profile.
func (r *PostgresUserRepository) RecordProfileView(ctx context.Context, ownerID, viewerID string, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO profile_views (user_id, viewer_id, viewed_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id, viewer_id) DO UPDATE SET viewed_at = EXCLUDED.viewed_at
    `, ownerID, viewerID, at.UTC())
	if err != nil {
		if translate(err) == ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("record profile view: %w", err)
	}
	return nil
}

// Search matches term against names, email, profession and location, excluding excludeID.
func (r *PostgresUserRepository) Search(ctx context.Context, term, excludeID string, limit int) ([]models.UserSummary, error) {
	return r.listSummaries(ctx, "search users", `
        SELECT `+summaryColumns+`
        FROM users u
        WHERE u.id <> $2
          AND (u.first_name ILIKE $1 OR u.last_name ILIKE $1 OR u.email ILIKE $1
               OR u.profession ILIKE $1 OR u.location ILIKE $1)
        ORDER BY u.first_name, u.last_name, u.id
        LIMIT $3
    `, containsPattern(term), excludeID, limit)
}

// Suggest lists users who are neither the caller, a friend, nor the target of a pending request
// sent by the caller.
func (r *PostgresUserRepository) Suggest(ctx context.Context, userID string, limit int) ([]models.UserSummary, error) {
	return r.listSummaries(ctx, "suggest friends", `
        SELECT `+summaryColumns+`
        FROM users u
        WHERE u.id <> $1
          AND NOT EXISTS (SELECT 1 FROM friendships f WHERE f.user_id = $1 AND f.friend_id = u.id)
          AND NOT EXISTS (
              SELECT 1 FROM friend_requests fr
              WHERE fr.request_from = $1 AND fr.request_to = u.id AND fr.status = 'Pending'
          )
        ORDER BY u.created_at DESC, u.id
        LIMIT $2
    `, userID, limit)
}

func (r *PostgresUserRepository) listSummaries(ctx context.Context, op, query string, args ...any) ([]models.UserSummary, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return querySummaries(ctx, conn, op, query, args...)
}

func querySummaries(ctx context.Context, q querier, op, query string, args ...any) ([]models.UserSummary, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	summaries := []models.UserSummary{}
	for rows.Next() {
		var s models.UserSummary
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Location, &s.ProfileURL, &s.Profession); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return summaries, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.Password, &user.Location,
		&user.Profession, &user.ProfileURL, &user.Verified, &user.DailyPostCredits, &user.PurchasedCredits,
		&user.LastCreditReset, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return models.User{}, err
	}
	user.LastCreditReset = user.LastCreditReset.UTC()
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}
