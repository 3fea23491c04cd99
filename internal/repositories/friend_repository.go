package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/linkup/backend/internal/db"
	"github.com/linkup/backend/internal/models"
)

// PostgresFriendRepository persists friend requests and the symmetric friendship relation.
type PostgresFriendRepository struct {
	pool db.Pool
}

// NewPostgresFriendRepository constructs a friend repository backed by PostgreSQL.
func NewPostgresFriendRepository(pool db.Pool) *PostgresFriendRepository {
	return &PostgresFriendRepository{pool: pool}
}

// CreateRequest records a pending request from request.RequestFrom to request.RequestTo.
func (r *PostgresFriendRepository) CreateRequest(ctx context.Context, request models.FriendRequest) error {
	if request.RequestFrom == request.RequestTo {
		return ErrSelfRequest
	}

	return db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		var friends, pending bool
		err := tx.QueryRow(ctx, `
            SELECT
                EXISTS (SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2),
                EXISTS (
                    SELECT 1 FROM friend_requests
                    WHERE status = 'Pending'
                      AND ((request_from = $1 AND request_to = $2) OR (request_from = $2 AND request_to = $1))
                )
        `, request.RequestFrom, request.RequestTo).Scan(&friends, &pending)
		if err != nil {
			return fmt.Errorf("check friend state: %w", err)
		}
		if friends {
			return ErrAlreadyFriends
		}
		if pending {
			return ErrDuplicateRequest
		}

		_, err = tx.Exec(ctx, `
            INSERT INTO friend_requests (id, request_from, request_to, status, created_at)
            VALUES ($1, $2, $3, 'Pending', $4)
        `, request.ID, request.RequestFrom, request.RequestTo, request.CreatedAt.UTC())
		if err != nil {
			switch translate(err) {
			case ErrConflict:
				return ErrDuplicateRequest
			case ErrNotFound:
				return ErrNotFound
			}
			return fmt.Errorf("insert friend request: %w", err)
		}
		return nil
	})
}

// Respond resolves a pending request addressed to responderID. Accepting connects both users.
func (r *PostgresFriendRepository) Respond(ctx context.Context, requestID, responderID, status string, at time.Time) (models.FriendRequest, error) {
	var resolved models.FriendRequest
	err := db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		var request models.FriendRequest
		err := tx.QueryRow(ctx, `
            SELECT id, request_from, request_to, status, created_at
            FROM friend_requests
            WHERE id = $1
            FOR UPDATE
        `, requestID).Scan(&request.ID, &request.RequestFrom, &request.RequestTo, &request.Status, &request.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("select friend request: %w", err)
		}
		if request.RequestTo != responderID {
			return ErrForbidden
		}
		if request.Status != models.FriendRequestPending {
			return ErrRequestResolved
		}

		respondedAt := at.UTC()
		if _, err := tx.Exec(ctx, `
            UPDATE friend_requests SET status = $2, responded_at = $3 WHERE id = $1
        `, requestID, status, respondedAt); err != nil {
			return fmt.Errorf("update friend request: %w", err)
		}

		if status == models.FriendRequestAccepted {
			if _, err := tx.Exec(ctx, `
                INSERT INTO friendships (user_id, friend_id, created_at)
                VALUES ($1, $2, $3), ($2, $1, $3)
                ON CONFLICT (user_id, friend_id) DO NOTHING
            `, request.RequestFrom, request.RequestTo, respondedAt); err != nil {
				return fmt.Errorf("insert friendship: %w", err)
			}
		}

		request.Status = status
		request.CreatedAt = request.CreatedAt.UTC()
		request.RespondedAt = &respondedAt
		resolved = request
		return nil
	})
	if err != nil {
		return models.FriendRequest{}, err
	}
	return resolved, nil
}

// ListPendingFor returns the newest pending requests addressed to userID with their senders.
func (r *PostgresFriendRepository) ListPendingFor(ctx context.Context, userID string, limit int) ([]models.FriendRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT fr.id, fr.request_from, fr.request_to, fr.status, fr.created_at, `+summaryColumns+`
        FROM friend_requests fr
        JOIN users u ON u.id = fr.request_from
        WHERE fr.request_to = $1 AND fr.status = 'Pending'
        ORDER BY fr.created_at DESC, fr.id
        LIMIT $2
    `, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list friend requests: %w", err)
	}
	defer rows.Close()

	requests := []models.FriendRequest{}
	for rows.Next() {
		var (
			request models.FriendRequest
			from    models.UserSummary
		)
		if err := rows.Scan(&request.ID, &request.RequestFrom, &request.RequestTo, &request.Status, &request.CreatedAt,
			&from.ID, &from.FirstName, &from.LastName, &from.Location, &from.ProfileURL, &from.Profession); err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		request.CreatedAt = request.CreatedAt.UTC()
		request.From = &from
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend requests: %w", err)
	}

	return requests, nil
}

// ListFriends returns the public profiles of userID's friends.
func (r *PostgresFriendRepository) ListFriends(ctx context.Context, userID string) ([]models.UserSummary, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return querySummaries(ctx, conn, "list friends", `
        SELECT `+summaryColumns+`
        FROM friendships f
        JOIN users u ON u.id = f.friend_id
        WHERE f.user_id = $1
        ORDER BY f.created_at, u.id
    `, userID)
}

// AreFriends reports whether the two users are connected.
func (r *PostgresFriendRepository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var friends bool
	if err := conn.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2)
    `, a, b).Scan(&friends); err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return friends, nil
}
