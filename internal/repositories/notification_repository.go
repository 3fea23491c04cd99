package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/linkup/backend/internal/db"
	"github.com/linkup/backend/internal/models"
	"github.com/linkup/backend/internal/notifications"
)

// PostgresNotificationStore persists notification feeds.
type PostgresNotificationStore struct {
	pool db.Pool
}

var _ notifications.Store = (*PostgresNotificationStore)(nil)

// NewPostgresNotificationStore constructs a notification store backed by PostgreSQL.
func NewPostgresNotificationStore(pool db.Pool) *PostgresNotificationStore {
	return &PostgresNotificationStore{pool: pool}
}

func (s *PostgresNotificationStore) Create(ctx context.Context, n models.Notification) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO notifications (id, recipient_id, sender_id, type, post_id, read, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, n.ID, n.RecipientID, n.SenderID, n.Type, nullIfEmpty(n.PostID), n.Read, n.CreatedAt.UTC())
	if err != nil {
		if translate(err) == ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresNotificationStore) ListForRecipient(ctx context.Context, recipientID string, offset, limit int) ([]models.Notification, int, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var total int
	if err := conn.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE recipient_id = $1`, recipientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT n.id, n.recipient_id, n.sender_id, n.type, COALESCE(n.post_id, ''), n.read, n.created_at,
            `+summaryColumns+`
        FROM notifications n
        JOIN users u ON u.id = n.sender_id
        WHERE n.recipient_id = $1
        ORDER BY n.created_at DESC, n.id
        OFFSET $2 LIMIT $3
    `, recipientID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	items := []models.Notification{}
	for rows.Next() {
		var (
			n      models.Notification
			sender models.UserSummary
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.SenderID, &n.Type, &n.PostID, &n.Read, &n.CreatedAt,
			&sender.ID, &sender.FirstName, &sender.LastName, &sender.Location, &sender.ProfileURL, &sender.Profession); err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		n.Sender = &sender
		n.CreatedAt = n.CreatedAt.UTC()
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, total, nil
}

func (s *PostgresNotificationStore) CountUnread(ctx context.Context, recipientID string) (int, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var unread int
	if err := conn.QueryRow(ctx, `
        SELECT count(*) FROM notifications WHERE recipient_id = $1 AND NOT read
    `, recipientID).Scan(&unread); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return unread, nil
}

// MarkRead is idempotent; it fails only when the notification does not belong to recipientID.
func (s *PostgresNotificationStore) MarkRead(ctx context.Context, id, recipientID string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2
    `, id, recipientID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresNotificationStore) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND NOT read
    `, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresNotificationStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
