// Package notifications is the fan-in sink for user facing events. It persists each event and
// optionally publishes it to subscribers; delivery to sockets is left to those subscribers.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/linkup/backend/internal/logging"
	"github.com/linkup/backend/internal/models"
)

// ErrInvalidPagination is returned for non-positive page or limit values, or a page so far out
// that its offset does not fit in an int.
var ErrInvalidPagination = errors.New("page and limit must be positive integers")

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n models.Notification) error
	ListForRecipient(ctx context.Context, recipientID string, offset, limit int) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Publisher forwards created notifications to out-of-process subscribers.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Page is a slice of a recipient's feed.
type Page struct {
	Notifications []models.Notification `json:"notifications"`
	Page          int                   `json:"page"`
	Limit         int                   `json:"limit"`
	Total         int                   `json:"total"`
	UnreadCount   int                   `json:"unreadCount"`
}

// Notifier records notifications and publishes them when a Publisher is configured.
type Notifier struct {
	store     Store
	publisher Publisher
	retention time.Duration
	now       func() time.Time
}

// NewNotifier constructs a Notifier. publisher may be nil.
func NewNotifier(store Store, publisher Publisher, retention time.Duration) *Notifier {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Notifier{store: store, publisher: publisher, retention: retention, now: time.Now}
}

// Subject returns the publish subject for a recipient.
func Subject(recipientID string) string {
	return "notifications." + recipientID
}

// Notify inserts a notification for recipient and returns it. Publishing is best effort.
func (n *Notifier) Notify(ctx context.Context, recipientID, senderID string, event Event) (models.Notification, error) {
	if err := event.Validate(); err != nil {
		return models.Notification{}, err
	}
	if recipientID == "" || senderID == "" {
		return models.Notification{}, fmt.Errorf("%w: recipient and sender are required", ErrInvalidEvent)
	}

	record := models.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		SenderID:    senderID,
		Type:        string(event.Kind()),
		PostID:      event.PostID(),
		CreatedAt:   n.now().UTC(),
	}
	if err := n.store.Create(ctx, record); err != nil {
		return models.Notification{}, fmt.Errorf("create notification: %w", err)
	}

	if n.publisher != nil {
		if payload, err := json.Marshal(record); err != nil {
			logging.FromContext(ctx).Warn("encode notification", "error", err)
		} else if err := n.publisher.Publish(Subject(recipientID), payload); err != nil {
			logging.FromContext(ctx).Warn("publish notification", "notificationId", record.ID, "error", err)
		}
	}

	return record, nil
}

// NotifyBestEffort notifies and logs failures instead of returning them. Self notifications are skipped.
func (n *Notifier) NotifyBestEffort(ctx context.Context, recipientID, senderID string, event Event) {
	if n == nil || recipientID == senderID {
		return
	}
	if _, err := n.Notify(ctx, recipientID, senderID, event); err != nil {
		logging.FromContext(ctx).Warn("notification dropped",
			"recipient", recipientID, "type", event.Kind(), "error", err)
	}
}

// List returns a newest-first page of the recipient's feed.
func (n *Notifier) List(ctx context.Context, recipientID string, page, limit int) (Page, error) {
	offset, err := PageOffset(page, limit)
	if err != nil {
		return Page{}, err
	}

	items, total, err := n.store.ListForRecipient(ctx, recipientID, offset, limit)
	if err != nil {
		return Page{}, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := n.store.CountUnread(ctx, recipientID)
	if err != nil {
		return Page{}, fmt.Errorf("count unread notifications: %w", err)
	}
	if items == nil {
		items = []models.Notification{}
	}

	return Page{Notifications: items, Page: page, Limit: limit, Total: total, UnreadCount: unread}, nil
}

// PageOffset returns the number of rows that precede page.
func PageOffset(page, limit int) (int, error) {
	if page <= 0 || limit <= 0 || page-1 > math.MaxInt/limit {
		return 0, ErrInvalidPagination
	}
	return (page - 1) * limit, nil
}

// MarkRead marks one of the recipient's notifications as read.
func (n *Notifier) MarkRead(ctx context.Context, id, recipientID string) error {
	return n.store.MarkRead(ctx, id, recipientID)
}

// MarkAllRead marks every notification of the recipient as read.
func (n *Notifier) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	return n.store.MarkAllRead(ctx, recipientID)
}

// Sweep deletes notifications older than the retention window.
func (n *Notifier) Sweep(ctx context.Context) (int64, error) {
	return n.store.DeleteOlderThan(ctx, n.now().UTC().Add(-n.retention))
}
