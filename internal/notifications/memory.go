package notifications

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/linkup/backend/internal/models"
)

// ErrNotFound is returned by MemoryStore for unknown notifications.
var ErrNotFound = errors.New("notification not found")

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	items []models.Notification
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Create(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, n)
	return nil
}

func (s *MemoryStore) ListForRecipient(_ context.Context, recipientID string, offset, limit int) ([]models.Notification, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mine []models.Notification
	for _, n := range s.items {
		if n.RecipientID == recipientID {
			mine = append(mine, n)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })

	total := len(mine)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit < total-offset {
		end = offset + limit
	}
	return append([]models.Notification(nil), mine[offset:end]...), total, nil
}

func (s *MemoryStore) CountUnread(_ context.Context, recipientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.items {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, id, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].RecipientID == recipientID {
			s.items[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.items {
		if s.items[i].RecipientID == recipientID && !s.items[i].Read {
			s.items[i].Read = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	var removed int64
	for _, n := range s.items {
		if n.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	s.items = kept
	return removed, nil
}
