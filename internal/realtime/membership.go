package realtime

import (
	"context"
	"sync"
	"time"
)

// MembershipChecker reports whether a user takes part in a conversation.
type MembershipChecker interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

type membershipEntry struct {
	member  bool
	expires time.Time
}

// CachingMembership wraps another MembershipChecker with a TTL-based in-memory cache.
// Only positive answers are cached so a freshly created conversation is joinable at once.
type CachingMembership struct {
	base MembershipChecker
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	items map[string]membershipEntry
}

// NewCachingMembership returns a checker that caches lookups for the provided TTL.
func NewCachingMembership(base MembershipChecker, ttl time.Duration) *CachingMembership {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingMembership{
		base:  base,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]membershipEntry),
	}
}

func (c *CachingMembership) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	key := conversationID + "/" + userID
	now := c.now()

	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.member, nil
	}

	member, err := c.base.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	if member {
		c.items[key] = membershipEntry{member: true, expires: now.Add(c.ttl)}
	} else {
		delete(c.items, key)
	}
	c.mu.Unlock()

	return member, nil
}
