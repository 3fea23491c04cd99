package credits

import (
	"context"
	"sync"
	"time"
)

type account struct {
	daily     int
	purchased int
	lastReset time.Time
}

// MemoryStore is a mutex guarded Store.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*account
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*account)}
}

// Open registers a user with a balance last reset at lastReset.
func (s *MemoryStore) Open(userID string, balance int, lastReset time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[userID] = &account{daily: balance, lastReset: lastReset}
}

// ResetIfStale implements Store.
func (s *MemoryStore) ResetIfStale(_ context.Context, userID string, window Window, allowance int, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[userID]
	if !ok {
		return false, ErrUnknownUser
	}
	if window.Contains(acc.lastReset) {
		return false, nil
	}
	acc.daily = allowance
	acc.lastReset = now
	return true, nil
}

// Consume implements Store.
func (s *MemoryStore) Consume(_ context.Context, userID string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[userID]
	if !ok {
		return 0, ErrUnknownUser
	}
	if acc.daily < amount {
		return acc.daily, ErrInsufficientCredits
	}
	acc.daily -= amount
	return acc.daily, nil
}

// AddPurchased implements Store.
func (s *MemoryStore) AddPurchased(_ context.Context, userID string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[userID]
	if !ok {
		return 0, ErrUnknownUser
	}
	acc.daily += amount
	acc.purchased += amount
	return acc.daily, nil
}

// Balance implements Store.
func (s *MemoryStore) Balance(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[userID]
	if !ok {
		return 0, ErrUnknownUser
	}
	return acc.daily, nil
}

// Purchased returns the lifetime purchased credits for userID.
func (s *MemoryStore) Purchased(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[userID]; ok {
		return acc.purchased
	}
	return 0
}
