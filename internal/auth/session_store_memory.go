package auth

import (
	"context"
	"sync"
	"time"
)

// InMemorySessionStore keeps sessions in a map. It backs tests and single process tooling.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

var _ SessionStore = (*InMemorySessionStore)(nil)

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]Session)}
}

func (s *InMemorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.RefreshToken] = session
	return nil
}

func (s *InMemorySessionStore) Find(_ context.Context, refreshToken string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[refreshToken]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *InMemorySessionStore) Take(_ context.Context, refreshToken string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[refreshToken]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	delete(s.sessions, refreshToken)
	return session, nil
}

func (s *InMemorySessionStore) Delete(ctx context.Context, refreshToken string) error {
	_, err := s.Take(ctx, refreshToken)
	return err
}

func (s *InMemorySessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return s.deleteWhere(func(session Session) bool { return !session.ExpiresAt.After(now) }), nil
}

func (s *InMemorySessionStore) DeleteForUser(_ context.Context, userID string) (int64, error) {
	return s.deleteWhere(func(session Session) bool { return session.UserID == userID }), nil
}

// Has reports whether refreshToken is still live.
func (s *InMemorySessionStore) Has(refreshToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[refreshToken]
	return ok
}

func (s *InMemorySessionStore) deleteWhere(match func(Session) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for token, session := range s.sessions {
		if match(session) {
			delete(s.sessions, token)
			n++
		}
	}
	return n
}
