package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/linkup/backend/internal/models"
)

var (
	// ErrSessionNotFound means the refresh token was never issued, was already used or was revoked.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenExpired means the refresh token outlived its TTL.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

const refreshTokenBytes = 32

// Session is the server side record behind one refresh token.
type Session struct {
	RefreshToken string
	UserID       string
	ExpiresAt    time.Time
}

// SessionStore keeps refresh sessions. Take must be atomic: of two concurrent calls with the
// same token at most one may succeed.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Find(ctx context.Context, refreshToken string) (Session, error)
	Take(ctx context.Context, refreshToken string) (Session, error)
	Delete(ctx context.Context, refreshToken string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteForUser(ctx context.Context, userID string) (int64, error)
}

// Manager hands out short lived access tokens paired with single use refresh tokens.
type Manager struct {
	tokens     *TokenIssuer
	store      SessionStore
	refreshTTL time.Duration
	now        func() time.Time
}

// NewManager wires an issuer to a session store. Refresh tokens live for refreshTTL.
func NewManager(tokens *TokenIssuer, refreshTTL time.Duration, store SessionStore) *Manager {
	if tokens == nil || store == nil {
		panic("auth: token issuer and session store must not be nil")
	}
	return &Manager{tokens: tokens, store: store, refreshTTL: refreshTTL, now: time.Now}
}

// Issue starts a new session for userID.
func (m *Manager) Issue(ctx context.Context, userID string) (models.SessionTokens, error) {
	access, accessExpiry, err := m.tokens.Issue(userID)
	if err != nil {
		return models.SessionTokens{}, err
	}

	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return models.SessionTokens{}, fmt.Errorf("generate refresh token: %w", err)
	}
	session := Session{
		RefreshToken: base64.RawURLEncoding.EncodeToString(buf),
		UserID:       userID,
		ExpiresAt:    m.now().UTC().Add(m.refreshTTL),
	}
	if err := m.store.Save(ctx, session); err != nil {
		return models.SessionTokens{}, err
	}

	return models.SessionTokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     session.RefreshToken,
		RefreshExpiresAt: session.ExpiresAt,
	}, nil
}

// Refresh consumes refreshToken and starts a replacement session for the same user. A token
// can be exchanged once; replaying it yields ErrSessionNotFound.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	if refreshToken == "" {
		return models.SessionTokens{}, ErrSessionNotFound
	}

	session, err := m.store.Take(ctx, refreshToken)
	if err != nil {
		return models.SessionTokens{}, err
	}
	if !m.now().UTC().Before(session.ExpiresAt) {
		return models.SessionTokens{}, ErrRefreshTokenExpired
	}
	return m.Issue(ctx, session.UserID)
}

// Revoke ends the session behind refreshToken.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return ErrSessionNotFound
	}
	return m.store.Delete(ctx, refreshToken)
}

// RevokeAll signs userID out everywhere. Access tokens already handed out stay valid until
// they expire.
func (m *Manager) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return m.store.DeleteForUser(ctx, userID)
}

// Authenticate validates an access token and returns the user id it carries.
func (m *Manager) Authenticate(_ context.Context, accessToken string) (string, error) {
	claims, err := m.tokens.Parse(accessToken)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// PurgeExpired drops sessions whose refresh token has lapsed.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now().UTC())
}
