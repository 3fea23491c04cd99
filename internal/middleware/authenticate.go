package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/linkup/backend/internal/auth"
	"github.com/linkup/backend/internal/logging"
	"github.com/linkup/backend/internal/models"
)

// TokenAuthenticator resolves an access token to a user id.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// UserFinder loads the acting user on every request.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the acting user on
// the request context.
func RequireAuth(tokens TokenAuthenticator, users UserFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := logging.FromContext(r.Context())

			token, ok := BearerToken(r)
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}

			userID, err := tokens.Authenticate(r.Context(), token)
			if err != nil {
				logger.Info("rejecting access token", "error", err)
				unauthorized(w, "invalid or expired token")
				return
			}

			user, err := users.FindByID(r.Context(), userID)
			if err != nil {
				logger.Info("token user lookup failed", "user_id", userID, "error", err)
				unauthorized(w, "invalid or expired token")
				return
			}

			ctx := auth.WithUser(r.Context(), user)
			ctx = logging.WithUser(ctx, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
