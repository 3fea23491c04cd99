package auth

import (
	"context"

	"github.com/linkup/backend/internal/models"
)

type userKey struct{}

// WithUser stores the acting user on the context.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the acting user stored by the authentication middleware.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userKey{}).(models.User)
	return user, ok && user.ID != ""
}
