package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/linkup/backend/internal/auth"
	"github.com/linkup/backend/internal/credits"
	"github.com/linkup/backend/internal/db"
	"github.com/linkup/backend/internal/logging"
	"github.com/linkup/backend/internal/media"
	"github.com/linkup/backend/internal/models"
	"github.com/linkup/backend/internal/notifications"
	"github.com/linkup/backend/internal/repositories"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, map[string]string{"error": message})
}

// respondFailure maps a domain or storage error onto the HTTP convention. fallback is shown
// for errors that are not part of the domain vocabulary.
func respondFailure(ctx context.Context, w http.ResponseWriter, err error, fallback string) {
	status, message := classify(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(ctx).Error(fallback, "error", err)
		message = fallback
	}
	respondError(ctx, w, status, message)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, repositories.ErrNotFound),
		errors.Is(err, notifications.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, credits.ErrUnknownUser):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, credits.ErrInsufficientCredits):
		return http.StatusForbidden, "insufficient credits"
	case errors.Is(err, repositories.ErrForbidden):
		return http.StatusForbidden, "operation not permitted"
	case errors.Is(err, repositories.ErrSelfRequest),
		errors.Is(err, repositories.ErrAlreadyFriends),
		errors.Is(err, repositories.ErrDuplicateRequest),
		errors.Is(err, repositories.ErrRequestResolved),
		errors.Is(err, repositories.ErrInvalidContentIndex),
		errors.Is(err, repositories.ErrInvalidParticipants),
		errors.Is(err, credits.ErrInvalidAmount),
		errors.Is(err, notifications.ErrInvalidPagination),
		errors.Is(err, notifications.ErrInvalidEvent),
		errors.Is(err, media.ErrFileTooLarge):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, repositories.ErrConflict):
		return http.StatusBadRequest, "record already exists"
	case errors.Is(err, db.ErrRetryable):
		return http.StatusServiceUnavailable, "temporarily unavailable, please retry"
	case errors.Is(err, media.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "media uploads are not available"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// actingUser returns the authenticated user or writes a 401.
func actingUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user.ID == "" {
		respondError(r.Context(), w, http.StatusUnauthorized, "authentication required")
		return models.User{}, false
	}
	return user, true
}

// pageParams reads page and limit from the query string. Missing values take the defaults;
// present values must be positive integers whose offset fits in an int.
func pageParams(r *http.Request, defaultLimit int) (int, int, bool) {
	page, ok := positiveQueryInt(r, "page", 1)
	if !ok {
		return 0, 0, false
	}
	limit, ok := positiveQueryInt(r, "limit", defaultLimit)
	if !ok {
		return 0, 0, false
	}
	if _, err := notifications.PageOffset(page, limit); err != nil {
		return 0, 0, false
	}
	return page, limit, true
}

func totalPages(total, limit int) int {
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return pages
}

func positiveQueryInt(r *http.Request, key string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func nowFrom(fn func() time.Time) time.Time {
	if fn != nil {
		return fn()
	}
	return time.Now().UTC()
}
