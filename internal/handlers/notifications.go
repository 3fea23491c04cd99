package handlers

import (
	"net/http"

	"github.com/linkup/backend/internal/logging"
	"github.com/linkup/backend/internal/notifications"
)

const notificationPageSize = 10

// NotificationHandler serves the caller's notification feed.
type NotificationHandler struct {
	Feed NotificationFeed
}

func (h NotificationHandler) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.Feed == nil {
		logging.FromContext(r.Context()).Error("notification feed unavailable")
		respondError(r.Context(), w, http.StatusInternalServerError, "notification services unavailable")
		return false
	}
	return true
}

// List handles GET /notifications/.
func (h NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	page, limit, ok := pageParams(r, notificationPageSize)
	if !ok {
		respondFailure(ctx, w, notifications.ErrInvalidPagination, "")
		return
	}

	feed, err := h.Feed.List(ctx, caller.ID, page, limit)
	if err != nil {
		respondFailure(ctx, w, err, "unable to load notifications")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"success":       true,
		"notifications": feed.Notifications,
		"page":          feed.Page,
		"limit":         feed.Limit,
		"total":         feed.Total,
		"unreadCount":   feed.UnreadCount,
	})
}

// Create handles POST /notifications/, recording a notification sent by the caller.
func (h NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	var req createNotificationRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	event, err := notifications.NewEvent(req.Type, req.Post)
	if err != nil {
		respondFailure(ctx, w, err, "")
		return
	}
	created, err := h.Feed.Notify(ctx, req.Recipient, caller.ID, event)
	if err != nil {
		respondFailure(ctx, w, err, "unable to create notification")
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]any{"success": true, "notification": created})
}

// MarkRead handles PUT /notifications/{id}/mark-read.
func (h NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	if err := h.Feed.MarkRead(ctx, r.PathValue("id"), caller.ID); err != nil {
		respondFailure(ctx, w, err, "unable to update notification")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "message": "Notification marked as read"})
}

// MarkAllRead handles PUT /notifications/mark-all-read.
func (h NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	updated, err := h.Feed.MarkAllRead(ctx, caller.ID)
	if err != nil {
		respondFailure(ctx, w, err, "unable to update notifications")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "message": "All notifications marked as read", "updated": updated})
}

// Archive handles DELETE /notifications/archive by running the retention sweep.
func (h NotificationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	if _, ok := actingUser(w, r); !ok {
		return
	}

	removed, err := h.Feed.Sweep(ctx)
	if err != nil {
		respondFailure(ctx, w, err, "unable to archive notifications")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "message": "Old notifications archived", "deleted": removed})
}

type createNotificationRequest struct {
	Recipient string `json:"recipient" validate:"required"`
	Type      string `json:"type" validate:"required"`
	Post      string `json:"post"`
}
