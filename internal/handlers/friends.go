package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/linkup/backend/internal/logging"
	"github.com/linkup/backend/internal/models"
	"github.com/linkup/backend/internal/notifications"
)

const pendingRequestLimit = 10

// FriendHandler provides the friend request workflow and friend listing.
type FriendHandler struct {
	Friends  FriendStore
	Notifier Notifier
	NowFunc  func() time.Time
}

// SendRequest handles POST /users/friend-request.
func (h FriendHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Friends == nil {
		logging.FromContext(ctx).Error("friend store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "friend services unavailable")
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	var req friendRequestPayload
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	request := models.FriendRequest{
		ID:          uuid.NewString(),
		RequestFrom: caller.ID,
		RequestTo:   req.RequestTo,
		Status:      models.FriendRequestPending,
		CreatedAt:   nowFrom(h.NowFunc),
	}
	if err := h.Friends.CreateRequest(ctx, request); err != nil {
		respondFailure(ctx, w, err, "unable to send friend request")
		return
	}

	if h.Notifier != nil {
		h.Notifier.NotifyBestEffort(ctx, request.RequestTo, caller.ID, notifications.FriendRequested())
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Friend Request sent successfully",
		"data":    request,
	})
}

// ListRequests handles POST /users/get-friend-request.
func (h FriendHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Friends == nil {
		logging.FromContext(ctx).Error("friend store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "friend services unavailable")
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	requests, err := h.Friends.ListPendingFor(ctx, caller.ID, pendingRequestLimit)
	if err != nil {
		respondFailure(ctx, w, err, "unable to load friend requests")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "data": requests})
}

// Respond handles POST /users/accept-request with status Accepted or Declined.
func (h FriendHandler) Respond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Friends == nil {
		logging.FromContext(ctx).Error("friend store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "friend services unavailable")
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	var req respondFriendRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	request, err := h.Friends.Respond(ctx, req.RequestID, caller.ID, req.Status, nowFrom(h.NowFunc))
	if err != nil {
		respondFailure(ctx, w, err, "unable to respond to friend request")
		return
	}

	if request.Status == models.FriendRequestAccepted && h.Notifier != nil {
		h.Notifier.NotifyBestEffort(ctx, request.RequestFrom, caller.ID, notifications.FriendAccepted())
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Friend Request " + request.Status,
		"data":    request,
	})
}

// List handles GET /users/friends.
func (h FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Friends == nil {
		logging.FromContext(ctx).Error("friend store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "friend services unavailable")
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	friends, err := h.Friends.ListFriends(ctx, caller.ID)
	if err != nil {
		respondFailure(ctx, w, err, "unable to load friends")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "data": friends})
}

type friendRequestPayload struct {
	RequestTo string `json:"requestTo" validate:"required"`
}

type respondFriendRequest struct {
	RequestID string `json:"rid" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=Accepted Declined"`
}
