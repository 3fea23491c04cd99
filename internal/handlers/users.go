package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/linkup/backend/internal/logging"
)

const (
	searchLimit     = 20
	suggestionLimit = 15
	profileFolder   = "profiles"
)

// UserHandler serves profile reads, updates and discovery.
type UserHandler struct {
	Profiles ProfileStore
	Media    MediaUploader
	NowFunc  func() time.Time
}

// Get handles GET /users/get-user and GET /users/get-user/{id}.
func (h UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Profiles == nil {
		logging.FromContext(ctx).Error("profile store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "user services unavailable")
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		id = caller.ID
	}

	user, err := h.Profiles.FindProfile(ctx, id)
	if err != nil {
		respondFailure(ctx, w, err, "unable to load user")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "message": "User found", "user": user})
}

// Update handles PUT /users/update-user as a multipart form with an optional profileUrl file.
func (h UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	if h.Profiles == nil {
		logger.Error("profile store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "user services unavailable")
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		respondError(ctx, w, http.StatusBadRequest, "invalid form data")
		return
	}

	req := updateUserRequest{
		FirstName:  strings.TrimSpace(r.FormValue("firstName")),
		LastName:   strings.TrimSpace(r.FormValue("lastName")),
		Location:   strings.TrimSpace(r.FormValue("location")),
		Profession: strings.TrimSpace(r.FormValue("profession")),
	}
	if msg, ok := validateRequest(req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	updated := caller
	updated.FirstName = req.FirstName
	updated.LastName = req.LastName
	updated.Location = req.Location
	updated.Profession = req.Profession
	updated.ProfileURL = ""
	updated.UpdatedAt = nowFrom(h.NowFunc)

	if fh := formFile(r, "profileUrl"); fh != nil {
		asset, err := upload(ctx, h.Media, profileFolder, fh)
		if err != nil {
			respondFailure(ctx, w, err, "unable to upload profile picture")
			return
		}
		updated.ProfileURL = asset.URL
	}

	user, err := h.Profiles.UpdateProfile(ctx, updated)
	if err != nil {
		respondFailure(ctx, w, err, "unable to update user")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "message": "User updated successfully", "user": user})
}

// ProfileView handles POST /users/profile-view.
func (h UserHandler) ProfileView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Profiles == nil {
		logging.FromContext(ctx).Error("profile store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "user services unavailable")
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	var req profileViewRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	if req.ID != caller.ID {
		if err := h.Profiles.RecordProfileView(ctx, req.ID, caller.ID, nowFrom(h.NowFunc)); err != nil {
			respondFailure(ctx, w, err, "unable to record profile view")
			return
		}
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]any{"success": true, "message": "Profile view recorded"})
}

// Search handles GET /users/search?term=.
func (h UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Profiles == nil {
		logging.FromContext(ctx).Error("profile store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "user services unavailable")
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" {
		respondError(ctx, w, http.StatusBadRequest, "term is required")
		return
	}

	users, err := h.Profiles.Search(ctx, term, caller.ID, searchLimit)
	if err != nil {
		respondFailure(ctx, w, err, "unable to search users")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "data": users})
}

// Suggested handles POST /users/suggested-friends.
func (h UserHandler) Suggested(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Profiles == nil {
		logging.FromContext(ctx).Error("profile store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "user services unavailable")
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	users, err := h.Profiles.Suggest(ctx, caller.ID, suggestionLimit)
	if err != nil {
		respondFailure(ctx, w, err, "unable to load suggestions")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "data": users})
}

type updateUserRequest struct {
	FirstName  string `json:"firstName" validate:"required"`
	LastName   string `json:"lastName" validate:"required"`
	Location   string `json:"location"`
	Profession string `json:"profession"`
}

type profileViewRequest struct {
	ID string `json:"id" validate:"required"`
}

