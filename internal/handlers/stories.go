package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linkup/backend/internal/logging"
	"github.com/linkup/backend/internal/media"
	"github.com/linkup/backend/internal/models"
	"github.com/linkup/backend/internal/notifications"
)

const storyFolder = "stories"

// StoryHandler serves ephemeral stories and engagement on their items.
type StoryHandler struct {
	Stories  StoryStore
	Media    MediaUploader
	Notifier Notifier
	TTL      time.Duration
	NowFunc  func() time.Time
}

func (h StoryHandler) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.Stories == nil {
		logging.FromContext(r.Context()).Error("story store unavailable")
		respondError(r.Context(), w, http.StatusInternalServerError, "story services unavailable")
		return false
	}
	return true
}

// Create handles POST /stories/create. Each file posted under media becomes one item.
func (h StoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "media is required")
		return
	}
	files := r.MultipartForm.File["media"]
	if len(files) == 0 {
		respondError(ctx, w, http.StatusBadRequest, "media is required")
		return
	}

	var durationMS int
	if raw := strings.TrimSpace(r.FormValue("duration")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			respondError(ctx, w, http.StatusBadRequest, "duration must be a non-negative integer")
			return
		}
		durationMS = v
	}
	description := strings.TrimSpace(r.FormValue("description"))

	items := make([]models.StoryItem, 0, len(files))
	for _, fh := range files {
		asset, err := upload(ctx, h.Media, storyFolder, fh)
		if err != nil {
			respondFailure(ctx, w, err, "unable to upload story media")
			return
		}
		items = append(items, models.StoryItem{
			Type:        asset.Type,
			URL:         asset.URL,
			Description: description,
			DurationMS:  itemDuration(asset, durationMS),
		})
	}

	now := nowFrom(h.NowFunc)
	story, err := h.Stories.Create(ctx, models.Story{
		ID:        uuid.NewString(),
		UserID:    caller.ID,
		Content:   items,
		ExpiresAt: now.Add(h.ttl()),
		CreatedAt: now,
	})
	if err != nil {
		respondFailure(ctx, w, err, "unable to create story")
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]any{"success": true, "message": "Story created successfully", "story": story})
}

// itemDuration prefers an explicit duration, then the probed one, then the still-image default.
func itemDuration(asset media.Asset, requestedMS int) int {
	switch {
	case requestedMS > 0:
		return requestedMS
	case asset.Type == models.MediaImage:
		return int(media.DefaultImageDuration / time.Millisecond)
	default:
		return int(asset.Duration / time.Millisecond)
	}
}

func (h StoryHandler) ttl() time.Duration {
	if h.TTL > 0 {
		return h.TTL
	}
	return 24 * time.Hour
}

// List handles GET /stories/: unexpired stories of the caller and their friends.
func (h StoryHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	stories, err := h.Stories.ListVisible(ctx, caller.ID, nowFrom(h.NowFunc))
	if err != nil {
		respondFailure(ctx, w, err, "unable to load stories")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "stories": stories})
}

// Like handles POST /stories/{storyId}/like with a contentIndex body.
func (h StoryHandler) Like(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	var req storyLikeRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	story, liked, err := h.Stories.ToggleItemLike(ctx, r.PathValue("storyId"), *req.ContentIndex, caller.ID, nowFrom(h.NowFunc))
	if err != nil {
		respondFailure(ctx, w, err, "unable to like story")
		return
	}
	if liked && h.Notifier != nil {
		h.Notifier.NotifyBestEffort(ctx, story.UserID, caller.ID, notifications.StoryLiked())
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"success": true,
		"likes":   len(story.Content[*req.ContentIndex].Likes),
	})
}

// Comment handles POST /stories/{storyId}/comment.
func (h StoryHandler) Comment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	var req storyCommentRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	now := nowFrom(h.NowFunc)
	story, err := h.Stories.AddItemComment(ctx, r.PathValue("storyId"), *req.ContentIndex, models.StoryComment{
		ID:        uuid.NewString(),
		UserID:    caller.ID,
		Text:      req.Comment,
		CreatedAt: now,
	}, now)
	if err != nil {
		respondFailure(ctx, w, err, "unable to comment on story")
		return
	}
	if h.Notifier != nil {
		h.Notifier.NotifyBestEffort(ctx, story.UserID, caller.ID, notifications.StoryCommented())
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]any{
		"success":  true,
		"comments": story.Content[*req.ContentIndex].Comments,
	})
}

// Likes handles GET /stories/{storyId}/likes/{contentIndex}.
func (h StoryHandler) Likes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}
	index, ok := contentIndex(w, r)
	if !ok {
		return
	}

	likes, err := h.Stories.ItemLikes(ctx, r.PathValue("storyId"), index, caller.ID, nowFrom(h.NowFunc))
	if err != nil {
		respondFailure(ctx, w, err, "unable to load story likes")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "likes": likes})
}

// Comments handles GET /stories/{storyId}/comments/{contentIndex}.
func (h StoryHandler) Comments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}
	index, ok := contentIndex(w, r)
	if !ok {
		return
	}

	comments, err := h.Stories.ItemComments(ctx, r.PathValue("storyId"), index, caller.ID, nowFrom(h.NowFunc))
	if err != nil {
		respondFailure(ctx, w, err, "unable to load story comments")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "comments": comments})
}

func contentIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("contentIndex"))
	if err != nil || index < 0 {
		respondError(r.Context(), w, http.StatusBadRequest, "contentIndex must be a non-negative integer")
		return 0, false
	}
	return index, true
}

type storyLikeRequest struct {
	ContentIndex *int `json:"contentIndex" validate:"required,gte=0"`
}

type storyCommentRequest struct {
	ContentIndex *int   `json:"contentIndex" validate:"required,gte=0"`
	Comment      string `json:"comment" validate:"required"`
}

func (req *storyCommentRequest) normalize() { req.Comment = strings.TrimSpace(req.Comment) }
