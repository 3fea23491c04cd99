package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linkup/backend/internal/logging"
	"github.com/linkup/backend/internal/models"
	"github.com/linkup/backend/internal/notifications"
	"github.com/linkup/backend/internal/repositories"
)

const (
	feedPageSize    = 10
	postSearchLimit = 50
	postFolder      = "posts"
)

// PostHandler serves post creation, the feed and post engagement.
type PostHandler struct {
	Posts    PostStore
	Credits  CreditLedger
	Friends  FriendLister
	Media    MediaUploader
	Notifier Notifier
	NowFunc  func() time.Time
}

func (h PostHandler) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.Posts == nil {
		logging.FromContext(r.Context()).Error("post store unavailable")
		respondError(r.Context(), w, http.StatusInternalServerError, "post services unavailable")
		return false
	}
	return true
}

// Create handles POST /posts/create-post. The post costs credits; the charge and the insert
// commit together.
func (h PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	if !h.ready(w, r) {
		return
	}
	if h.Credits == nil {
		logger.Error("credit ledger unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "post services unavailable")
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
	req := createPostRequest{Description: strings.TrimSpace(r.FormValue("description"))}
	if msg, ok := validateRequest(req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	// Checked before uploading so a rejected post leaves nothing in object storage.
	cost := h.Credits.PostCost()
	balance, err := h.Credits.Balance(ctx, caller.ID)
	if err != nil {
		respondFailure(ctx, w, err, "unable to load credits")
		return
	}
	if balance < cost {
		respondError(ctx, w, http.StatusForbidden, "insufficient credits to create a post")
		return
	}

	now := nowFrom(h.NowFunc)
	post := models.Post{
		ID:          uuid.NewString(),
		UserID:      caller.ID,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if fh := formFile(r, "media"); fh != nil {
		asset, err := upload(ctx, h.Media, postFolder, fh)
		if err != nil {
			respondFailure(ctx, w, err, "unable to upload media")
			return
		}
		post.MediaURL = asset.URL
		post.MediaType = asset.Type
	}

	created, remaining, err := h.Posts.CreateWithCredits(ctx, post, h.Credits.Charge(cost))
	if err != nil {
		respondFailure(ctx, w, err, "unable to create post")
		return
	}

	h.announce(r, caller.ID, created.ID)

	respondJSON(ctx, w, http.StatusCreated, map[string]any{
		"success":          true,
		"message":          "Post created successfully",
		"data":             created,
		"remainingCredits": remaining,
	})
}

// announce notifies the author's friends about a new post.
func (h PostHandler) announce(r *http.Request, authorID, postID string) {
	if h.Friends == nil || h.Notifier == nil {
		return
	}
	ctx := r.Context()
	friends, err := h.Friends.ListFriends(ctx, authorID)
	if err != nil {
		logging.FromContext(ctx).Warn("new post fan-out skipped", "postId", postID, "error", err)
		return
	}
	for _, friend := range friends {
		h.Notifier.NotifyBestEffort(ctx, friend.ID, authorID, notifications.PostPublished(postID))
	}
}

// Feed handles GET /posts/get-posts and POST /posts/.
func (h PostHandler) Feed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	if _, ok := actingUser(w, r); !ok {
		return
	}

	page, limit, ok := pageParams(r, feedPageSize)
	if !ok {
		respondError(ctx, w, http.StatusBadRequest, notifications.ErrInvalidPagination.Error())
		return
	}
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	offset, _ := notifications.PageOffset(page, limit)
	posts, total, err := h.Posts.ListFeed(ctx, search, offset, limit)
	if err != nil {
		respondFailure(ctx, w, err, "unable to load posts")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"success": true,
		"data":    posts,
		"pagination": pagination{
			CurrentPage:  page,
			TotalPages:   totalPages(total, limit),
			TotalPosts:   total,
			PostsPerPage: limit,
		},
	})
}

// Search handles GET /posts/search?query=.
func (h PostHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	if _, ok := actingUser(w, r); !ok {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		respondError(ctx, w, http.StatusBadRequest, "query is required")
		return
	}

	posts, err := h.Posts.Search(ctx, query, postSearchLimit)
	if err != nil {
		respondFailure(ctx, w, err, "unable to search posts")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "data": posts})
}

// Get handles GET /posts/{id}.
func (h PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	if _, ok := actingUser(w, r); !ok {
		return
	}

	post, err := h.Posts.FindByID(ctx, r.PathValue("id"))
	if err != nil {
		respondFailure(ctx, w, err, "unable to load post")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "data": post})
}

// ListByUser handles GET /posts/user/{id}.
func (h PostHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	if _, ok := actingUser(w, r); !ok {
		return
	}

	posts, err := h.Posts.ListByUser(ctx, r.PathValue("id"))
	if err != nil {
		respondFailure(ctx, w, err, "unable to load posts")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "data": posts})
}

// Comments handles GET /posts/comments/{postId}.
func (h PostHandler) Comments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	if _, ok := actingUser(w, r); !ok {
		return
	}

	comments, err := h.Posts.ListComments(ctx, r.PathValue("postId"))
	if err != nil {
		respondFailure(ctx, w, err, "unable to load comments")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "data": comments})
}

// Delete handles DELETE /posts/{id}. Only the author may delete a post.
func (h PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	if err := h.Posts.Delete(ctx, r.PathValue("id"), caller.ID); err != nil {
		respondFailure(ctx, w, err, "unable to delete post")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "message": "Post deleted successfully"})
}

// Like handles POST /posts/like/{id}, toggling the caller's like.
func (h PostHandler) Like(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	post, liked, err := h.Posts.ToggleLike(ctx, r.PathValue("id"), caller.ID)
	if err != nil {
		respondFailure(ctx, w, err, "unable to like post")
		return
	}

	message := "Post unliked"
	if liked {
		message = "Post liked"
		if h.Notifier != nil {
			h.Notifier.NotifyBestEffort(ctx, post.UserID, caller.ID, notifications.PostLiked(post.ID))
		}
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "message": message, "data": post})
}

// Comment handles POST /posts/comment/{postId}.
func (h PostHandler) Comment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	var req commentRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	postID := r.PathValue("postId")
	comment, err := h.Posts.AddComment(ctx, models.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		UserID:    caller.ID,
		Comment:   req.Comment,
		CreatedAt: nowFrom(h.NowFunc),
	})
	if err != nil {
		respondFailure(ctx, w, err, "unable to add comment")
		return
	}

	if h.Notifier != nil {
		if owner, err := h.Posts.Owner(ctx, postID); err == nil {
			h.Notifier.NotifyBestEffort(ctx, owner, caller.ID, notifications.PostCommented(postID))
		} else if !errors.Is(err, repositories.ErrNotFound) {
			logging.FromContext(ctx).Warn("comment notification skipped", "postId", postID, "error", err)
		}
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]any{"success": true, "message": "Comment added successfully", "data": comment})
}

// Reply handles POST /posts/reply/{commentId}.
func (h PostHandler) Reply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	var req commentRequest
	if msg, ok := bindJSON(r, &req); !ok {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	comment, err := h.Posts.AddReply(ctx, models.Reply{
		ID:        uuid.NewString(),
		CommentID: r.PathValue("commentId"),
		UserID:    caller.ID,
		Comment:   req.Comment,
		ReplyAt:   nowFrom(h.NowFunc),
	})
	if err != nil {
		respondFailure(ctx, w, err, "unable to add reply")
		return
	}
	if h.Notifier != nil {
		h.Notifier.NotifyBestEffort(ctx, comment.UserID, caller.ID, notifications.PostCommented(comment.PostID))
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]any{"success": true, "message": "Reply added successfully", "data": comment})
}

// LikeComment handles POST /posts/like-comment/{id} and POST /posts/like-comment/{id}/{rid}.
// With a reply id the like toggles on that reply of comment id.
func (h PostHandler) LikeComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}
	caller, ok := actingUser(w, r)
	if !ok {
		return
	}

	commentID, replyID := r.PathValue("id"), r.PathValue("rid")
	var (
		comment models.Comment
		liked   bool
		err     error
	)
	if replyID != "" {
		comment, liked, err = h.Posts.ToggleReplyLike(ctx, commentID, replyID, caller.ID)
	} else {
		comment, liked, err = h.Posts.ToggleCommentLike(ctx, commentID, caller.ID)
	}
	if err != nil {
		respondFailure(ctx, w, err, "unable to like comment")
		return
	}

	message := "Unliked"
	if liked {
		message = "Liked"
		if h.Notifier != nil {
			h.Notifier.NotifyBestEffort(ctx, likedAuthor(comment, replyID), caller.ID, notifications.PostLiked(comment.PostID))
		}
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "message": message, "data": comment})
}

// likedAuthor returns the author of the reply replyID under comment, or of comment itself when
// replyID is empty.
func likedAuthor(comment models.Comment, replyID string) string {
	if replyID == "" {
		return comment.UserID
	}
	for _, reply := range comment.Replies {
		if reply.ID == replyID {
			return reply.UserID
		}
	}
	return ""
}

type createPostRequest struct {
	Description string `json:"description" validate:"required"`
}

type commentRequest struct {
	Comment string `json:"comment" validate:"required"`
}

func (req *commentRequest) normalize() { req.Comment = strings.TrimSpace(req.Comment) }

type pagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalPosts   int `json:"totalPosts"`
	PostsPerPage int `json:"postsPerPage"`
}
