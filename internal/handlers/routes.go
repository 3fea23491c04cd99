package handlers

import (
	"net/http"
	"time"

	"github.com/linkup/backend/internal/middleware"
	"github.com/linkup/backend/internal/models"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Accounts      AccountStore
	Profiles      ProfileStore
	Tokens        TokenStore
	Sessions      SessionManager
	Authenticator middleware.TokenAuthenticator
	Mail          Mailer
	Limiter       RateLimiter
	Friends       FriendStore
	Posts         PostStore
	Credits       CreditLedger
	Stories       StoryStore
	Conversations ConversationStore
	Media         MediaUploader
	Hub           Broadcaster
	Notifications NotificationFeed
	Notifier      Notifier
	Realtime      http.Handler
	Database      Pinger
	Checks        map[string]Pinger

	BaseURL         string
	DailyCredits    int
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	StoryTTL        time.Duration
	NowFunc         func() time.Time
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Database: deps.Database, Checks: deps.Checks}
	auth := AuthHandler{
		Users:           deps.Accounts,
		Sessions:        deps.Sessions,
		Tokens:          deps.Tokens,
		Mail:            deps.Mail,
		Limiter:         deps.Limiter,
		BaseURL:         deps.BaseURL,
		DailyCredits:    deps.DailyCredits,
		VerificationTTL: deps.VerificationTTL,
		ResetTTL:        deps.ResetTTL,
		NowFunc:         deps.NowFunc,
	}
	users := UserHandler{Profiles: deps.Profiles, Media: deps.Media, NowFunc: deps.NowFunc}
	friends := FriendHandler{Friends: deps.Friends, Notifier: deps.Notifier, NowFunc: deps.NowFunc}
	posts := PostHandler{
		Posts:    deps.Posts,
		Credits:  deps.Credits,
		Friends:  deps.Friends,
		Media:    deps.Media,
		Notifier: deps.Notifier,
		NowFunc:  deps.NowFunc,
	}
	stories := StoryHandler{Stories: deps.Stories, Media: deps.Media, Notifier: deps.Notifier, TTL: deps.StoryTTL, NowFunc: deps.NowFunc}
	messages := MessageHandler{Conversations: deps.Conversations, Media: deps.Media, Hub: deps.Hub, NowFunc: deps.NowFunc}
	notes := NotificationHandler{Feed: deps.Notifications}
	credits := CreditHandler{Ledger: deps.Credits}

	var protect func(http.Handler) http.Handler
	if deps.Authenticator != nil && deps.Accounts != nil {
		protect = middleware.RequireAuth(deps.Authenticator, deps.Accounts)
	} else {
		protect = func(next http.Handler) http.Handler { return next }
	}
	private := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, protect(fn))
	}

	mux.HandleFunc("GET /healthz", health.Handle)
	if deps.Realtime != nil {
		mux.Handle("GET /ws", deps.Realtime)
	}

	mux.HandleFunc("POST /auth/register", auth.Register)
	mux.HandleFunc("POST /auth/login", auth.Login)
	mux.HandleFunc("POST /auth/refresh", auth.Refresh)
	mux.HandleFunc("POST /auth/logout", auth.Logout)
	mux.HandleFunc("GET /users/verify/{userId}/{token}", auth.VerifyEmail)
	mux.HandleFunc("POST /users/request-passwordreset", auth.RequestPasswordReset)
	mux.HandleFunc("GET /users/reset-password/{userId}/{token}", auth.ValidateResetLink)
	mux.HandleFunc("POST /users/reset-password", auth.ResetPassword)

	private("GET /users/get-user", users.Get)
	private("GET /users/get-user/{id}", users.Get)
	private("PUT /users/update-user", users.Update)
	private("POST /users/profile-view", users.ProfileView)
	private("GET /users/search", users.Search)
	private("POST /users/suggested-friends", users.Suggested)
	private("POST /users/friend-request", friends.SendRequest)
	private("POST /users/get-friend-request", friends.ListRequests)
	private("POST /users/accept-request", friends.Respond)
	private("GET /users/friends", friends.List)

	private("POST /posts/create-post", posts.Create)
	private("GET /posts/get-posts", posts.Feed)
	private("POST /posts/{$}", posts.Feed)
	private("GET /posts/search", posts.Search)
	private("GET /posts/{id}", posts.Get)
	private("DELETE /posts/{id}", posts.Delete)
	private("GET /posts/user/{id}", posts.ListByUser)
	private("GET /posts/comments/{postId}", posts.Comments)
	private("POST /posts/like/{id}", posts.Like)
	private("POST /posts/comment/{postId}", posts.Comment)
	private("POST /posts/reply/{commentId}", posts.Reply)
	private("POST /posts/like-comment/{id}", posts.LikeComment)
	private("POST /posts/like-comment/{id}/{rid}", posts.LikeComment)

	private("POST /stories/create", stories.Create)
	private("GET /stories/{$}", stories.List)
	private("POST /stories/{storyId}/like", stories.Like)
	private("POST /stories/{storyId}/comment", stories.Comment)
	private("GET /stories/{storyId}/likes/{contentIndex}", stories.Likes)
	private("GET /stories/{storyId}/comments/{contentIndex}", stories.Comments)

	private("POST /messages/conversations", messages.StartConversation)
	private("GET /messages/conversations", messages.ListConversations)
	private("POST /messages/messages", messages.Send)
	private("GET /messages/messages/{conversationId}", messages.Messages)
	for _, kind := range []string{models.MessageVideo, models.MessageImage, models.MessageAudio, models.MessageFile} {
		private("POST /messages/"+kind, messages.SendMedia(kind))
	}

	private("GET /notifications/{$}", notes.List)
	private("POST /notifications/{$}", notes.Create)
	private("PUT /notifications/mark-all-read", notes.MarkAllRead)
	private("PUT /notifications/{id}/mark-read", notes.MarkRead)
	private("DELETE /notifications/archive", notes.Archive)

	private("GET /credits/{userId}", credits.Balance)
	private("POST /credits", credits.Purchase)
}
