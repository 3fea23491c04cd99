package handlers

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"time"

	"github.com/linkup/backend/internal/credits"
	"github.com/linkup/backend/internal/media"
	"github.com/linkup/backend/internal/models"
	"github.com/linkup/backend/internal/notifications"
)

// AccountStore captures the persistence operations required by the auth handlers.
type AccountStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	SetPassword(ctx context.Context, userID, passwordHash string, at time.Time) error
	MarkVerified(ctx context.Context, userID string, at time.Time) error
}

// ProfileStore captures profile reads and writes.
type ProfileStore interface {
	FindProfile(ctx context.Context, id string) (models.User, error)
	UpdateProfile(ctx context.Context, user models.User) (models.User, error)
	RecordProfileView(ctx context.Context, ownerID, viewerID string, at time.Time) error
	Search(ctx context.Context, term, excludeID string, limit int) ([]models.UserSummary, error)
	Suggest(ctx context.Context, userID string, limit int) ([]models.UserSummary, error)
}

// TokenStore persists hashed one-time tokens for verification and password resets.
type TokenStore interface {
	Save(ctx context.Context, token models.OneTimeToken) error
	Find(ctx context.Context, userID, purpose string) (models.OneTimeToken, error)
	Delete(ctx context.Context, userID, purpose string) error
}

// SessionManager issues and refreshes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string) error
	RevokeAll(ctx context.Context, userID string) (int64, error)
}

// Mailer delivers account emails.
type Mailer interface {
	SendVerification(ctx context.Context, to models.User, link string) error
	SendPasswordReset(ctx context.Context, to models.User, link string) error
}

// RateLimiter throttles callers by key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// FriendStore captures operations required by the friend handlers.
type FriendStore interface {
	CreateRequest(ctx context.Context, request models.FriendRequest) error
	Respond(ctx context.Context, requestID, responderID, status string, at time.Time) (models.FriendRequest, error)
	ListPendingFor(ctx context.Context, userID string, limit int) ([]models.FriendRequest, error)
	ListFriends(ctx context.Context, userID string) ([]models.UserSummary, error)
}

// PostStore captures posts and their engagement.
type PostStore interface {
	CreateWithCredits(ctx context.Context, post models.Post, charge credits.Charge) (models.Post, int, error)
	FindByID(ctx context.Context, id string) (models.Post, error)
	Owner(ctx context.Context, postID string) (string, error)
	ListFeed(ctx context.Context, search string, offset, limit int) ([]models.Post, int, error)
	Search(ctx context.Context, query string, limit int) ([]models.Post, error)
	ListByUser(ctx context.Context, userID string) ([]models.Post, error)
	Delete(ctx context.Context, postID, ownerID string) error
	ToggleLike(ctx context.Context, postID, userID string) (models.Post, bool, error)
	AddComment(ctx context.Context, comment models.Comment) (models.Comment, error)
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)
	AddReply(ctx context.Context, reply models.Reply) (models.Comment, error)
	ToggleCommentLike(ctx context.Context, commentID, userID string) (models.Comment, bool, error)
	ToggleReplyLike(ctx context.Context, commentID, replyID, userID string) (models.Comment, bool, error)
}

// CreditLedger exposes the credit balance operations.
type CreditLedger interface {
	Charge(amount int) credits.Charge
	PostCost() int
	Balance(ctx context.Context, userID string) (int, error)
	AddPurchased(ctx context.Context, userID string, amount int) (int, error)
}

// StoryStore captures story persistence and engagement.
type StoryStore interface {
	Create(ctx context.Context, story models.Story) (models.Story, error)
	ListVisible(ctx context.Context, viewerID string, now time.Time) ([]models.Story, error)
	ToggleItemLike(ctx context.Context, storyID string, index int, viewerID string, now time.Time) (models.Story, bool, error)
	AddItemComment(ctx context.Context, storyID string, index int, comment models.StoryComment, now time.Time) (models.Story, error)
	ItemLikes(ctx context.Context, storyID string, index int, viewerID string, now time.Time) ([]models.UserSummary, error)
	ItemComments(ctx context.Context, storyID string, index int, viewerID string, now time.Time) ([]models.StoryComment, error)
}

// ConversationStore captures conversations and their messages.
type ConversationStore interface {
	FindOrCreate(ctx context.Context, id, a, b string, at time.Time) (models.Conversation, bool, error)
	ListForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	AddMessage(ctx context.Context, message models.Message) (models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// Broadcaster relays payloads to the sockets joined to a room.
type Broadcaster interface {
	Broadcast(room string, payload json.RawMessage) int
}

// Notifier records engagement notifications without failing the caller.
type Notifier interface {
	NotifyBestEffort(ctx context.Context, recipientID, senderID string, event notifications.Event)
}

// NotificationFeed serves a recipient's notifications.
type NotificationFeed interface {
	Notify(ctx context.Context, recipientID, senderID string, event notifications.Event) (models.Notification, error)
	List(ctx context.Context, recipientID string, page, limit int) (notifications.Page, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Sweep(ctx context.Context) (int64, error)
}

// MediaUploader stores uploaded files.
type MediaUploader interface {
	Upload(ctx context.Context, folder string, fh *multipart.FileHeader) (media.Asset, error)
}

// FriendLister lists a user's friends for fan-out.
type FriendLister interface {
	ListFriends(ctx context.Context, userID string) ([]models.UserSummary, error)
}
