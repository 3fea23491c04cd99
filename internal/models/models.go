package models

import "time"

// User represents an account on the network. Password holds the bcrypt hash and is never serialized.
type User struct {
	ID               string    `json:"id"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	Email            string    `json:"email"`
	Password         string    `json:"-"`
	Location         string    `json:"location,omitempty"`
	ProfileURL       string    `json:"profileUrl,omitempty"`
	Profession       string    `json:"profession,omitempty"`
	Verified         bool      `json:"verified"`
	DailyPostCredits int       `json:"dailyPostCredits"`
	PurchasedCredits int       `json:"purchasedCredits"`
	LastCreditReset  time.Time `json:"lastCreditReset"`
	Friends          []string  `json:"friends,omitempty"`
	Views            []string  `json:"views,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// UserSummary is the public projection embedded in posts, comments and messages.
type UserSummary struct {
	ID         string `json:"id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Location   string `json:"location,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`
	Profession string `json:"profession,omitempty"`
}

// Summary projects the public fields of a user.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:         u.ID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Location:   u.Location,
		ProfileURL: u.ProfileURL,
		Profession: u.Profession,
	}
}

// Friend request states.
const (
	FriendRequestPending  = "Pending"
	FriendRequestAccepted = "Accepted"
	FriendRequestDeclined = "Declined"
)

// FriendRequest represents the invitation workflow between two users.
type FriendRequest struct {
	ID          string       `json:"id"`
	RequestFrom string       `json:"requestFrom"`
	RequestTo   string       `json:"requestTo"`
	Status      string       `json:"requestStatus"`
	CreatedAt   time.Time    `json:"createdAt"`
	RespondedAt *time.Time   `json:"respondedAt,omitempty"`
	From        *UserSummary `json:"from,omitempty"`
}

// Media kinds accepted for posts, stories and messages.
const (
	MediaImage = "image"
	MediaVideo = "video"
	MediaAudio = "audio"
	MediaFile  = "file"
)

// Post is a piece of user content in the feed.
type Post struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	Author      *UserSummary `json:"author,omitempty"`
	Description string       `json:"description"`
	MediaURL    string       `json:"media,omitempty"`
	MediaType   string       `json:"mediaType,omitempty"`
	Likes       []string     `json:"likes"`
	Comments    []Comment    `json:"comments,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Comment is attached to a post and owns an ordered list of replies.
type Comment struct {
	ID        string       `json:"id"`
	PostID    string       `json:"postId"`
	UserID    string       `json:"userId"`
	Author    *UserSummary `json:"author,omitempty"`
	Comment   string       `json:"comment"`
	Likes     []string     `json:"likes"`
	Replies   []Reply      `json:"replies"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Reply is a single-level answer to a comment.
type Reply struct {
	ID        string       `json:"id"`
	CommentID string       `json:"commentId"`
	UserID    string       `json:"userId"`
	Author    *UserSummary `json:"author,omitempty"`
	Comment   string       `json:"comment"`
	Likes     []string     `json:"likes"`
	ReplyAt   time.Time    `json:"replyAt"`
}

// Story is a container of media items sharing a single expiry.
type Story struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Author    *UserSummary `json:"author,omitempty"`
	Content   []StoryItem  `json:"content"`
	ExpiresAt time.Time    `json:"expiresAt"`
	CreatedAt time.Time    `json:"createdAt"`
}

// StoryItem is an individually likable and commentable entry of a story.
type StoryItem struct {
	Type        string         `json:"type"`
	URL         string         `json:"url"`
	Description string         `json:"description,omitempty"`
	DurationMS  int            `json:"duration"`
	Likes       []string       `json:"likes"`
	Comments    []StoryComment `json:"comments"`
}

// StoryComment is a comment on a story item.
type StoryComment struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Author    *UserSummary `json:"user,omitempty"`
	Text      string       `json:"text"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Conversation groups the messages exchanged between its participants.
type Conversation struct {
	ID           string        `json:"id"`
	Participants []UserSummary `json:"participants"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// Message types.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageVideo = "video"
	MessageAudio = "audio"
	MessageFile  = "file"
)

// Message is an immutable entry in a conversation.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation"`
	SenderID       string       `json:"senderId"`
	Sender         *UserSummary `json:"sender,omitempty"`
	Content        string       `json:"content"`
	MessageType    string       `json:"messageType"`
	Thumbnail      string       `json:"thumbnail,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Notification is an entry in a recipient's feed.
type Notification struct {
	ID          string       `json:"id"`
	RecipientID string       `json:"recipient"`
	SenderID    string       `json:"senderId"`
	Sender      *UserSummary `json:"sender,omitempty"`
	Type        string       `json:"type"`
	PostID      string       `json:"post,omitempty"`
	Read        bool         `json:"read"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"token"`
	AccessExpiresAt  time.Time `json:"expiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// OneTimeToken purposes.
const (
	TokenEmailVerification = "email_verification"
	TokenPasswordReset     = "password_reset"
)

// OneTimeToken is a hashed, expiring token mailed to a user.
type OneTimeToken struct {
	UserID    string
	Purpose   string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}
