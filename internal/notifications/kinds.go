package notifications

import (
	"errors"
	"fmt"
)

// Kind enumerates notification types.
type Kind string

const (
	KindLike          Kind = "like"
	KindPost          Kind = "post"
	KindNewPost       Kind = "new_post"
	KindFriendRequest Kind = "friend_request"
	KindFriendAccept  Kind = "friend_accept"
	KindGroupInvite   Kind = "group_invite"
	KindEventInvite   Kind = "event_invite"
	KindNewComment    Kind = "new_comment"
	KindStoryLike     Kind = "story_like"
	KindStoryComment  Kind = "story_comment"
)

// ErrInvalidEvent is returned when an event's payload does not match its kind.
var ErrInvalidEvent = errors.New("invalid notification event")

// postScoped lists the kinds that must reference a post.
var postScoped = map[Kind]bool{
	KindLike:          true,
	KindPost:          true,
	KindNewPost:       true,
	KindNewComment:    true,
	KindFriendRequest: false,
	KindFriendAccept:  false,
	KindGroupInvite:   false,
	KindEventInvite:   false,
	KindStoryLike:     false,
	KindStoryComment:  false,
}

// Event is a typed notification payload. Build one with the constructors below.
type Event struct {
	kind   Kind
	postID string
}

// Kind returns the event kind.
func (e Event) Kind() Kind { return e.kind }

// PostID returns the related post, empty for kinds without one.
func (e Event) PostID() string { return e.postID }

// Validate checks the payload against the kind.
func (e Event) Validate() error {
	scoped, known := postScoped[e.kind]
	switch {
	case !known:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.kind)
	case scoped && e.postID == "":
		return fmt.Errorf("%w: %s requires a post", ErrInvalidEvent, e.kind)
	case !scoped && e.postID != "":
		return fmt.Errorf("%w: %s does not reference a post", ErrInvalidEvent, e.kind)
	}
	return nil
}

// PostLiked reports a like on a post, or on a comment or reply under it.
func PostLiked(postID string) Event { return Event{kind: KindLike, postID: postID} }

// PostCommented reports a comment on a post, or a reply to one of its comments.
func PostCommented(postID string) Event { return Event{kind: KindNewComment, postID: postID} }

// PostPublished tells a friend about a new post.
func PostPublished(postID string) Event { return Event{kind: KindNewPost, postID: postID} }

// PostMentioned points the recipient at a post.
func PostMentioned(postID string) Event { return Event{kind: KindPost, postID: postID} }

// FriendRequested reports an incoming friend request.
func FriendRequested() Event { return Event{kind: KindFriendRequest} }

// FriendAccepted reports that a sent friend request was accepted.
func FriendAccepted() Event { return Event{kind: KindFriendAccept} }

// GroupInvited reports a group invitation.
func GroupInvited() Event { return Event{kind: KindGroupInvite} }

// EventInvited reports an event invitation.
func EventInvited() Event { return Event{kind: KindEventInvite} }

// StoryLiked reports a like on one of the recipient's story items.
func StoryLiked() Event { return Event{kind: KindStoryLike} }

// StoryCommented reports a comment on one of the recipient's story items.
func StoryCommented() Event { return Event{kind: KindStoryComment} }

// ParseKind validates a stored kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := postScoped[k]; !ok {
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, s)
	}
	return k, nil
}

// NewEvent builds an event from an untyped kind and post id, as received over the API.
func NewEvent(kind, postID string) (Event, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return Event{}, err
	}
	e := Event{kind: k, postID: postID}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
