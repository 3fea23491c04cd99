package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrForbidden indicates the caller does not own or take part in the record.
	ErrForbidden = errors.New("operation not permitted")

	// ErrSelfRequest is returned when a user sends a friend request to themselves.
	ErrSelfRequest = errors.New("cannot send a friend request to yourself")
	// ErrAlreadyFriends is returned when the pair is already connected.
	ErrAlreadyFriends = errors.New("users are already friends")
	// ErrDuplicateRequest is returned when a pending request exists in either direction.
	ErrDuplicateRequest = errors.New("a pending friend request already exists")
	// ErrRequestResolved is returned when responding to a request that is no longer pending.
	ErrRequestResolved = errors.New("friend request already resolved")

	// ErrInvalidContentIndex is returned for story item indexes outside the story.
	ErrInvalidContentIndex = errors.New("invalid story content index")
	// ErrInvalidParticipants is returned when a conversation would not have two distinct users.
	ErrInvalidParticipants = errors.New("a conversation needs two distinct participants")
)
