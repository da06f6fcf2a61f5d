package chat

import "errors"

// Errors the messaging core emits. Handlers map these onto typed
// failure responses or ERROR frames.
var (
	// ErrSelfMessage is returned when a user messages themselves.
	ErrSelfMessage = errors.New("cannot send a message to yourself")

	// ErrNotFriends is returned when a private send targets a non-friend.
	ErrNotFriends = errors.New("you can only send messages to your friends")

	// ErrGroupNotFound is returned for operations on an unknown group.
	ErrGroupNotFound = errors.New("group not found")

	// ErrNotMember is returned when a non-member operates on a group.
	ErrNotMember = errors.New("not a member of this group")

	// ErrMessageNotFound is returned when a message id cannot be resolved.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotSender is returned when a recall actor is not the sender.
	ErrNotSender = errors.New("only the sender can recall this message")

	// ErrRecallWindow is returned when the recall window has passed.
	ErrRecallWindow = errors.New("recall window has expired")

	// ErrNotRecipient is returned when a read receipt comes from a user
	// the message was not addressed to.
	ErrNotRecipient = errors.New("not the recipient of this message")

	// ErrSelfFriend is returned when a user friend-requests themselves.
	ErrSelfFriend = errors.New("cannot add yourself as a friend")

	// ErrAlreadyFriends is returned for a request between existing friends.
	ErrAlreadyFriends = errors.New("already friends")

	// ErrDuplicateRequest is returned when a pending request already
	// exists in the same direction.
	ErrDuplicateRequest = errors.New("friend request already pending")

	// ErrNoPendingRequest is returned when accepting or rejecting a
	// request that does not exist.
	ErrNoPendingRequest = errors.New("no pending friend request")

	// ErrBadArgument is returned for negative counts and offsets.
	ErrBadArgument = errors.New("bad argument")
)
