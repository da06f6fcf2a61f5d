package chat

import "context"

// IsFriend reports whether two users are friends. The relation is
// symmetric; one half is sufficient to answer, both halves are
// maintained by the mutation paths.
func (c *Core) IsFriend(ctx context.Context, a, b int64) (bool, error) {
	return c.store.SIsMember(ctx, UserFriendsKey(a), formatID(b))
}

// ListFriends returns a user's friend ids.
func (c *Core) ListFriends(ctx context.Context, userID int64) ([]int64, error) {
	members, err := c.store.SMembers(ctx, UserFriendsKey(userID))
	if err != nil {
		return nil, err
	}
	return parseIDs(members), nil
}

// SendFriendRequest records a pending directed edge from one user to
// another.
func (c *Core) SendFriendRequest(ctx context.Context, from, to int64) error {
	if from == to {
		return ErrSelfFriend
	}

	friends, err := c.IsFriend(ctx, from, to)
	if err != nil {
		return err
	}
	if friends {
		return ErrAlreadyFriends
	}

	pending, err := c.store.SIsMember(ctx, SentRequestsKey(from), formatID(to))
	if err != nil {
		return err
	}
	if pending {
		return ErrDuplicateRequest
	}

	if err := c.store.SAdd(ctx, SentRequestsKey(from), formatID(to)); err != nil {
		return err
	}
	return c.store.SAdd(ctx, ReceivedRequestsKey(to), formatID(from))
}

// AcceptFriendRequest clears the pending edge from the requester and
// creates both halves of the friendship.
func (c *Core) AcceptFriendRequest(ctx context.Context, userID, from int64) error {
	pending, err := c.store.SIsMember(ctx, ReceivedRequestsKey(userID), formatID(from))
	if err != nil {
		return err
	}
	if !pending {
		return ErrNoPendingRequest
	}

	if err := c.clearRequest(ctx, from, userID); err != nil {
		return err
	}

	if err := c.store.SAdd(ctx, UserFriendsKey(userID), formatID(from)); err != nil {
		return err
	}
	return c.store.SAdd(ctx, UserFriendsKey(from), formatID(userID))
}

// RejectFriendRequest clears the pending edge without creating a
// friendship. The requester is not notified.
func (c *Core) RejectFriendRequest(ctx context.Context, userID, from int64) error {
	pending, err := c.store.SIsMember(ctx, ReceivedRequestsKey(userID), formatID(from))
	if err != nil {
		return err
	}
	if !pending {
		return ErrNoPendingRequest
	}
	return c.clearRequest(ctx, from, userID)
}

// ReceivedRequests returns ids of users with a pending request to userID.
func (c *Core) ReceivedRequests(ctx context.Context, userID int64) ([]int64, error) {
	members, err := c.store.SMembers(ctx, ReceivedRequestsKey(userID))
	if err != nil {
		return nil, err
	}
	return parseIDs(members), nil
}

// SentRequests returns ids of users userID has a pending request to.
func (c *Core) SentRequests(ctx context.Context, userID int64) ([]int64, error) {
	members, err := c.store.SMembers(ctx, SentRequestsKey(userID))
	if err != nil {
		return nil, err
	}
	return parseIDs(members), nil
}

// RemoveFriend deletes both halves of a friendship.
func (c *Core) RemoveFriend(ctx context.Context, a, b int64) error {
	if err := c.store.SRem(ctx, UserFriendsKey(a), formatID(b)); err != nil {
		return err
	}
	return c.store.SRem(ctx, UserFriendsKey(b), formatID(a))
}

// clearRequest removes the directed pending edge from→to.
func (c *Core) clearRequest(ctx context.Context, from, to int64) error {
	if err := c.store.SRem(ctx, SentRequestsKey(from), formatID(to)); err != nil {
		return err
	}
	return c.store.SRem(ctx, ReceivedRequestsKey(to), formatID(from))
}
