package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/infodancer/chatd/internal/chat"
	"github.com/infodancer/chatd/internal/pgstore"
	"github.com/infodancer/chatd/internal/protocol"
)

// userEntry is the compact JSON shape used by user and friend lists.
type userEntry struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

func (d *Dispatcher) handleGetUserList(ctx context.Context, s *Session, f *protocol.Frame) error {
	users, err := d.users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	online, err := d.onlineSet(ctx)
	if err != nil {
		return err
	}

	entries := make([]userEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, userEntry{ID: u.ID, Username: u.Username, Online: online[u.ID]})
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding user list: %w", err)
	}

	return s.conn.WriteFrame(protocol.New(protocol.TypeUserListResponse).
		Set("status", protocol.StatusOK).
		Set("users", string(payload)))
}

func (d *Dispatcher) handleGetUserFriends(ctx context.Context, s *Session, f *protocol.Frame) error {
	friendIDs, err := d.core.ListFriends(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("listing friends for %d: %w", s.userID, err)
	}

	online, err := d.onlineSet(ctx)
	if err != nil {
		return err
	}

	names := make(map[int64]string)
	entries := make([]userEntry, 0, len(friendIDs))
	for _, id := range friendIDs {
		entries = append(entries, userEntry{
			ID:       id,
			Username: d.usernameFor(ctx, names, id),
			Online:   online[id],
		})
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding friend list: %w", err)
	}

	return s.conn.WriteFrame(protocol.New(protocol.TypeUserFriendsResponse).
		Set("status", protocol.StatusOK).
		Set("friends", string(payload)))
}

// handleAddFriend covers the whole friend lifecycle on one type code;
// the action field selects the operation and defaults to "request".
func (d *Dispatcher) handleAddFriend(ctx context.Context, s *Session, f *protocol.Frame) error {
	action, ok := f.Get("action")
	if !ok {
		action = "request"
	}

	fail := func(msg string) error {
		return s.conn.WriteFrame(protocol.New(protocol.TypeAddFriendResponse).
			Set("status", protocol.StatusFailed).
			Set("message", msg))
	}

	if action == "pending" {
		received, err := d.core.ReceivedRequests(ctx, s.userID)
		if err != nil {
			return fmt.Errorf("listing pending requests for %d: %w", s.userID, err)
		}
		payload, err := json.Marshal(received)
		if err != nil {
			return fmt.Errorf("encoding pending requests: %w", err)
		}
		return s.conn.WriteFrame(protocol.New(protocol.TypeAddFriendResponse).
			Set("status", protocol.StatusOK).
			Set("action", "pending").
			Set("requests", string(payload)))
	}

	friend, err := d.resolveFriend(ctx, f)
	if errors.Is(err, pgstore.ErrNotFound) {
		return fail("User not found")
	}
	if err != nil {
		d.writeError(s, "Missing or invalid friendId")
		return nil
	}

	switch action {
	case "request":
		err = d.core.SendFriendRequest(ctx, s.userID, friend.ID)
		switch {
		case errors.Is(err, chat.ErrSelfFriend), errors.Is(err, chat.ErrAlreadyFriends),
			errors.Is(err, chat.ErrDuplicateRequest):
			return fail(clientText(err))
		case err != nil:
			return fmt.Errorf("friend request %d→%d: %w", s.userID, friend.ID, err)
		}

		// Notify the target, if live.
		if peer, online := d.registry.Lookup(friend.ID); online {
			push := protocol.New(protocol.TypeAddFriend).
				Set("action", "request").
				SetInt("fromUserId", s.userID).
				Set("fromUsername", s.username)
			if err := peer.WriteFrame(push); err != nil {
				d.logger.Debug("pushing friend request", "to", friend.ID, "error", err.Error())
			}
		}

		return s.conn.WriteFrame(protocol.New(protocol.TypeAddFriendResponse).
			Set("status", protocol.StatusOK).
			Set("action", "request").
			SetInt("friendId", friend.ID).
			Set("username", friend.Username).
			Set("message", "Friend request sent"))

	case "accept":
		err = d.core.AcceptFriendRequest(ctx, s.userID, friend.ID)
		if errors.Is(err, chat.ErrNoPendingRequest) {
			return fail(clientText(err))
		}
		if err != nil {
			return fmt.Errorf("accepting request from %d: %w", friend.ID, err)
		}

		// Tell the requester their request was accepted.
		if peer, online := d.registry.Lookup(friend.ID); online {
			push := protocol.New(protocol.TypeAddFriendResponse).
				Set("action", "accept").
				SetInt("friendId", s.userID).
				Set("username", s.username).
				Set("message", "Friend request accepted")
			if err := peer.WriteFrame(push); err != nil {
				d.logger.Debug("pushing friend accept", "to", friend.ID, "error", err.Error())
			}
		}

		return s.conn.WriteFrame(protocol.New(protocol.TypeAddFriendResponse).
			Set("status", protocol.StatusOK).
			Set("action", "accept").
			SetInt("friendId", friend.ID).
			Set("username", friend.Username).
			Set("message", "Friend request accepted"))

	case "reject":
		err = d.core.RejectFriendRequest(ctx, s.userID, friend.ID)
		if errors.Is(err, chat.ErrNoPendingRequest) {
			return fail(clientText(err))
		}
		if err != nil {
			return fmt.Errorf("rejecting request from %d: %w", friend.ID, err)
		}
		return s.conn.WriteFrame(protocol.New(protocol.TypeAddFriendResponse).
			Set("status", protocol.StatusOK).
			Set("action", "reject").
			SetInt("friendId", friend.ID).
			Set("message", "Friend request rejected"))

	case "remove":
		if err := d.core.RemoveFriend(ctx, s.userID, friend.ID); err != nil {
			return fmt.Errorf("removing friend %d: %w", friend.ID, err)
		}
		return s.conn.WriteFrame(protocol.New(protocol.TypeAddFriendResponse).
			Set("status", protocol.StatusOK).
			Set("action", "remove").
			SetInt("friendId", friend.ID).
			Set("message", "Friend removed"))

	default:
		return fail("Unknown action")
	}
}

// resolveFriend accepts a numeric id or a username in friendId.
func (d *Dispatcher) resolveFriend(ctx context.Context, f *protocol.Frame) (*pgstore.User, error) {
	raw, ok := f.Get("friendId")
	if !ok || raw == "" {
		return nil, protocol.ErrMissingField
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return d.users.FindByID(ctx, id)
	}
	return d.users.FindByUsername(ctx, raw)
}

// onlineSet snapshots the hot-tier online set as a lookup map.
func (d *Dispatcher) onlineSet(ctx context.Context) (map[int64]bool, error) {
	ids, err := d.core.OnlineUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading online set: %w", err)
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
