package chat

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// CreateGroup creates a group: the durable row first (which assigns
// the id), then the hot-tier metadata and membership seeded with the
// creator.
func (c *Core) CreateGroup(ctx context.Context, name string, creatorID int64) (int64, error) {
	groupID, err := c.cold.CreateGroup(ctx, name, creatorID)
	if err != nil {
		return 0, fmt.Errorf("creating group %q: %w", name, err)
	}

	key := GroupKey(groupID)
	if err := c.store.HSet(ctx, key, "name", name); err != nil {
		return 0, err
	}
	if err := c.store.HSet(ctx, key, "creator", formatID(creatorID)); err != nil {
		return 0, err
	}
	if err := c.store.HSet(ctx, key, "createTime", formatID(c.nowMillis())); err != nil {
		return 0, err
	}

	if err := c.store.SAdd(ctx, GroupMembersKey(groupID), formatID(creatorID)); err != nil {
		return 0, err
	}
	if err := c.store.SAdd(ctx, UserGroupsKey(creatorID), formatID(groupID)); err != nil {
		return 0, err
	}

	return groupID, nil
}

// GroupExists reports whether the group metadata key exists.
func (c *Core) GroupExists(ctx context.Context, groupID int64) (bool, error) {
	return c.store.Exists(ctx, GroupKey(groupID))
}

// GroupInfo returns the hot-tier metadata for a group.
func (c *Core) GroupInfo(ctx context.Context, groupID int64) (Group, error) {
	meta, err := c.store.HGetAll(ctx, GroupKey(groupID))
	if err != nil {
		return Group{}, err
	}
	if len(meta) == 0 {
		return Group{}, ErrGroupNotFound
	}

	creator, _ := strconv.ParseInt(meta["creator"], 10, 64)
	created, _ := strconv.ParseInt(meta["createTime"], 10, 64)
	return Group{
		ID:        groupID,
		Name:      meta["name"],
		CreatorID: creator,
		CreatedAt: created,
	}, nil
}

// IsMember reports whether a user belongs to a group.
func (c *Core) IsMember(ctx context.Context, userID, groupID int64) (bool, error) {
	return c.store.SIsMember(ctx, GroupMembersKey(groupID), formatID(userID))
}

// GroupMembers returns the member ids of a group.
func (c *Core) GroupMembers(ctx context.Context, groupID int64) ([]int64, error) {
	members, err := c.store.SMembers(ctx, GroupMembersKey(groupID))
	if err != nil {
		return nil, err
	}
	return parseIDs(members), nil
}

// UserGroups returns the ids of all groups a user belongs to.
func (c *Core) UserGroups(ctx context.Context, userID int64) ([]int64, error) {
	groups, err := c.store.SMembers(ctx, UserGroupsKey(userID))
	if err != nil {
		return nil, err
	}
	return parseIDs(groups), nil
}

// JoinGroup adds a user to an existing group.
func (c *Core) JoinGroup(ctx context.Context, userID, groupID int64) error {
	exists, err := c.GroupExists(ctx, groupID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrGroupNotFound
	}

	if err := c.store.SAdd(ctx, GroupMembersKey(groupID), formatID(userID)); err != nil {
		return err
	}
	return c.store.SAdd(ctx, UserGroupsKey(userID), formatID(groupID))
}

// LeaveGroup removes a user from a group. When the creator leaves and
// the membership becomes empty, the group and its message stream are
// deleted.
func (c *Core) LeaveGroup(ctx context.Context, userID, groupID int64) error {
	exists, err := c.GroupExists(ctx, groupID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrGroupNotFound
	}

	member, err := c.IsMember(ctx, userID, groupID)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotMember
	}

	creator, err := c.store.HGet(ctx, GroupKey(groupID), "creator")
	if err != nil {
		return err
	}

	if err := c.store.SRem(ctx, GroupMembersKey(groupID), formatID(userID)); err != nil {
		return err
	}
	if err := c.store.SRem(ctx, UserGroupsKey(userID), formatID(groupID)); err != nil {
		return err
	}

	if creator == formatID(userID) {
		remaining, err := c.store.SCard(ctx, GroupMembersKey(groupID))
		if err != nil {
			return err
		}
		if remaining == 0 {
			c.logger.Info("deleting empty group after creator left",
				"group_id", groupID)
			return c.store.Del(ctx,
				GroupKey(groupID),
				GroupMembersKey(groupID),
				GroupMessagesKey(groupID),
			)
		}
	}

	return nil
}

// SendGroup appends a message to the group's hot stream, bounded to
// the last 200 entries, and parks copies for offline members. The
// returned member list (sender excluded) is for the caller's live
// fan-out.
func (c *Core) SendGroup(ctx context.Context, from, groupID int64, content string) (Message, []int64, error) {
	exists, err := c.GroupExists(ctx, groupID)
	if err != nil {
		return Message{}, nil, err
	}
	if !exists {
		return Message{}, nil, ErrGroupNotFound
	}

	member, err := c.IsMember(ctx, from, groupID)
	if err != nil {
		return Message{}, nil, err
	}
	if !member {
		return Message{}, nil, ErrNotMember
	}

	msg := Message{
		ID:        uuid.NewString(),
		From:      from,
		Group:     groupID,
		Content:   content,
		Timestamp: c.nowMillis(),
		Kind:      KindGroup,
	}

	data, err := msg.Encode()
	if err != nil {
		return Message{}, nil, err
	}

	key := GroupMessagesKey(groupID)
	if err := c.store.RPush(ctx, key, data); err != nil {
		return Message{}, nil, fmt.Errorf("appending to %s: %w", key, err)
	}
	if err := c.store.LTrim(ctx, key, -groupHotLimit, -1); err != nil {
		return Message{}, nil, fmt.Errorf("trimming %s: %w", key, err)
	}

	if err := c.store.HSet(ctx, MessageKey(msg.ID), "data", data); err != nil {
		return Message{}, nil, err
	}

	members, err := c.GroupMembers(ctx, groupID)
	if err != nil {
		return Message{}, nil, err
	}

	recipients := make([]int64, 0, len(members))
	for _, m := range members {
		if m == from {
			continue
		}
		recipients = append(recipients, m)

		online, err := c.IsOnline(ctx, m)
		if err != nil {
			return Message{}, nil, err
		}
		if !online {
			if err := c.store.RPush(ctx, OfflineKey(m), data); err != nil {
				return Message{}, nil, fmt.Errorf("parking offline for %d: %w", m, err)
			}
		}
	}

	return msg, recipients, nil
}
