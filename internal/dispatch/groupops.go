package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/infodancer/chatd/internal/chat"
	"github.com/infodancer/chatd/internal/protocol"
)

func (d *Dispatcher) handleCreateGroup(ctx context.Context, s *Session, f *protocol.Frame) error {
	name, ok := f.Get("groupName")
	if !ok || name == "" {
		return s.conn.WriteFrame(protocol.New(protocol.TypeCreateGroupResponse).
			Set("status", protocol.StatusFailed).
			Set("errorMsg", "Missing groupName"))
	}
	if !protocol.ValidValue(name) {
		return s.conn.WriteFrame(protocol.New(protocol.TypeCreateGroupResponse).
			Set("status", protocol.StatusFailed).
			Set("errorMsg", "Invalid characters in groupName"))
	}

	groupID, err := d.core.CreateGroup(ctx, name, s.userID)
	if err != nil {
		return fmt.Errorf("creating group %q: %w", name, err)
	}

	d.logger.Info("group created", "group_id", groupID, "creator", s.userID)
	return s.conn.WriteFrame(protocol.New(protocol.TypeCreateGroupResponse).
		Set("status", protocol.StatusOK).
		SetInt("groupId", groupID).
		Set("groupName", name))
}

func (d *Dispatcher) handleJoinGroup(ctx context.Context, s *Session, f *protocol.Frame) error {
	groupID, err := f.GetInt("groupId")
	if err != nil {
		d.writeError(s, "Missing or invalid groupId")
		return nil
	}

	err = d.core.JoinGroup(ctx, s.userID, groupID)
	switch {
	case errors.Is(err, chat.ErrGroupNotFound):
		return s.conn.WriteFrame(protocol.New(protocol.TypeJoinGroupResponse).
			Set("status", protocol.StatusFailed).
			SetInt("groupId", groupID).
			Set("errorMsg", clientText(err)))
	case err != nil:
		return fmt.Errorf("joining group %d: %w", groupID, err)
	}

	return s.conn.WriteFrame(protocol.New(protocol.TypeJoinGroupResponse).
		Set("status", protocol.StatusOK).
		SetInt("groupId", groupID))
}

func (d *Dispatcher) handleLeaveGroup(ctx context.Context, s *Session, f *protocol.Frame) error {
	groupID, err := f.GetInt("groupId")
	if err != nil {
		d.writeError(s, "Missing or invalid groupId")
		return nil
	}

	err = d.core.LeaveGroup(ctx, s.userID, groupID)
	switch {
	case errors.Is(err, chat.ErrGroupNotFound), errors.Is(err, chat.ErrNotMember):
		return s.conn.WriteFrame(protocol.New(protocol.TypeLeaveGroupResponse).
			Set("status", protocol.StatusFailed).
			SetInt("groupId", groupID).
			Set("errorMsg", clientText(err)))
	case err != nil:
		return fmt.Errorf("leaving group %d: %w", groupID, err)
	}

	return s.conn.WriteFrame(protocol.New(protocol.TypeLeaveGroupResponse).
		Set("status", protocol.StatusOK).
		SetInt("groupId", groupID))
}

func (d *Dispatcher) handleGetGroupList(ctx context.Context, s *Session, f *protocol.Frame) error {
	groupIDs, err := d.core.UserGroups(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("listing groups for %d: %w", s.userID, err)
	}

	type groupEntry struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		Creator int64  `json:"creator"`
	}
	entries := make([]groupEntry, 0, len(groupIDs))
	for _, id := range groupIDs {
		info, err := d.core.GroupInfo(ctx, id)
		if errors.Is(err, chat.ErrGroupNotFound) {
			// Deleted since the membership set was read; skip.
			continue
		}
		if err != nil {
			return fmt.Errorf("reading group %d: %w", id, err)
		}
		entries = append(entries, groupEntry{ID: info.ID, Name: info.Name, Creator: info.CreatorID})
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding group list: %w", err)
	}

	return s.conn.WriteFrame(protocol.New(protocol.TypeGroupListResponse).
		Set("status", protocol.StatusOK).
		Set("groups", string(payload)))
}

func (d *Dispatcher) handleGetGroupMembers(ctx context.Context, s *Session, f *protocol.Frame) error {
	groupID, err := f.GetInt("groupId")
	if err != nil {
		d.writeError(s, "Missing or invalid groupId")
		return nil
	}

	exists, err := d.core.GroupExists(ctx, groupID)
	if err != nil {
		return fmt.Errorf("checking group %d: %w", groupID, err)
	}
	if !exists {
		return s.conn.WriteFrame(protocol.New(protocol.TypeGroupMembersResp).
			Set("status", protocol.StatusFailed).
			SetInt("groupId", groupID).
			Set("errorMsg", clientText(chat.ErrGroupNotFound)))
	}

	members, err := d.core.GroupMembers(ctx, groupID)
	if err != nil {
		return fmt.Errorf("listing members of group %d: %w", groupID, err)
	}

	payload, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("encoding member list: %w", err)
	}

	return s.conn.WriteFrame(protocol.New(protocol.TypeGroupMembersResp).
		Set("status", protocol.StatusOK).
		SetInt("groupId", groupID).
		Set("members", string(payload)))
}
