package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/infodancer/chatd/internal/chat"
	"github.com/infodancer/chatd/internal/protocol"
)

func (d *Dispatcher) handlePrivateChat(ctx context.Context, s *Session, f *protocol.Frame) error {
	to, err := f.GetInt("toUserId")
	if err != nil {
		d.writeError(s, "Missing or invalid toUserId")
		return nil
	}
	content, ok := f.Get("content")
	if !ok || content == "" {
		d.writeError(s, "Missing content")
		return nil
	}
	if !protocol.ValidValue(content) {
		d.writeError(s, "Invalid characters in content")
		return nil
	}

	msg, queued, err := d.core.SendPrivate(ctx, s.userID, to, content)
	switch {
	case errors.Is(err, chat.ErrSelfMessage), errors.Is(err, chat.ErrNotFriends):
		d.writeErrorMessage(s, clientText(err))
		return nil
	case err != nil:
		return fmt.Errorf("private send from %d to %d: %w", s.userID, to, err)
	}

	d.metrics.MessageSent("private")
	if queued {
		d.metrics.OfflineQueued("private")
	}

	// Live delivery to the recipient's session, if any.
	if peer, online := d.registry.Lookup(to); online {
		push := protocol.New(protocol.TypePrivateChat).
			SetInt("fromUserId", msg.From).
			Set("fromUsername", s.username).
			Set("content", msg.Content).
			SetInt("timestamp", msg.Timestamp).
			Set("messageId", msg.ID)
		if err := peer.WriteFrame(push); err != nil {
			d.logger.Debug("pushing private message", "to", to, "error", err.Error())
		}
	}

	return s.conn.WriteFrame(protocol.New(protocol.TypePrivateChat).
		Set("status", protocol.StatusOK).
		Set("messageId", msg.ID).
		SetInt("timestamp", msg.Timestamp))
}

func (d *Dispatcher) handleGroupChat(ctx context.Context, s *Session, f *protocol.Frame) error {
	groupID, err := f.GetInt("groupId")
	if err != nil {
		d.writeError(s, "Missing or invalid groupId")
		return nil
	}
	content, ok := f.Get("content")
	if !ok || content == "" {
		d.writeError(s, "Missing content")
		return nil
	}
	if !protocol.ValidValue(content) {
		d.writeError(s, "Invalid characters in content")
		return nil
	}

	msg, recipients, err := d.core.SendGroup(ctx, s.userID, groupID, content)
	switch {
	case errors.Is(err, chat.ErrGroupNotFound), errors.Is(err, chat.ErrNotMember):
		d.writeErrorMessage(s, clientText(err))
		return nil
	case err != nil:
		return fmt.Errorf("group send from %d to group %d: %w", s.userID, groupID, err)
	}

	d.metrics.MessageSent("group")

	push := protocol.New(protocol.TypeGroupChat).
		SetInt("groupId", msg.Group).
		SetInt("fromUserId", msg.From).
		Set("fromUsername", s.username).
		Set("content", msg.Content).
		SetInt("timestamp", msg.Timestamp).
		Set("messageId", msg.ID)
	for _, member := range recipients {
		peer, online := d.registry.Lookup(member)
		if !online {
			continue
		}
		if err := peer.WriteFrame(push); err != nil {
			d.logger.Debug("pushing group message", "to", member, "error", err.Error())
		}
	}

	return s.conn.WriteFrame(protocol.New(protocol.TypeGroupChat).
		Set("status", protocol.StatusOK).
		SetInt("groupId", msg.Group).
		Set("messageId", msg.ID).
		SetInt("timestamp", msg.Timestamp))
}

func (d *Dispatcher) handleGetChatHistory(ctx context.Context, s *Session, f *protocol.Frame) error {
	kind, _ := f.Get("type")
	count := optionalInt(f, "count")
	offset := optionalInt(f, "offset")

	var (
		msgs []chat.Message
		err  error
		resp = protocol.New(protocol.TypeChatHistoryResponse)
	)

	switch kind {
	case chat.KindPrivate:
		target, terr := f.GetInt("targetUserId")
		if terr != nil {
			d.writeError(s, "Missing or invalid targetUserId")
			return nil
		}
		msgs, err = d.core.HistoryPrivate(ctx, s.userID, target, count, offset)
		resp.Set("type", chat.KindPrivate).
			SetInt("userId", s.userID).
			SetInt("targetId", target)
	case chat.KindGroup:
		groupID, gerr := f.GetInt("groupId")
		if gerr != nil {
			d.writeError(s, "Missing or invalid groupId")
			return nil
		}
		msgs, err = d.core.HistoryGroup(ctx, s.userID, groupID, count, offset)
		resp.Set("type", chat.KindGroup).
			SetInt("groupId", groupID)
	default:
		d.writeError(s, "Unknown history type")
		return nil
	}

	switch {
	case errors.Is(err, chat.ErrBadArgument), errors.Is(err, chat.ErrGroupNotFound),
		errors.Is(err, chat.ErrNotMember):
		d.writeErrorMessage(s, clientText(err))
		return nil
	case err != nil:
		return fmt.Errorf("reading history: %w", err)
	}

	if msgs == nil {
		msgs = []chat.Message{}
	}
	payload, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	resp.Set("status", protocol.StatusOK).Set("messages", string(payload))
	return s.conn.WriteFrame(resp)
}

func (d *Dispatcher) handleRecallMessage(ctx context.Context, s *Session, f *protocol.Frame) error {
	kind, _ := f.Get("type")
	messageID, ok := f.Get("messageId")
	if !ok || messageID == "" {
		d.writeError(s, "Missing messageId")
		return nil
	}

	fail := func(msg string) error {
		return s.conn.WriteFrame(protocol.New(protocol.TypeRecallMessageResp).
			Set("status", protocol.StatusFailed).
			Set("errorMsg", msg))
	}

	switch kind {
	case chat.KindPrivate:
		target, err := f.GetInt("targetUserId")
		if err != nil {
			d.writeError(s, "Missing or invalid targetUserId")
			return nil
		}
		msg, err := d.core.RecallPrivate(ctx, s.userID, target, messageID)
		if recallDenied(err) {
			return fail(clientText(err))
		}
		if err != nil {
			return fmt.Errorf("recalling private message %s: %w", messageID, err)
		}

		// Tell the counterpart, if live.
		if peer, online := d.registry.Lookup(target); online {
			push := protocol.New(protocol.TypeRecallMessageResp).
				Set("messageId", msg.ID).
				Set("type", chat.KindPrivate).
				SetInt("fromUserId", s.userID)
			if err := peer.WriteFrame(push); err != nil {
				d.logger.Debug("pushing recall", "to", target, "error", err.Error())
			}
		}

		return s.conn.WriteFrame(protocol.New(protocol.TypeRecallMessageResp).
			Set("status", protocol.StatusOK).
			Set("messageId", msg.ID).
			Set("type", chat.KindPrivate))

	case chat.KindGroup:
		groupID, err := f.GetInt("groupId")
		if err != nil {
			d.writeError(s, "Missing or invalid groupId")
			return nil
		}
		msg, err := d.core.RecallGroup(ctx, s.userID, groupID, messageID)
		if recallDenied(err) {
			return fail(clientText(err))
		}
		if err != nil {
			return fmt.Errorf("recalling group message %s: %w", messageID, err)
		}

		members, err := d.core.GroupMembers(ctx, groupID)
		if err != nil {
			return fmt.Errorf("listing members of group %d: %w", groupID, err)
		}
		push := protocol.New(protocol.TypeRecallMessageResp).
			Set("messageId", msg.ID).
			Set("type", chat.KindGroup).
			SetInt("fromUserId", s.userID).
			SetInt("groupId", groupID)
		for _, member := range members {
			if member == s.userID {
				continue
			}
			if peer, online := d.registry.Lookup(member); online {
				if err := peer.WriteFrame(push); err != nil {
					d.logger.Debug("pushing recall", "to", member, "error", err.Error())
				}
			}
		}

		return s.conn.WriteFrame(protocol.New(protocol.TypeRecallMessageResp).
			Set("status", protocol.StatusOK).
			Set("messageId", msg.ID).
			Set("type", chat.KindGroup).
			SetInt("groupId", groupID))

	default:
		d.writeError(s, "Unknown recall type")
		return nil
	}
}

func (d *Dispatcher) handleMarkMessageRead(ctx context.Context, s *Session, f *protocol.Frame) error {
	kind, _ := f.Get("type")
	messageID, ok := f.Get("messageId")
	if !ok || messageID == "" {
		d.writeError(s, "Missing messageId")
		return nil
	}

	fail := func(msg string) error {
		return s.conn.WriteFrame(protocol.New(protocol.TypeMarkMessageReadResp).
			Set("status", protocol.StatusFailed).
			Set("errorMsg", msg))
	}

	switch kind {
	case chat.KindPrivate:
		msg, err := d.core.MarkReadPrivate(ctx, s.userID, messageID)
		switch {
		case errors.Is(err, chat.ErrMessageNotFound), errors.Is(err, chat.ErrNotRecipient):
			return fail(clientText(err))
		case err != nil:
			return fmt.Errorf("marking message %s read: %w", messageID, err)
		}

		// Read receipt to the sender, if live.
		if peer, online := d.registry.Lookup(msg.From); online {
			push := protocol.New(protocol.TypeMarkMessageReadResp).
				Set("messageId", msg.ID).
				Set("type", chat.KindPrivate).
				SetInt("userId", s.userID)
			if err := peer.WriteFrame(push); err != nil {
				d.logger.Debug("pushing read receipt", "to", msg.From, "error", err.Error())
			}
		}

		return s.conn.WriteFrame(protocol.New(protocol.TypeMarkMessageReadResp).
			Set("status", protocol.StatusOK).
			Set("messageId", msg.ID).
			Set("type", chat.KindPrivate))

	case chat.KindGroup:
		groupID, gerr := f.GetInt("groupId")
		if gerr != nil {
			d.writeError(s, "Missing or invalid groupId")
			return nil
		}
		err := d.core.MarkReadGroup(ctx, s.userID, groupID, messageID)
		switch {
		case errors.Is(err, chat.ErrMessageNotFound), errors.Is(err, chat.ErrNotMember):
			return fail(clientText(err))
		case err != nil:
			return fmt.Errorf("marking group message %s read: %w", messageID, err)
		}

		return s.conn.WriteFrame(protocol.New(protocol.TypeMarkMessageReadResp).
			Set("status", protocol.StatusOK).
			Set("messageId", messageID).
			Set("type", chat.KindGroup).
			SetInt("userId", s.userID))

	default:
		d.writeError(s, "Unknown read-receipt type")
		return nil
	}
}

// recallDenied reports whether the error is a client-caused recall
// failure rather than a store problem.
func recallDenied(err error) bool {
	return errors.Is(err, chat.ErrMessageNotFound) ||
		errors.Is(err, chat.ErrNotSender) ||
		errors.Is(err, chat.ErrRecallWindow) ||
		errors.Is(err, chat.ErrNotMember)
}

// optionalInt reads an integer field, treating absence as zero.
// Malformed values also read as zero; the core validates ranges.
func optionalInt(f *protocol.Frame, key string) int {
	n, err := f.GetInt(key)
	if err != nil {
		return 0
	}
	return int(n)
}

// writeErrorMessage sends an ERROR frame with the legacy "message"
// field used by operation-level denials.
func (d *Dispatcher) writeErrorMessage(s *Session, msg string) {
	f := protocol.New(protocol.TypeError).Set("message", msg)
	if err := s.conn.WriteFrame(f); err != nil {
		d.logger.Debug("writing error frame", "error", err.Error())
	}
}
