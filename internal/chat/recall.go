package chat

import (
	"context"
	"encoding/json"
)

// RecallPrivate marks a private message recalled. Only the sender may
// recall, and only within the recall window (inclusive).
func (c *Core) RecallPrivate(ctx context.Context, actor, counterpart int64, messageID string) (Message, error) {
	msg, err := c.messageByID(ctx, messageID)
	if err != nil {
		return Message{}, err
	}

	if msg.Kind != KindPrivate || PairKey(msg.From, msg.To) != PairKey(actor, counterpart) {
		return Message{}, ErrMessageNotFound
	}
	if msg.From != actor {
		return Message{}, ErrNotSender
	}
	if c.nowMillis()-msg.Timestamp > recallWindow.Milliseconds() {
		return Message{}, ErrRecallWindow
	}

	return c.applyRecall(ctx, PairKey(actor, counterpart), msg, actor)
}

// RecallGroup marks a group message recalled. Senders are bound by the
// recall window; the group creator may recall any message in their
// group at any time.
func (c *Core) RecallGroup(ctx context.Context, actor, groupID int64, messageID string) (Message, error) {
	msg, err := c.messageByID(ctx, messageID)
	if err != nil {
		return Message{}, err
	}
	if msg.Kind != KindGroup || msg.Group != groupID {
		return Message{}, ErrMessageNotFound
	}

	member, err := c.IsMember(ctx, actor, groupID)
	if err != nil {
		return Message{}, err
	}
	if !member {
		return Message{}, ErrNotMember
	}

	creator, err := c.store.HGet(ctx, GroupKey(groupID), "creator")
	if err != nil {
		return Message{}, err
	}

	if creator != formatID(actor) {
		if msg.From != actor {
			return Message{}, ErrNotSender
		}
		if c.nowMillis()-msg.Timestamp > recallWindow.Milliseconds() {
			return Message{}, ErrRecallWindow
		}
	}

	return c.applyRecall(ctx, GroupMessagesKey(groupID), msg, actor)
}

// applyRecall updates the canonical record and rewrites the hot-stream
// entry in place.
func (c *Core) applyRecall(ctx context.Context, streamKey string, msg Message, actor int64) (Message, error) {
	msg.Recalled = true
	msg.RecallTime = c.nowMillis()
	msg.RecallBy = actor

	data, err := msg.Encode()
	if err != nil {
		return Message{}, err
	}
	if err := c.store.HSet(ctx, MessageKey(msg.ID), "data", data); err != nil {
		return Message{}, err
	}
	if err := c.rewriteStreamEntry(ctx, streamKey, msg.ID, data); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// MarkReadPrivate records a read receipt on a private message. Only
// the addressed recipient may mark it read.
func (c *Core) MarkReadPrivate(ctx context.Context, reader int64, messageID string) (Message, error) {
	msg, err := c.messageByID(ctx, messageID)
	if err != nil {
		return Message{}, err
	}
	if msg.Kind != KindPrivate {
		return Message{}, ErrMessageNotFound
	}
	if msg.To != reader {
		return Message{}, ErrNotRecipient
	}

	msg.Read = true
	msg.ReadTimestamp = c.nowMillis()

	data, err := msg.Encode()
	if err != nil {
		return Message{}, err
	}
	key := MessageKey(msg.ID)
	if err := c.store.HSet(ctx, key, "data", data); err != nil {
		return Message{}, err
	}
	if err := c.store.HSet(ctx, key, "read", "1"); err != nil {
		return Message{}, err
	}
	if err := c.store.HSet(ctx, key, "read_timestamp", formatID(msg.ReadTimestamp)); err != nil {
		return Message{}, err
	}

	if err := c.rewriteStreamEntry(ctx, PairKey(msg.From, msg.To), msg.ID, data); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// MarkReadGroup records a per-user read receipt on a group message:
// membership in the read-by set plus a per-user timestamp. There is no
// read-back API for the timestamps.
func (c *Core) MarkReadGroup(ctx context.Context, reader, groupID int64, messageID string) error {
	member, err := c.IsMember(ctx, reader, groupID)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotMember
	}

	msg, err := c.messageByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Kind != KindGroup || msg.Group != groupID {
		return ErrMessageNotFound
	}

	if err := c.store.SAdd(ctx, MessageReadKey(messageID), formatID(reader)); err != nil {
		return err
	}
	return c.store.HSet(ctx, MessageReadTimestampsKey(messageID), formatID(reader), formatID(c.nowMillis()))
}

// rewriteStreamEntry replaces the stream entry carrying messageID.
// Entries already trimmed out of the hot stream are left alone; the
// canonical record is authoritative.
func (c *Core) rewriteStreamEntry(ctx context.Context, streamKey, messageID, data string) error {
	entries, err := c.store.LRange(ctx, streamKey, 0, -1)
	if err != nil {
		return err
	}
	for i, entry := range entries {
		var probe struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal([]byte(entry), &probe); err != nil {
			continue
		}
		if probe.ID == messageID {
			return c.store.LSet(ctx, streamKey, int64(i), data)
		}
	}
	return nil
}
