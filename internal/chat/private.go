package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/infodancer/chatd/internal/kv"
)

// SendPrivate appends a private message to the pair's hot stream,
// bounded to the last 100 entries, and parks a copy in the recipient's
// offline queue when they are not online. queued reports whether the
// message was parked. Delivery to a live recipient session is the
// caller's responsibility.
func (c *Core) SendPrivate(ctx context.Context, from, to int64, content string) (msg Message, queued bool, err error) {
	if from == to {
		return Message{}, false, ErrSelfMessage
	}

	friends, err := c.IsFriend(ctx, from, to)
	if err != nil {
		return Message{}, false, err
	}
	if !friends {
		return Message{}, false, ErrNotFriends
	}

	msg = Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Content:   content,
		Timestamp: c.nowMillis(),
		Kind:      KindPrivate,
	}

	data, err := msg.Encode()
	if err != nil {
		return Message{}, false, err
	}

	key := PairKey(from, to)
	if err := c.store.RPush(ctx, key, data); err != nil {
		return Message{}, false, fmt.Errorf("appending to %s: %w", key, err)
	}
	if err := c.store.LTrim(ctx, key, -privateHotLimit, -1); err != nil {
		return Message{}, false, fmt.Errorf("trimming %s: %w", key, err)
	}

	// Canonical record, used by recall and read receipts.
	if err := c.store.HSet(ctx, MessageKey(msg.ID), "data", data); err != nil {
		return Message{}, false, err
	}

	online, err := c.IsOnline(ctx, to)
	if err != nil {
		return Message{}, false, err
	}
	if !online {
		if err := c.store.RPush(ctx, OfflineKey(to), data); err != nil {
			return Message{}, false, fmt.Errorf("parking offline for %d: %w", to, err)
		}
		queued = true
	}

	return msg, queued, nil
}

// OfflineCount returns the number of parked messages for a user.
func (c *Core) OfflineCount(ctx context.Context, userID int64) (int64, error) {
	return c.store.LLen(ctx, OfflineKey(userID))
}

// DrainOffline returns and clears a user's offline queue in FIFO
// order. Malformed entries are logged and dropped.
func (c *Core) DrainOffline(ctx context.Context, userID int64) ([]Message, error) {
	key := OfflineKey(userID)

	entries, err := c.store.LRange(ctx, key, 0, -1)
	if err != nil {
		return nil, err
	}
	if err := c.store.Del(ctx, key); err != nil {
		return nil, err
	}

	msgs := make([]Message, 0, len(entries))
	for _, entry := range entries {
		m, err := DecodeMessage(entry)
		if err != nil {
			c.logger.Warn("dropping malformed offline entry",
				"user_id", userID, "error", err.Error())
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// messageByID loads the canonical record for a message id.
func (c *Core) messageByID(ctx context.Context, messageID string) (Message, error) {
	data, err := c.store.HGet(ctx, MessageKey(messageID), "data")
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return Message{}, ErrMessageNotFound
		}
		return Message{}, err
	}
	return DecodeMessage(data)
}
