package chat

import (
	"context"
	"fmt"
)

// defaultHistoryCount is used when a history request does not name a
// count.
const defaultHistoryCount = 20

// HistoryPrivate returns up to count messages between two users, most
// recent first: the cold archive answers first, and the hot stream
// tops up whatever the archive has not yet absorbed.
func (c *Core) HistoryPrivate(ctx context.Context, a, b int64, count, offset int) ([]Message, error) {
	count, offset, err := clampPage(count, offset)
	if err != nil {
		return nil, err
	}

	cold, err := c.cold.PrivateHistory(ctx, a, b, count, offset)
	if err != nil {
		return nil, err
	}

	return c.topUp(ctx, PairKey(a, b), cold, count)
}

// HistoryGroup returns up to count group messages, most recent first,
// cold rows topped up from the hot stream. Only members may read a
// group's history.
func (c *Core) HistoryGroup(ctx context.Context, userID, groupID int64, count, offset int) ([]Message, error) {
	count, offset, err := clampPage(count, offset)
	if err != nil {
		return nil, err
	}

	exists, err := c.GroupExists(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrGroupNotFound
	}

	member, err := c.IsMember(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotMember
	}

	cold, err := c.cold.GroupHistory(ctx, groupID, count, offset)
	if err != nil {
		return nil, err
	}

	return c.topUp(ctx, GroupMessagesKey(groupID), cold, count)
}

// topUp fills a short cold result from the tail of the hot stream.
// Archiving trims rather than drains the stream, so a message is
// usually in both tiers; duplicates match by id, or by sender,
// timestamp, and content for rows archived without one. Hot entries
// are newer than anything archived, so they are placed ahead of the
// cold rows.
func (c *Core) topUp(ctx context.Context, streamKey string, cold []Message, count int) ([]Message, error) {
	if len(cold) >= count {
		return cold, nil
	}

	entries, err := c.store.LRange(ctx, streamKey, int64(-count), -1)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(cold))
	for _, m := range cold {
		if m.ID != "" {
			seen[m.ID] = true
		}
		seen[messagePrint(m)] = true
	}

	// Hot entries newest-first.
	var hot []Message
	for i := len(entries) - 1; i >= 0; i-- {
		m, err := DecodeMessage(entries[i])
		if err != nil {
			c.logger.Warn("skipping malformed hot entry",
				"key", streamKey, "error", err.Error())
			continue
		}
		if seen[m.ID] || seen[messagePrint(m)] {
			continue
		}
		hot = append(hot, m)
		if len(hot)+len(cold) >= count {
			break
		}
	}

	return append(hot, cold...), nil
}

// messagePrint is the identity of a message for rows whose archived id
// was lost.
func messagePrint(m Message) string {
	return fmt.Sprintf("%d|%d|%s", m.From, m.Timestamp, m.Content)
}

// clampPage validates paging arguments. Negative values are an error;
// a zero count selects the default page size.
func clampPage(count, offset int) (int, int, error) {
	if count < 0 || offset < 0 {
		return 0, 0, ErrBadArgument
	}
	if count == 0 {
		count = defaultHistoryCount
	}
	return count, offset, nil
}
