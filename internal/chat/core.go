// Package chat implements the messaging core: private and group sends,
// offline parking, recall, read receipts, history reads, the social
// graph, and presence. All state lives in the hot store; history reads
// and group creation also touch the cold archive.
package chat

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/infodancer/chatd/internal/kv"
)

// Hot-stream bounds and timing windows.
const (
	privateHotLimit = 100
	groupHotLimit   = 200

	recallWindow = 2 * time.Minute
	onlineTTL    = 2 * time.Minute
)

// Archive is the cold-store surface the core needs: durable group ids
// and history reads. Implemented by pgstore.Store.
type Archive interface {
	// CreateGroup inserts a group row and returns its generated id.
	CreateGroup(ctx context.Context, name string, creatorID int64) (int64, error)

	// PrivateHistory returns archived messages between two users,
	// most recent first.
	PrivateHistory(ctx context.Context, a, b int64, limit, offset int) ([]Message, error)

	// GroupHistory returns archived group messages, most recent first.
	GroupHistory(ctx context.Context, groupID int64, limit, offset int) ([]Message, error)
}

// Core is the messaging engine. It is safe for concurrent use; all
// shared state lives in the hot store, which is atomic per operation.
type Core struct {
	store  kv.Store
	cold   Archive
	logger *slog.Logger

	// now is the clock; replaced in tests to pin recall windows.
	now func() time.Time
}

// NewCore creates a messaging core on the given stores.
func NewCore(store kv.Store, cold Archive, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{
		store:  store,
		cold:   cold,
		logger: logger,
		now:    time.Now,
	}
}

// nowMillis returns the current time in milliseconds since the epoch.
func (c *Core) nowMillis() int64 {
	return c.now().UnixMilli()
}

// MarkOnline records a user as online: membership in the online set
// plus a TTL'd flag that survives a lost offline write.
func (c *Core) MarkOnline(ctx context.Context, userID int64) error {
	if err := c.store.SAdd(ctx, OnlineUsersKey, formatID(userID)); err != nil {
		return err
	}
	return c.store.SetWithTTL(ctx, UserOnlineKey(userID), "1", onlineTTL)
}

// MarkOffline removes a user from the online set and clears the flag.
func (c *Core) MarkOffline(ctx context.Context, userID int64) error {
	if err := c.store.SRem(ctx, OnlineUsersKey, formatID(userID)); err != nil {
		return err
	}
	return c.store.Del(ctx, UserOnlineKey(userID))
}

// IsOnline reports whether a user is in the online set.
func (c *Core) IsOnline(ctx context.Context, userID int64) (bool, error) {
	return c.store.SIsMember(ctx, OnlineUsersKey, formatID(userID))
}

// OnlineUsers returns all user ids in the online set.
func (c *Core) OnlineUsers(ctx context.Context) ([]int64, error) {
	members, err := c.store.SMembers(ctx, OnlineUsersKey)
	if err != nil {
		return nil, err
	}
	return parseIDs(members), nil
}

// RefreshPresence renews the TTL'd online flag; called on heartbeats.
func (c *Core) RefreshPresence(ctx context.Context, userID int64) error {
	return c.store.SetWithTTL(ctx, UserOnlineKey(userID), "1", onlineTTL)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// parseIDs converts stored id strings to int64s, skipping malformed
// entries.
func parseIDs(values []string) []int64 {
	out := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
