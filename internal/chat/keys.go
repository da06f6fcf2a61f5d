package chat

import "fmt"

// OnlineUsersKey is the hot-store set of currently online user ids.
const OnlineUsersKey = "online:users"

// PairKey returns the canonical private-stream key for two users,
// smaller id first.
func PairKey(a, b int64) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("chat:%d:%d", a, b)
}

// GroupKey returns the group metadata hash key.
func GroupKey(groupID int64) string {
	return fmt.Sprintf("group:%d", groupID)
}

// GroupMembersKey returns the group membership set key.
func GroupMembersKey(groupID int64) string {
	return fmt.Sprintf("group:%d:members", groupID)
}

// GroupMessagesKey returns the group message-stream list key.
func GroupMessagesKey(groupID int64) string {
	return fmt.Sprintf("group:%d:messages", groupID)
}

// UserGroupsKey returns the set of groups a user belongs to.
func UserGroupsKey(userID int64) string {
	return fmt.Sprintf("user:%d:groups", userID)
}

// UserFriendsKey returns a user's friend set key.
func UserFriendsKey(userID int64) string {
	return fmt.Sprintf("user:%d:friends", userID)
}

// ReceivedRequestsKey returns the set of pending requests sent to a user.
func ReceivedRequestsKey(userID int64) string {
	return fmt.Sprintf("user:%d:friend_requests:received", userID)
}

// SentRequestsKey returns the set of pending requests a user has sent.
func SentRequestsKey(userID int64) string {
	return fmt.Sprintf("user:%d:friend_requests:sent", userID)
}

// OfflineKey returns a user's offline message queue key.
func OfflineKey(userID int64) string {
	return fmt.Sprintf("user:%d:offline", userID)
}

// UserOnlineKey returns the per-user TTL'd online flag key.
func UserOnlineKey(userID int64) string {
	return fmt.Sprintf("user:%d:online", userID)
}

// MessageKey returns the canonical per-message hash key.
func MessageKey(messageID string) string {
	return fmt.Sprintf("message:%s", messageID)
}

// MessageReadKey returns the per-message read-by set key.
func MessageReadKey(messageID string) string {
	return fmt.Sprintf("message:%s:read", messageID)
}

// MessageReadTimestampsKey returns the per-message read-timestamp hash key.
func MessageReadTimestampsKey(messageID string) string {
	return fmt.Sprintf("message:%s:read_timestamps", messageID)
}

// HighWaterKey returns the archive high-water-mark key for a stream.
func HighWaterKey(streamKey string) string {
	return streamKey + ":last_archive"
}
