package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/infodancer/chatd/internal/kv"
)

// fakeArchive is a cold store standing in for Postgres.
type fakeArchive struct {
	nextGroupID int64
	private     []Message
	group       map[int64][]Message
}

func (f *fakeArchive) CreateGroup(ctx context.Context, name string, creatorID int64) (int64, error) {
	f.nextGroupID++
	return f.nextGroupID, nil
}

func (f *fakeArchive) PrivateHistory(ctx context.Context, a, b int64, limit, offset int) ([]Message, error) {
	return page(f.private, limit, offset), nil
}

func (f *fakeArchive) GroupHistory(ctx context.Context, groupID int64, limit, offset int) ([]Message, error) {
	if f.group == nil {
		return nil, nil
	}
	return page(f.group[groupID], limit, offset), nil
}

// page slices a most-recent-first result window.
func page(msgs []Message, limit, offset int) []Message {
	if offset >= len(msgs) {
		return nil
	}
	end := offset + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	return msgs[offset:end]
}

// testClock is a controllable clock for the core.
type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCore(t *testing.T) (*Core, *kv.Memory, *fakeArchive, *testClock) {
	t.Helper()
	store := kv.NewMemory()
	cold := &fakeArchive{group: make(map[int64][]Message)}
	clock := &testClock{t: time.UnixMilli(1_700_000_000_000)}

	core := NewCore(store, cold, slog.New(slog.DiscardHandler))
	core.now = clock.now
	return core, store, cold, clock
}

// befriend wires both halves of a friendship directly.
func befriend(t *testing.T, store *kv.Memory, a, b int64) {
	t.Helper()
	ctx := context.Background()
	if err := store.SAdd(ctx, UserFriendsKey(a), fmt.Sprint(b)); err != nil {
		t.Fatalf("seeding friendship: %v", err)
	}
	if err := store.SAdd(ctx, UserFriendsKey(b), fmt.Sprint(a)); err != nil {
		t.Fatalf("seeding friendship: %v", err)
	}
}

func TestPairKeyCanonical(t *testing.T) {
	if PairKey(2, 1) != "chat:1:2" || PairKey(1, 2) != "chat:1:2" {
		t.Errorf("PairKey not canonical: %q vs %q", PairKey(2, 1), PairKey(1, 2))
	}
}

func TestPresence(t *testing.T) {
	ctx := context.Background()
	core, _, _, _ := newTestCore(t)

	if err := core.MarkOnline(ctx, 7); err != nil {
		t.Fatalf("MarkOnline() error: %v", err)
	}

	online, err := core.IsOnline(ctx, 7)
	if err != nil || !online {
		t.Errorf("IsOnline(7) = %v, %v; want true", online, err)
	}

	users, err := core.OnlineUsers(ctx)
	if err != nil || len(users) != 1 || users[0] != 7 {
		t.Errorf("OnlineUsers() = %v, %v", users, err)
	}

	if err := core.MarkOffline(ctx, 7); err != nil {
		t.Fatalf("MarkOffline() error: %v", err)
	}
	online, _ = core.IsOnline(ctx, 7)
	if online {
		t.Error("IsOnline(7) = true after MarkOffline")
	}
}

func TestSendPrivate(t *testing.T) {
	ctx := context.Background()
	core, store, _, _ := newTestCore(t)
	befriend(t, store, 1, 2)
	if err := core.MarkOnline(ctx, 2); err != nil {
		t.Fatal(err)
	}

	msg, queued, err := core.SendPrivate(ctx, 1, 2, "hello")
	if err != nil {
		t.Fatalf("SendPrivate() error: %v", err)
	}
	if queued {
		t.Error("SendPrivate() queued = true for online recipient")
	}
	if msg.ID == "" || msg.Kind != KindPrivate || msg.From != 1 || msg.To != 2 {
		t.Errorf("SendPrivate() msg = %+v", msg)
	}

	n, _ := store.LLen(ctx, PairKey(1, 2))
	if n != 1 {
		t.Errorf("pair stream length = %d, want 1", n)
	}

	// Canonical record exists.
	if _, err := store.HGet(ctx, MessageKey(msg.ID), "data"); err != nil {
		t.Errorf("canonical record missing: %v", err)
	}
}

func TestSendPrivateRejections(t *testing.T) {
	ctx := context.Background()
	core, store, _, _ := newTestCore(t)
	befriend(t, store, 1, 2)

	tests := []struct {
		name     string
		from, to int64
		wantErr  error
	}{
		{"self send", 1, 1, ErrSelfMessage},
		{"not friends", 1, 3, ErrNotFriends},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := core.SendPrivate(ctx, tt.from, tt.to, "hi")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SendPrivate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// A blocked send leaves no trace in the stream.
	if n, _ := store.LLen(ctx, PairKey(1, 3)); n != 0 {
		t.Errorf("blocked send appended to stream, length = %d", n)
	}
}

func TestSendPrivateTrimsToHotLimit(t *testing.T) {
	ctx := context.Background()
	core, store, _, _ := newTestCore(t)
	befriend(t, store, 1, 2)
	if err := core.MarkOnline(ctx, 2); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < privateHotLimit+5; i++ {
		if _, _, err := core.SendPrivate(ctx, 1, 2, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("SendPrivate() #%d error: %v", i, err)
		}
	}

	n, _ := store.LLen(ctx, PairKey(1, 2))
	if n != privateHotLimit {
		t.Errorf("pair stream length = %d, want %d", n, privateHotLimit)
	}

	// The oldest survivors are the most recent 100.
	entries, _ := store.LRange(ctx, PairKey(1, 2), 0, 0)
	first, err := DecodeMessage(entries[0])
	if err != nil {
		t.Fatalf("decoding head entry: %v", err)
	}
	if first.Content != "m5" {
		t.Errorf("head of trimmed stream = %q, want m5", first.Content)
	}
}

func TestOfflineQueueRoundTrip(t *testing.T) {
	ctx := context.Background()
	core, store, _, _ := newTestCore(t)
	befriend(t, store, 1, 2)

	// Recipient is offline: the message is parked.
	msg, queued, err := core.SendPrivate(ctx, 1, 2, "hello")
	if err != nil {
		t.Fatalf("SendPrivate() error: %v", err)
	}
	if !queued {
		t.Error("SendPrivate() queued = false for offline recipient")
	}

	count, err := core.OfflineCount(ctx, 2)
	if err != nil || count != 1 {
		t.Errorf("OfflineCount(2) = %d, %v; want 1", count, err)
	}

	msgs, err := core.DrainOffline(ctx, 2)
	if err != nil {
		t.Fatalf("DrainOffline() error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != msg.ID || msgs[0].Content != "hello" {
		t.Errorf("DrainOffline() = %+v", msgs)
	}

	// Drain clears the queue.
	if count, _ := core.OfflineCount(ctx, 2); count != 0 {
		t.Errorf("OfflineCount(2) after drain = %d, want 0", count)
	}
}

func TestDrainOfflinePreservesOrder(t *testing.T) {
	ctx := context.Background()
	core, store, _, _ := newTestCore(t)
	befriend(t, store, 1, 2)

	for i := 0; i < 3; i++ {
		if _, _, err := core.SendPrivate(ctx, 1, 2, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := core.DrainOffline(ctx, 2)
	if err != nil {
		t.Fatalf("DrainOffline() error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("DrainOffline() returned %d messages, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.Content != fmt.Sprintf("m%d", i) {
			t.Errorf("offline[%d] = %q, want m%d", i, m.Content, i)
		}
	}
}
