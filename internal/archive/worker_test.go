package archive

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/infodancer/chatd/internal/chat"
	"github.com/infodancer/chatd/internal/kv"
)

type fakeDB struct {
	mu       sync.Mutex
	private  []chat.Message
	groups   map[int64][]chat.Message
	existing map[int64]bool
	pairs    map[[2]int64]int

	failPrivate bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		groups:   make(map[int64][]chat.Message),
		existing: make(map[int64]bool),
		pairs:    make(map[[2]int64]int),
	}
}

func (db *fakeDB) InsertPrivateMessages(ctx context.Context, msgs []chat.Message) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.failPrivate {
		return errors.New("insert failed")
	}
	db.private = append(db.private, msgs...)
	return nil
}

func (db *fakeDB) InsertGroupMessages(ctx context.Context, groupID int64, msgs []chat.Message) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.groups[groupID] = append(db.groups[groupID], msgs...)
	return nil
}

func (db *fakeDB) GroupExists(ctx context.Context, groupID int64) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.existing[groupID], nil
}

func (db *fakeDB) EnsureFriendship(ctx context.Context, a, b int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if a == b {
		// The real pair table orders ids strictly.
		return errors.New("pair ordering violated")
	}
	if a > b {
		a, b = b, a
	}
	db.pairs[[2]int64{a, b}]++
	return nil
}

func newTestWorker(t *testing.T) (*Worker, *kv.Memory, *fakeDB, *time.Time) {
	t.Helper()
	now := time.UnixMilli(1_700_000_000_000)
	store := kv.NewMemory()
	db := newFakeDB()
	w := NewWorker(store, db, time.Hour, nil, slog.New(slog.DiscardHandler))
	w.now = func() time.Time { return now }
	return w, store, db, &now
}

// seedStream appends encoded messages with the given timestamps.
func seedStream(t *testing.T, store *kv.Memory, key string, from, to int64, timestamps ...int64) {
	t.Helper()
	ctx := context.Background()
	for i, ts := range timestamps {
		m := chat.Message{
			ID:        key + "-" + strconv.Itoa(i),
			From:      from,
			To:        to,
			Content:   "msg",
			Timestamp: ts,
			Kind:      chat.KindPrivate,
		}
		data, err := m.Encode()
		if err != nil {
			t.Fatal(err)
		}
		if err := store.RPush(ctx, key, data); err != nil {
			t.Fatal(err)
		}
	}
}

func TestArchivePrivatePass(t *testing.T) {
	w, store, db, _ := newTestWorker(t)
	ctx := context.Background()
	seedStream(t, store, chat.PairKey(1, 2), 1, 2, 1000, 2000, 3000)

	w.RunOnce(ctx)

	if len(db.private) != 3 {
		t.Fatalf("archived %d private messages, want 3", len(db.private))
	}

	// High-water mark written under the stream's companion key.
	mark, err := store.Get(ctx, chat.HighWaterKey(chat.PairKey(1, 2)))
	if err != nil {
		t.Fatalf("high-water mark not written: %v", err)
	}
	if mark != "1700000000000" {
		t.Errorf("high-water mark = %s, want 1700000000000", mark)
	}
}

func TestArchiveIsIdempotentAcrossTicks(t *testing.T) {
	w, store, db, now := newTestWorker(t)
	ctx := context.Background()
	seedStream(t, store, chat.PairKey(1, 2), 1, 2, 1000, 2000)

	w.RunOnce(ctx)
	*now = now.Add(time.Hour)
	w.RunOnce(ctx)

	// Second tick re-reads the stream but everything is at or below
	// the mark; the companion last_archive key must also not be
	// mistaken for a stream.
	if len(db.private) != 2 {
		t.Fatalf("archived %d private messages after two ticks, want 2", len(db.private))
	}
}

func TestArchiveSkipsBelowHighWater(t *testing.T) {
	w, store, db, _ := newTestWorker(t)
	ctx := context.Background()
	key := chat.PairKey(1, 2)
	seedStream(t, store, key, 1, 2, 1000, 2000, 3000)

	if err := store.Set(ctx, chat.HighWaterKey(key), "2000"); err != nil {
		t.Fatal(err)
	}

	w.RunOnce(ctx)

	if len(db.private) != 1 {
		t.Fatalf("archived %d messages, want only the one above the mark", len(db.private))
	}
	if db.private[0].Timestamp != 3000 {
		t.Errorf("archived timestamp = %d, want 3000", db.private[0].Timestamp)
	}
}

func TestArchiveGroupPass(t *testing.T) {
	w, store, db, _ := newTestWorker(t)
	ctx := context.Background()
	db.existing[7] = true

	m := chat.Message{ID: "g1", From: 1, Group: 7, Content: "hi", Timestamp: 1000, Kind: chat.KindGroup}
	data, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := store.RPush(ctx, chat.GroupMessagesKey(7), data); err != nil {
		t.Fatal(err)
	}
	// Stream for a group the database does not know; must be skipped,
	// not created.
	if err := store.RPush(ctx, chat.GroupMessagesKey(9), data); err != nil {
		t.Fatal(err)
	}

	w.RunOnce(ctx)

	if len(db.groups[7]) != 1 {
		t.Errorf("archived %d messages for group 7, want 1", len(db.groups[7]))
	}
	if len(db.groups[9]) != 0 {
		t.Errorf("archived %d messages for unknown group 9, want 0", len(db.groups[9]))
	}
}

func TestArchiveGroupSkipsWrongType(t *testing.T) {
	w, store, db, _ := newTestWorker(t)
	ctx := context.Background()
	db.existing[7] = true

	// A string where a list is expected must be skipped, not fail the
	// pass.
	if err := store.Set(ctx, chat.GroupMessagesKey(7), "junk"); err != nil {
		t.Fatal(err)
	}

	w.RunOnce(ctx)

	if len(db.groups[7]) != 0 {
		t.Errorf("archived %d messages from a non-list key, want 0", len(db.groups[7]))
	}
}

func TestArchiveFriendships(t *testing.T) {
	w, store, db, _ := newTestWorker(t)
	ctx := context.Background()

	for _, f := range []string{"2", "3"} {
		if err := store.SAdd(ctx, chat.UserFriendsKey(1), f); err != nil {
			t.Fatal(err)
		}
	}
	// The mirror half of one edge; must collapse onto the same pair.
	if err := store.SAdd(ctx, chat.UserFriendsKey(2), "1"); err != nil {
		t.Fatal(err)
	}

	w.RunOnce(ctx)

	if len(db.pairs) != 2 {
		t.Fatalf("archived %d pairs, want 2", len(db.pairs))
	}
	if db.pairs[[2]int64{1, 2}] == 0 {
		t.Error("pair (1,2) not archived")
	}
	if db.pairs[[2]int64{1, 3}] == 0 {
		t.Error("pair (1,3) not archived")
	}
}

func TestArchiveFriendshipsSkipsSelfEdge(t *testing.T) {
	w, store, db, _ := newTestWorker(t)
	ctx := context.Background()

	// A corrupt hot entry listing the user as their own friend must not
	// fail the pass or reach the database.
	for _, f := range []string{"1", "2"} {
		if err := store.SAdd(ctx, chat.UserFriendsKey(1), f); err != nil {
			t.Fatal(err)
		}
	}

	w.RunOnce(ctx)

	if len(db.pairs) != 1 {
		t.Fatalf("archived %d pairs, want 1", len(db.pairs))
	}
	if db.pairs[[2]int64{1, 2}] == 0 {
		t.Error("pair (1,2) not archived alongside the corrupt edge")
	}
}

func TestPassIndependence(t *testing.T) {
	w, store, db, _ := newTestWorker(t)
	ctx := context.Background()
	db.failPrivate = true
	db.existing[7] = true

	seedStream(t, store, chat.PairKey(1, 2), 1, 2, 1000)
	m := chat.Message{ID: "g1", From: 1, Group: 7, Content: "hi", Timestamp: 1000, Kind: chat.KindGroup}
	data, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := store.RPush(ctx, chat.GroupMessagesKey(7), data); err != nil {
		t.Fatal(err)
	}
	if err := store.SAdd(ctx, chat.UserFriendsKey(1), "2"); err != nil {
		t.Fatal(err)
	}

	w.RunOnce(ctx)

	// The failed private pass must not stop the other two.
	if len(db.groups[7]) != 1 {
		t.Errorf("group pass archived %d messages, want 1", len(db.groups[7]))
	}
	if len(db.pairs) != 1 {
		t.Errorf("friendship pass archived %d pairs, want 1", len(db.pairs))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	w, _, _, _ := newTestWorker(t)
	w.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
