package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecallPrivateWithinWindow(t *testing.T) {
	ctx := context.Background()
	core, store, _, clock := newTestCore(t)
	befriend(t, store, 1, 2)

	msg, _, err := core.SendPrivate(ctx, 1, 2, "oops")
	if err != nil {
		t.Fatal(err)
	}

	clock.advance(100 * time.Second)

	recalled, err := core.RecallPrivate(ctx, 1, 2, msg.ID)
	if err != nil {
		t.Fatalf("RecallPrivate() error: %v", err)
	}
	if !recalled.Recalled || recalled.RecallBy != 1 {
		t.Errorf("RecallPrivate() = %+v", recalled)
	}

	// The hot stream entry was rewritten in place.
	entries, _ := store.LRange(ctx, PairKey(1, 2), 0, -1)
	if len(entries) != 1 {
		t.Fatalf("stream length = %d", len(entries))
	}
	streamMsg, err := DecodeMessage(entries[0])
	if err != nil {
		t.Fatal(err)
	}
	if !streamMsg.Recalled {
		t.Error("stream entry not marked recalled")
	}
}

func TestRecallWindowBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{"at exactly two minutes", 120000 * time.Millisecond, nil},
		{"one millisecond past", 120001 * time.Millisecond, ErrRecallWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			core, store, _, clock := newTestCore(t)
			befriend(t, store, 1, 2)

			msg, _, err := core.SendPrivate(ctx, 1, 2, "oops")
			if err != nil {
				t.Fatal(err)
			}

			clock.advance(tt.elapsed)

			_, err = core.RecallPrivate(ctx, 1, 2, msg.ID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RecallPrivate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecallPrivateOnlySender(t *testing.T) {
	ctx := context.Background()
	core, store, _, _ := newTestCore(t)
	befriend(t, store, 1, 2)

	msg, _, err := core.SendPrivate(ctx, 1, 2, "mine")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := core.RecallPrivate(ctx, 2, 1, msg.ID); !errors.Is(err, ErrNotSender) {
		t.Errorf("RecallPrivate(recipient) error = %v, want ErrNotSender", err)
	}

	if _, err := core.RecallPrivate(ctx, 1, 2, "no-such-id"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("RecallPrivate(unknown id) error = %v, want ErrMessageNotFound", err)
	}
}

func TestRecallGroupCreatorExemptFromWindow(t *testing.T) {
	ctx := context.Background()
	core, _, _, clock := newTestCore(t)

	groupID, err := core.CreateGroup(ctx, "general", 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := core.JoinGroup(ctx, 2, groupID); err != nil {
		t.Fatal(err)
	}

	msg, _, err := core.SendGroup(ctx, 2, groupID, "spam")
	if err != nil {
		t.Fatal(err)
	}

	clock.advance(24 * time.Hour)

	// The sender is far outside the window.
	if _, err := core.RecallGroup(ctx, 2, groupID, msg.ID); !errors.Is(err, ErrRecallWindow) {
		t.Errorf("sender recall after a day error = %v, want ErrRecallWindow", err)
	}

	// The creator is not.
	recalled, err := core.RecallGroup(ctx, 1, groupID, msg.ID)
	if err != nil {
		t.Fatalf("creator recall error: %v", err)
	}
	if !recalled.Recalled || recalled.RecallBy != 1 {
		t.Errorf("creator recall = %+v", recalled)
	}
}

func TestRecallGroupRequiresMembership(t *testing.T) {
	ctx := context.Background()
	core, _, _, _ := newTestCore(t)

	groupID, err := core.CreateGroup(ctx, "general", 1)
	if err != nil {
		t.Fatal(err)
	}
	msg, _, err := core.SendGroup(ctx, 1, groupID, "hi")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := core.RecallGroup(ctx, 9, groupID, msg.ID); !errors.Is(err, ErrNotMember) {
		t.Errorf("RecallGroup(outsider) error = %v, want ErrNotMember", err)
	}
}

func TestMarkReadPrivate(t *testing.T) {
	ctx := context.Background()
	core, store, _, _ := newTestCore(t)
	befriend(t, store, 1, 2)

	msg, _, err := core.SendPrivate(ctx, 1, 2, "read me")
	if err != nil {
		t.Fatal(err)
	}

	// Only the addressed recipient may mark it read.
	if _, err := core.MarkReadPrivate(ctx, 3, msg.ID); !errors.Is(err, ErrNotRecipient) {
		t.Errorf("MarkReadPrivate(stranger) error = %v, want ErrNotRecipient", err)
	}

	read, err := core.MarkReadPrivate(ctx, 2, msg.ID)
	if err != nil {
		t.Fatalf("MarkReadPrivate() error: %v", err)
	}
	if !read.Read || read.ReadTimestamp == 0 {
		t.Errorf("MarkReadPrivate() = %+v", read)
	}

	if v, err := store.HGet(ctx, MessageKey(msg.ID), "read"); err != nil || v != "1" {
		t.Errorf("read flag = %q, %v", v, err)
	}
}

func TestMarkReadGroup(t *testing.T) {
	ctx := context.Background()
	core, store, _, _ := newTestCore(t)

	groupID, err := core.CreateGroup(ctx, "general", 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := core.JoinGroup(ctx, 2, groupID); err != nil {
		t.Fatal(err)
	}
	msg, _, err := core.SendGroup(ctx, 1, groupID, "hello")
	if err != nil {
		t.Fatal(err)
	}

	if err := core.MarkReadGroup(ctx, 2, groupID, msg.ID); err != nil {
		t.Fatalf("MarkReadGroup() error: %v", err)
	}

	ok, _ := store.SIsMember(ctx, MessageReadKey(msg.ID), "2")
	if !ok {
		t.Error("reader missing from read-by set")
	}
	if _, err := store.HGet(ctx, MessageReadTimestampsKey(msg.ID), "2"); err != nil {
		t.Errorf("read timestamp missing: %v", err)
	}

	if err := core.MarkReadGroup(ctx, 9, groupID, msg.ID); !errors.Is(err, ErrNotMember) {
		t.Errorf("MarkReadGroup(outsider) error = %v, want ErrNotMember", err)
	}
}
