package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestHistoryPrivateColdOnly(t *testing.T) {
	ctx := context.Background()
	core, _, cold, _ := newTestCore(t)

	for i := 0; i < 5; i++ {
		cold.private = append(cold.private, Message{
			ID: fmt.Sprintf("c%d", i), From: 1, To: 2,
			Content: fmt.Sprintf("cold%d", i), Kind: KindPrivate,
		})
	}

	msgs, err := core.HistoryPrivate(ctx, 1, 2, 3, 0)
	if err != nil {
		t.Fatalf("HistoryPrivate() error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("HistoryPrivate() returned %d messages, want 3", len(msgs))
	}
	if msgs[0].ID != "c0" {
		t.Errorf("first message = %q, want c0", msgs[0].ID)
	}
}

func TestHistoryPrivateTopsUpFromHot(t *testing.T) {
	ctx := context.Background()
	core, store, cold, _ := newTestCore(t)
	befriend(t, store, 1, 2)

	// One archived row and two fresh hot messages.
	cold.private = []Message{{ID: "old", From: 1, To: 2, Content: "archived", Kind: KindPrivate}}

	first, _, err := core.SendPrivate(ctx, 1, 2, "fresh1")
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := core.SendPrivate(ctx, 1, 2, "fresh2")
	if err != nil {
		t.Fatal(err)
	}

	msgs, err := core.HistoryPrivate(ctx, 1, 2, 5, 0)
	if err != nil {
		t.Fatalf("HistoryPrivate() error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("HistoryPrivate() returned %d messages, want 3", len(msgs))
	}

	// Hot entries newest first, then cold rows.
	if msgs[0].ID != second.ID || msgs[1].ID != first.ID || msgs[2].ID != "old" {
		t.Errorf("history order = [%s %s %s]", msgs[0].ID, msgs[1].ID, msgs[2].ID)
	}
}

func TestHistoryPrivateDeduplicatesOverlap(t *testing.T) {
	ctx := context.Background()
	core, store, cold, _ := newTestCore(t)
	befriend(t, store, 1, 2)

	// The message is both archived and still in the hot stream.
	msg, _, err := core.SendPrivate(ctx, 1, 2, "both tiers")
	if err != nil {
		t.Fatal(err)
	}
	cold.private = []Message{msg}

	msgs, err := core.HistoryPrivate(ctx, 1, 2, 5, 0)
	if err != nil {
		t.Fatalf("HistoryPrivate() error: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("HistoryPrivate() returned %d messages, want 1 after dedupe", len(msgs))
	}
}

func TestHistoryPrivateDeduplicatesRowsWithoutIDs(t *testing.T) {
	ctx := context.Background()
	core, store, cold, _ := newTestCore(t)
	befriend(t, store, 1, 2)

	// An archived copy from before ids were persisted comes back blank;
	// it must still match the hot entry on sender, timestamp, and
	// content.
	msg, _, err := core.SendPrivate(ctx, 1, 2, "both tiers")
	if err != nil {
		t.Fatal(err)
	}
	archived := msg
	archived.ID = ""
	cold.private = []Message{archived}

	msgs, err := core.HistoryPrivate(ctx, 1, 2, 5, 0)
	if err != nil {
		t.Fatalf("HistoryPrivate() error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("HistoryPrivate() returned %d messages, want 1 after dedupe", len(msgs))
	}
}

func TestHistoryGroup(t *testing.T) {
	ctx := context.Background()
	core, _, cold, _ := newTestCore(t)

	groupID, err := core.CreateGroup(ctx, "general", 1)
	if err != nil {
		t.Fatal(err)
	}
	cold.group[groupID] = []Message{{ID: "g0", From: 1, Group: groupID, Kind: KindGroup}}

	if _, _, err := core.SendGroup(ctx, 1, groupID, "recent"); err != nil {
		t.Fatal(err)
	}

	msgs, err := core.HistoryGroup(ctx, 1, groupID, 10, 0)
	if err != nil {
		t.Fatalf("HistoryGroup() error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("HistoryGroup() returned %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "recent" || msgs[1].ID != "g0" {
		t.Errorf("history order = %+v", msgs)
	}

	if _, err := core.HistoryGroup(ctx, 1, 999, 10, 0); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("HistoryGroup(unknown) error = %v, want ErrGroupNotFound", err)
	}
}

func TestHistoryGroupRequiresMembership(t *testing.T) {
	ctx := context.Background()
	core, _, _, _ := newTestCore(t)

	groupID, err := core.CreateGroup(ctx, "general", 1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := core.HistoryGroup(ctx, 2, groupID, 10, 0); !errors.Is(err, ErrNotMember) {
		t.Fatalf("HistoryGroup(non-member) error = %v, want ErrNotMember", err)
	}

	if err := core.JoinGroup(ctx, 2, groupID); err != nil {
		t.Fatal(err)
	}
	if _, err := core.HistoryGroup(ctx, 2, groupID, 10, 0); err != nil {
		t.Errorf("HistoryGroup(member) error = %v", err)
	}
}

func TestHistoryArgumentValidation(t *testing.T) {
	ctx := context.Background()
	core, _, _, _ := newTestCore(t)

	if _, err := core.HistoryPrivate(ctx, 1, 2, -1, 0); !errors.Is(err, ErrBadArgument) {
		t.Errorf("negative count error = %v, want ErrBadArgument", err)
	}
	if _, err := core.HistoryPrivate(ctx, 1, 2, 5, -3); !errors.Is(err, ErrBadArgument) {
		t.Errorf("negative offset error = %v, want ErrBadArgument", err)
	}

	// Zero count selects the default page size without error.
	if _, err := core.HistoryPrivate(ctx, 1, 2, 0, 0); err != nil {
		t.Errorf("zero count error = %v", err)
	}
}
