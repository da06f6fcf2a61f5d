package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	core, store, _, _ := newTestCore(t)

	groupID, err := core.CreateGroup(ctx, "general", 1)
	if err != nil {
		t.Fatalf("CreateGroup() error: %v", err)
	}
	if groupID != 1 {
		t.Errorf("CreateGroup() id = %d, want 1", groupID)
	}

	info, err := core.GroupInfo(ctx, groupID)
	if err != nil {
		t.Fatalf("GroupInfo() error: %v", err)
	}
	if info.Name != "general" || info.CreatorID != 1 {
		t.Errorf("GroupInfo() = %+v", info)
	}

	member, _ := core.IsMember(ctx, 1, groupID)
	if !member {
		t.Error("creator is not a member after CreateGroup")
	}

	groups, _ := core.UserGroups(ctx, 1)
	if len(groups) != 1 || groups[0] != groupID {
		t.Errorf("UserGroups(1) = %v", groups)
	}

	// Ids come from the durable store, monotonically.
	second, err := core.CreateGroup(ctx, "second", 1)
	if err != nil {
		t.Fatal(err)
	}
	if second != groupID+1 {
		t.Errorf("second group id = %d, want %d", second, groupID+1)
	}
	_ = store
}

func TestJoinAndLeaveGroup(t *testing.T) {
	ctx := context.Background()
	core, _, _, _ := newTestCore(t)

	groupID, err := core.CreateGroup(ctx, "general", 1)
	if err != nil {
		t.Fatal(err)
	}

	if err := core.JoinGroup(ctx, 2, groupID); err != nil {
		t.Fatalf("JoinGroup() error: %v", err)
	}
	member, _ := core.IsMember(ctx, 2, groupID)
	if !member {
		t.Error("IsMember(2) = false after join")
	}

	if err := core.JoinGroup(ctx, 2, 999); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("JoinGroup(unknown) error = %v, want ErrGroupNotFound", err)
	}

	if err := core.LeaveGroup(ctx, 2, groupID); err != nil {
		t.Fatalf("LeaveGroup() error: %v", err)
	}
	member, _ = core.IsMember(ctx, 2, groupID)
	if member {
		t.Error("IsMember(2) = true after leave")
	}

	if err := core.LeaveGroup(ctx, 2, groupID); !errors.Is(err, ErrNotMember) {
		t.Errorf("LeaveGroup(non-member) error = %v, want ErrNotMember", err)
	}
}

func TestCreatorLeavingEmptyGroupDeletesIt(t *testing.T) {
	ctx := context.Background()
	core, store, _, _ := newTestCore(t)

	groupID, err := core.CreateGroup(ctx, "doomed", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := core.SendGroup(ctx, 1, groupID, "only message"); err != nil {
		t.Fatal(err)
	}

	if err := core.LeaveGroup(ctx, 1, groupID); err != nil {
		t.Fatalf("LeaveGroup() error: %v", err)
	}

	for _, key := range []string{GroupKey(groupID), GroupMembersKey(groupID), GroupMessagesKey(groupID)} {
		if exists, _ := store.Exists(ctx, key); exists {
			t.Errorf("key %q survives creator leaving empty group", key)
		}
	}
}

func TestCreatorLeavingPopulatedGroupKeepsIt(t *testing.T) {
	ctx := context.Background()
	core, _, _, _ := newTestCore(t)

	groupID, err := core.CreateGroup(ctx, "general", 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := core.JoinGroup(ctx, 2, groupID); err != nil {
		t.Fatal(err)
	}

	if err := core.LeaveGroup(ctx, 1, groupID); err != nil {
		t.Fatalf("LeaveGroup() error: %v", err)
	}

	exists, _ := core.GroupExists(ctx, groupID)
	if !exists {
		t.Error("group deleted although members remain")
	}
}

func TestSendGroup(t *testing.T) {
	ctx := context.Background()
	core, store, _, _ := newTestCore(t)

	groupID, err := core.CreateGroup(ctx, "general", 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range []int64{2, 3} {
		if err := core.JoinGroup(ctx, u, groupID); err != nil {
			t.Fatal(err)
		}
	}
	if err := core.MarkOnline(ctx, 2); err != nil {
		t.Fatal(err)
	}
	// User 3 stays offline.

	msg, recipients, err := core.SendGroup(ctx, 1, groupID, "hello all")
	if err != nil {
		t.Fatalf("SendGroup() error: %v", err)
	}
	if msg.Kind != KindGroup || msg.Group != groupID {
		t.Errorf("SendGroup() msg = %+v", msg)
	}

	if len(recipients) != 2 {
		t.Errorf("recipients = %v, want 2 entries excluding sender", recipients)
	}
	for _, r := range recipients {
		if r == 1 {
			t.Error("recipients include the sender")
		}
	}

	// Offline member got a parked copy; online member did not.
	if n, _ := store.LLen(ctx, OfflineKey(3)); n != 1 {
		t.Errorf("offline queue for 3 = %d entries, want 1", n)
	}
	if n, _ := store.LLen(ctx, OfflineKey(2)); n != 0 {
		t.Errorf("offline queue for 2 = %d entries, want 0", n)
	}
}

func TestSendGroupRejections(t *testing.T) {
	ctx := context.Background()
	core, _, _, _ := newTestCore(t)

	groupID, err := core.CreateGroup(ctx, "general", 1)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := core.SendGroup(ctx, 2, groupID, "hi"); !errors.Is(err, ErrNotMember) {
		t.Errorf("SendGroup(non-member) error = %v, want ErrNotMember", err)
	}
	if _, _, err := core.SendGroup(ctx, 1, 999, "hi"); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("SendGroup(unknown group) error = %v, want ErrGroupNotFound", err)
	}
}

func TestSendGroupTrimsToHotLimit(t *testing.T) {
	ctx := context.Background()
	core, store, _, _ := newTestCore(t)

	groupID, err := core.CreateGroup(ctx, "busy", 1)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < groupHotLimit+10; i++ {
		if _, _, err := core.SendGroup(ctx, 1, groupID, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("SendGroup() #%d error: %v", i, err)
		}
	}

	n, _ := store.LLen(ctx, GroupMessagesKey(groupID))
	if n != groupHotLimit {
		t.Errorf("group stream length = %d, want %d", n, groupHotLimit)
	}
}
