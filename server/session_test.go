// ABOUTME: Tests for the Redis-backed board membership registry.
// ABOUTME: Runs against miniredis; covers the open-until-granted policy and reopening.
package server_test

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/2389-research/huddle/core"
	"github.com/2389-research/huddle/hub"
	"github.com/2389-research/huddle/server"
)

func newMembershipRegistry(t *testing.T) *server.RedisAuthorizer {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return server.NewRedisAuthorizer(client)
}

func TestOpenBoardAdmitsEveryone(t *testing.T) {
	reg := newMembershipRegistry(t)
	boardID := core.NewULID()

	err := reg.CanAccessBoard(context.Background(), hub.Identity{UserID: "anyone"}, boardID)
	if err != nil {
		t.Fatalf("CanAccessBoard on open board: %v", err)
	}
}

func TestGrantMakesBoardPrivate(t *testing.T) {
	reg := newMembershipRegistry(t)
	boardID := core.NewULID()
	ctx := context.Background()

	if err := reg.Grant(ctx, boardID, "bob"); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	if err := reg.CanAccessBoard(ctx, hub.Identity{UserID: "bob"}, boardID); err != nil {
		t.Errorf("member access: %v", err)
	}

	err := reg.CanAccessBoard(ctx, hub.Identity{UserID: "mallory"}, boardID)
	var denied *hub.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("non-member err = %v, want DeniedError", err)
	}
	if denied.UserID != "mallory" || denied.BoardID != boardID {
		t.Errorf("denied = %+v", denied)
	}
}

func TestMembershipScopedPerBoard(t *testing.T) {
	reg := newMembershipRegistry(t)
	private := core.NewULID()
	other := core.NewULID()
	ctx := context.Background()

	if err := reg.Grant(ctx, private, "bob"); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	// Granting on one board must not close any other.
	if err := reg.CanAccessBoard(ctx, hub.Identity{UserID: "mallory"}, other); err != nil {
		t.Errorf("other board should stay open: %v", err)
	}
}

func TestRevokingLastMemberReopensBoard(t *testing.T) {
	reg := newMembershipRegistry(t)
	boardID := core.NewULID()
	ctx := context.Background()

	if err := reg.Grant(ctx, boardID, "bob"); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := reg.CanAccessBoard(ctx, hub.Identity{UserID: "mallory"}, boardID); err == nil {
		t.Fatal("board should be private after grant")
	}

	if err := reg.Revoke(ctx, boardID, "bob"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := reg.CanAccessBoard(ctx, hub.Identity{UserID: "mallory"}, boardID); err != nil {
		t.Errorf("board should reopen once the member set empties: %v", err)
	}
}

func TestMembersListing(t *testing.T) {
	reg := newMembershipRegistry(t)
	boardID := core.NewULID()
	ctx := context.Background()

	members, err := reg.Members(ctx, boardID)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("fresh board members = %v, want none", members)
	}

	for _, u := range []string{"alice", "bob"} {
		if err := reg.Grant(ctx, boardID, u); err != nil {
			t.Fatalf("Grant %s: %v", u, err)
		}
	}
	members, err = reg.Members(ctx, boardID)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("members = %v, want 2", members)
	}
}

func TestGrantIsIdempotent(t *testing.T) {
	reg := newMembershipRegistry(t)
	boardID := core.NewULID()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := reg.Grant(ctx, boardID, "bob"); err != nil {
			t.Fatalf("Grant: %v", err)
		}
	}
	members, err := reg.Members(ctx, boardID)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 1 {
		t.Errorf("members = %v, want just bob", members)
	}
}
