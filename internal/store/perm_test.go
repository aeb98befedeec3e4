package store

import (
	"context"
	"testing"
)

func TestGrants(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	added, err := s.AddGrant(ctx, "u1", "file-write", "admin")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !added {
		t.Error("first grant should report added")
	}

	added, _ = s.AddGrant(ctx, "u1", "file-write", "admin")
	if added {
		t.Error("duplicate grant should be a no-op")
	}

	caps, _ := s.GrantsFor(ctx, "u1")
	if len(caps) != 1 || caps[0] != "file-write" {
		t.Errorf("grants = %v", caps)
	}

	removed, err := s.RemoveGrant(ctx, "u1", "file-write")
	if err != nil || !removed {
		t.Fatalf("revoke = %v, %v", removed, err)
	}
	removed, _ = s.RemoveGrant(ctx, "u1", "file-write")
	if removed {
		t.Error("second revoke should report nothing removed")
	}
}

func TestRoleCaps(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.SetRoleCaps(ctx, "moderator", []string{"file-read", "manage-schedule"})
	s.SetRoleCaps(ctx, "editor", []string{"file-write"})

	caps, err := s.RoleCaps(ctx, []string{"moderator", "editor"})
	if err != nil {
		t.Fatalf("role caps: %v", err)
	}
	if len(caps) != 3 {
		t.Errorf("caps = %v, want union of both roles", caps)
	}

	// Replacing a role's set drops the old capabilities.
	s.SetRoleCaps(ctx, "moderator", []string{"file-read"})
	caps, _ = s.RoleCaps(ctx, []string{"moderator"})
	if len(caps) != 1 || caps[0] != "file-read" {
		t.Errorf("caps after replace = %v", caps)
	}

	if caps, _ := s.RoleCaps(ctx, nil); caps != nil {
		t.Errorf("no roles should yield no caps, got %v", caps)
	}

	s.DeleteRole(ctx, "editor")
	caps, _ = s.RoleCaps(ctx, []string{"editor"})
	if len(caps) != 0 {
		t.Errorf("deleted role still grants %v", caps)
	}
}
