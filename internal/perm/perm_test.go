package perm

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/rkoyama/glmbot/internal/store"
)

// memberships is a mutable fake RoleLookup so tests can revoke roles
// mid-flight.
type memberships map[string][]string

func (m memberships) RolesOf(_ context.Context, actor string) ([]string, error) {
	return m[actor], nil
}

func newTestResolver(t *testing.T, roles RoleLookup, superUsers []string) (*Resolver, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	r, err := NewResolver(s, roles, superUsers, []string{"file-read"}, slog.Default())
	if err != nil {
		t.Fatalf("create resolver: %v", err)
	}
	return r, s
}

func TestParseCapability(t *testing.T) {
	for c, name := range map[Capability]string{
		FileRead:          "file-read",
		ManagePermissions: "manage-permissions",
		Bypass:            "bypass",
	} {
		got, err := ParseCapability(name)
		if err != nil || got != c {
			t.Errorf("ParseCapability(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseCapability("root"); err == nil {
		t.Error("unknown name should fail to parse")
	}
}

func TestDefaultGrant(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver(t, memberships{}, nil)

	if ok, _ := r.Check(ctx, "anyone", FileRead); !ok {
		t.Error("file-read is in the default set")
	}
	if ok, _ := r.Check(ctx, "anyone", FileWrite); ok {
		t.Error("file-write is not defaulted")
	}
}

func TestBypassShortCircuits(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver(t, memberships{}, []string{"root-user"})

	for c := FileRead; c <= Bypass; c++ {
		if ok, _ := r.Check(ctx, "root-user", c); !ok {
			t.Errorf("bypass holder denied %s", c)
		}
	}
	if ok, _ := r.Check(ctx, "other", Bypass); ok {
		t.Error("non-super actor must not hold bypass")
	}
}

func TestExplicitGrantFlow(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver(t, memberships{}, []string{"admin"})

	// Non-manager cannot grant.
	err := r.Grant(ctx, "mallory", "u1", FileWrite)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("grant by non-manager = %v, want ErrForbidden", err)
	}

	if err := r.Grant(ctx, "admin", "u1", FileWrite); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if ok, _ := r.Check(ctx, "u1", FileWrite); !ok {
		t.Error("explicit grant not honored")
	}

	if err := r.Revoke(ctx, "admin", "u1", FileWrite); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := r.Check(ctx, "u1", FileWrite); ok {
		t.Error("revocation not reflected on next check")
	}
}

func TestBypassNeverGrantable(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver(t, memberships{}, []string{"admin"})

	// Even the bypass holder cannot hand out bypass.
	if err := r.Grant(ctx, "admin", "u1", Bypass); !errors.Is(err, ErrForbidden) {
		t.Errorf("grant bypass = %v, want ErrForbidden", err)
	}
	if err := r.Revoke(ctx, "admin", "admin", Bypass); !errors.Is(err, ErrForbidden) {
		t.Errorf("revoke bypass = %v, want ErrForbidden", err)
	}
}

func TestRoleDerivedGrants(t *testing.T) {
	ctx := context.Background()
	roles := memberships{"u1": {"moderator"}}
	r, s := newTestResolver(t, roles, nil)

	s.SetRoleCaps(ctx, "moderator", []string{"manage-schedule"})

	if ok, _ := r.Check(ctx, "u1", ManageSchedule); !ok {
		t.Error("role-derived capability not honored")
	}
	if ok, _ := r.Check(ctx, "u2", ManageSchedule); ok {
		t.Error("actor without the role must be denied")
	}
}

func TestRoleRevocationIsLive(t *testing.T) {
	ctx := context.Background()
	roles := memberships{"u1": {"moderator"}}
	r, s := newTestResolver(t, roles, nil)
	s.SetRoleCaps(ctx, "moderator", []string{"manage-schedule"})

	if ok, _ := r.Check(ctx, "u1", ManageSchedule); !ok {
		t.Fatal("precondition: role grant works")
	}

	// Revoke the role externally; the very next check must see it.
	delete(roles, "u1")
	if ok, _ := r.Check(ctx, "u1", ManageSchedule); ok {
		t.Error("revoked role still granting after revocation")
	}
}

func TestBypassRowInRoleTableIgnored(t *testing.T) {
	ctx := context.Background()
	roles := memberships{"u1": {"sneaky"}}
	r, s := newTestResolver(t, roles, nil)

	// A hand-edited role table must not mint bypass.
	s.SetRoleCaps(ctx, "sneaky", []string{"bypass"})
	if ok, _ := r.Check(ctx, "u1", Bypass); ok {
		t.Error("bypass from the role table must be ignored")
	}
}

func TestBypassDefaultRejected(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := NewResolver(s, nil, nil, []string{"bypass"}, nil); err == nil {
		t.Error("bypass in default capabilities must be rejected")
	}
}

func TestEffective(t *testing.T) {
	ctx := context.Background()
	roles := memberships{"u1": {"moderator"}}
	r, s := newTestResolver(t, roles, nil)
	s.SetRoleCaps(ctx, "moderator", []string{"manage-schedule"})
	s.AddGrant(ctx, "u1", "file-write", "admin")

	caps, err := r.Effective(ctx, "u1")
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	want := map[Capability]bool{FileRead: true, FileWrite: true, ManageSchedule: true}
	if len(caps) != len(want) {
		t.Fatalf("effective = %v", caps)
	}
	for _, c := range caps {
		if !want[c] {
			t.Errorf("unexpected capability %s", c)
		}
	}
}
