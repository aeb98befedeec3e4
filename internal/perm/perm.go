// Package perm resolves layered permissions: a config-only bypass
// tier, explicit per-actor grants, role-derived capabilities, and a
// default set, consulted in that order.
package perm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Capability is a closed set of named permission units. All checks go
// through Resolver.Check; capability names are never string-compared
// at call sites.
type Capability int

const (
	FileRead Capability = iota
	FileWrite
	ManageSchedule
	ManageMemory
	ManagePermissions
	// Bypass is the highest tier: it passes every check. It is
	// assignable only through process configuration, never through
	// Grant.
	Bypass
)

var capNames = map[Capability]string{
	FileRead:          "file-read",
	FileWrite:         "file-write",
	ManageSchedule:    "manage-schedule",
	ManageMemory:      "manage-memory",
	ManagePermissions: "manage-permissions",
	Bypass:            "bypass",
}

func (c Capability) String() string {
	if name, ok := capNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", int(c))
}

// ParseCapability maps a capability name to its variant.
func ParseCapability(name string) (Capability, error) {
	for c, n := range capNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", name)
}

// ErrForbidden is returned when a permission check fails, including
// any attempt to grant or revoke the bypass tier at runtime.
var ErrForbidden = errors.New("forbidden")

// RoleLookup resolves the roles an actor currently holds, typically
// against the chat platform. It is consulted live on every check so
// role revocations take effect immediately; implementations must not
// cache beyond a single call.
type RoleLookup interface {
	RolesOf(ctx context.Context, actor string) ([]string, error)
}

// RoleLookupFunc adapts a function to RoleLookup.
type RoleLookupFunc func(ctx context.Context, actor string) ([]string, error)

func (f RoleLookupFunc) RolesOf(ctx context.Context, actor string) ([]string, error) {
	return f(ctx, actor)
}

// GrantStore is the slice of the durable store the resolver needs.
type GrantStore interface {
	GrantsFor(ctx context.Context, actor string) ([]string, error)
	AddGrant(ctx context.Context, actor, capability, grantedBy string) (bool, error)
	RemoveGrant(ctx context.Context, actor, capability string) (bool, error)
	RoleCaps(ctx context.Context, roles []string) ([]string, error)
}

// Resolver evaluates an actor's effective capabilities. Grants and
// role tables are read from the store on every check rather than
// merged into a cache, so revocations are reflected promptly.
type Resolver struct {
	store    GrantStore
	roles    RoleLookup
	bypass   map[string]bool
	defaults map[Capability]bool
	logger   *slog.Logger
}

// NewResolver builds a Resolver. superUsers come from process
// configuration only. defaultCaps are capability names granted to
// everyone; the bypass name is rejected there.
func NewResolver(store GrantStore, roles RoleLookup, superUsers, defaultCaps []string, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	bypass := make(map[string]bool, len(superUsers))
	for _, actor := range superUsers {
		bypass[actor] = true
	}

	defaults := make(map[Capability]bool, len(defaultCaps))
	for _, name := range defaultCaps {
		c, err := ParseCapability(name)
		if err != nil {
			return nil, fmt.Errorf("default capability: %w", err)
		}
		if c == Bypass {
			return nil, fmt.Errorf("default capability: %w: bypass cannot be defaulted", ErrForbidden)
		}
		defaults[c] = true
	}

	return &Resolver{
		store:    store,
		roles:    roles,
		bypass:   bypass,
		defaults: defaults,
		logger:   logger,
	}, nil
}

// Check reports whether actor may exercise capability. Resolution
// short-circuits in order: bypass tier, explicit grant, role-derived
// grant, default set.
func (r *Resolver) Check(ctx context.Context, actor string, capability Capability) (bool, error) {
	if r.bypass[actor] {
		return true, nil
	}

	grants, err := r.store.GrantsFor(ctx, actor)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", actor, err)
	}
	if containsCap(grants, capability, r.logger) {
		return true, nil
	}

	if r.roles != nil {
		roleNames, err := r.roles.RolesOf(ctx, actor)
		if err != nil {
			return false, fmt.Errorf("resolve roles for %s: %w", actor, err)
		}
		roleCaps, err := r.store.RoleCaps(ctx, roleNames)
		if err != nil {
			return false, fmt.Errorf("check %s: %w", actor, err)
		}
		if containsCap(roleCaps, capability, r.logger) {
			return true, nil
		}
	}

	return r.defaults[capability], nil
}

// Grant gives actor an explicit capability. The granter must hold
// ManagePermissions; the bypass tier is never grantable, even by a
// bypass holder.
func (r *Resolver) Grant(ctx context.Context, granter, actor string, capability Capability) error {
	if capability == Bypass {
		return fmt.Errorf("grant bypass: %w: set via configuration only", ErrForbidden)
	}
	if err := r.requireManager(ctx, granter); err != nil {
		return err
	}

	added, err := r.store.AddGrant(ctx, actor, capability.String(), granter)
	if err != nil {
		return err
	}
	if added {
		r.logger.Info("capability granted",
			"actor", actor, "capability", capability.String(), "granter", granter)
	}
	return nil
}

// Revoke removes an explicit capability grant, under the same rules
// as Grant.
func (r *Resolver) Revoke(ctx context.Context, granter, actor string, capability Capability) error {
	if capability == Bypass {
		return fmt.Errorf("revoke bypass: %w: set via configuration only", ErrForbidden)
	}
	if err := r.requireManager(ctx, granter); err != nil {
		return err
	}

	removed, err := r.store.RemoveGrant(ctx, actor, capability.String())
	if err != nil {
		return err
	}
	if removed {
		r.logger.Info("capability revoked",
			"actor", actor, "capability", capability.String(), "granter", granter)
	}
	return nil
}

// Effective returns the full capability set actor currently resolves
// to, for display purposes. Bypass holders report every capability.
func (r *Resolver) Effective(ctx context.Context, actor string) ([]Capability, error) {
	if r.bypass[actor] {
		return []Capability{FileRead, FileWrite, ManageSchedule, ManageMemory, ManagePermissions, Bypass}, nil
	}

	set := make(map[Capability]bool)
	for c := range r.defaults {
		set[c] = true
	}

	grants, err := r.store.GrantsFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	addCaps(set, grants, r.logger)

	if r.roles != nil {
		roleNames, err := r.roles.RolesOf(ctx, actor)
		if err != nil {
			return nil, err
		}
		roleCaps, err := r.store.RoleCaps(ctx, roleNames)
		if err != nil {
			return nil, err
		}
		addCaps(set, roleCaps, r.logger)
	}

	out := make([]Capability, 0, len(set))
	for c := FileRead; c <= ManagePermissions; c++ {
		if set[c] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *Resolver) requireManager(ctx context.Context, granter string) error {
	ok, err := r.Check(ctx, granter, ManagePermissions)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s lacks %s: %w", granter, ManagePermissions, ErrForbidden)
	}
	return nil
}

// containsCap matches stored capability names against the requested
// variant. Unknown names and bypass rows in grant/role tables are
// ignored: bypass lives only in configuration.
func containsCap(names []string, want Capability, logger *slog.Logger) bool {
	for _, name := range names {
		c, err := ParseCapability(name)
		if err != nil {
			logger.Warn("ignoring unknown capability in store", "name", name)
			continue
		}
		if c == Bypass {
			continue
		}
		if c == want {
			return true
		}
	}
	return false
}

func addCaps(set map[Capability]bool, names []string, logger *slog.Logger) {
	for _, name := range names {
		c, err := ParseCapability(name)
		if err != nil || c == Bypass {
			if err != nil {
				logger.Warn("ignoring unknown capability in store", "name", name)
			}
			continue
		}
		set[c] = true
	}
}
