package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrIdentityNotFound is returned by a Source when the identity does not exist.
var ErrIdentityNotFound = errors.New("rbac: identity not found")

const resolveTimeout = 10 * time.Second

// Source provides the data the resolver aggregates.
type Source interface {
	GetIdentity(ctx context.Context, identityID string) (Identity, error)
	ListAssignments(ctx context.Context, identityID string) ([]Assignment, error)
	GetRolesByIDs(ctx context.Context, ids []string) ([]Role, error)
}

// Resolver computes the effective permissions of an identity. Results are
// derived on every call; concurrent calls for the same identity share one
// fetch.
type Resolver struct {
	source Source
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(source Source, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{source: source, logger: logger, now: time.Now}
}

// Invalidate drops any in-flight resolution for the identity so the next call
// reads fresh data.
func (r *Resolver) Invalidate(identityID string) {
	r.group.Forget(identityID)
}

// Snapshot resolves the identity's admin flag and permission map in one pass.
func (r *Resolver) Snapshot(ctx context.Context, identityID string) (*Snapshot, error) {
	if identityID == "" {
		return &Snapshot{Permissions: PermissionMap{}, ResolvedAt: r.now()}, nil
	}
	// The flight is shared, so it must not die with whichever caller started it.
	ch := r.group.DoChan(identityID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		return r.resolve(fctx, identityID)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	shared := res.Val.(*Snapshot)
	return &Snapshot{
		IdentityID:  shared.IdentityID,
		Admin:       shared.Admin,
		Permissions: shared.Permissions.Clone(),
		ResolvedAt:  shared.ResolvedAt,
	}, nil
}

// ResolvePermissions returns the union of the permissions granted by every
// role assigned to the identity. Unknown ids resolve to an empty map.
func (r *Resolver) ResolvePermissions(ctx context.Context, identityID string) (PermissionMap, error) {
	snap, err := r.Snapshot(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return snap.Permissions, nil
}

// IsAdmin reports whether the identity has unrestricted access.
func (r *Resolver) IsAdmin(ctx context.Context, identityID string) (bool, error) {
	snap, err := r.Snapshot(ctx, identityID)
	if err != nil {
		return false, err
	}
	return snap.Admin, nil
}

// HasPermission reports whether the identity may perform action on resource.
func (r *Resolver) HasPermission(ctx context.Context, identityID string, resource Resource, action Action) (bool, error) {
	snap, err := r.Snapshot(ctx, identityID)
	if err != nil {
		return false, err
	}
	return snap.Has(resource, action), nil
}

// CanCreate is HasPermission with ActionCreate.
func (r *Resolver) CanCreate(ctx context.Context, identityID string, resource Resource) (bool, error) {
	return r.HasPermission(ctx, identityID, resource, ActionCreate)
}

// CanRead is HasPermission with ActionRead.
func (r *Resolver) CanRead(ctx context.Context, identityID string, resource Resource) (bool, error) {
	return r.HasPermission(ctx, identityID, resource, ActionRead)
}

// CanUpdate is HasPermission with ActionUpdate.
func (r *Resolver) CanUpdate(ctx context.Context, identityID string, resource Resource) (bool, error) {
	return r.HasPermission(ctx, identityID, resource, ActionUpdate)
}

// CanDelete is HasPermission with ActionDelete.
func (r *Resolver) CanDelete(ctx context.Context, identityID string, resource Resource) (bool, error) {
	return r.HasPermission(ctx, identityID, resource, ActionDelete)
}

func (r *Resolver) resolve(ctx context.Context, identityID string) (*Snapshot, error) {
	snap := &Snapshot{IdentityID: identityID, Permissions: PermissionMap{}, ResolvedAt: r.now()}

	identity, err := r.source.GetIdentity(ctx, identityID)
	switch {
	case errors.Is(err, ErrIdentityNotFound):
		return snap, nil
	case err != nil:
		return nil, fmt.Errorf("rbac: load identity: %w", err)
	}
	if !identity.IsActive {
		return snap, nil
	}

	assignments, err := r.source.ListAssignments(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("rbac: list assignments: %w", err)
	}
	if identity.IsSuperuser {
		snap.Admin = true
	}
	if len(assignments) == 0 {
		return snap, nil
	}

	seen := make(map[string]struct{}, len(assignments))
	roleIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		if _, dup := seen[a.RoleID]; dup {
			continue
		}
		seen[a.RoleID] = struct{}{}
		roleIDs = append(roleIDs, a.RoleID)
	}

	roles, err := r.source.GetRolesByIDs(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("rbac: load roles: %w", err)
	}

	merged := make(map[Resource]map[Action]struct{})
	grant := func(resource Resource, action Action) {
		set, ok := merged[resource]
		if !ok {
			set = make(map[Action]struct{})
			merged[resource] = set
		}
		set[action] = struct{}{}
	}
	for _, role := range roles {
		if isAdminRole(role) {
			snap.Admin = true
		}
		for resource, actions := range role.Permissions {
			for _, action := range actions {
				if !action.Valid() {
					r.logger.Debug("rbac: ignoring unknown action", slog.String("role", role.Name), slog.String("action", string(action)))
					continue
				}
				switch {
				case resource == AnyResource:
					for _, known := range AllResources() {
						grant(known, action)
					}
				case resource.Valid():
					grant(resource, action)
				default:
					r.logger.Debug("rbac: ignoring unknown resource", slog.String("role", role.Name), slog.String("resource", string(resource)))
				}
			}
		}
	}
	for resource, set := range merged {
		snap.Permissions[resource] = sortedActions(set)
	}
	return snap, nil
}

func isAdminRole(role Role) bool {
	return role.IsAdmin || role.Name == AdminRoleName || role.Name == SuperAdminRoleName
}
