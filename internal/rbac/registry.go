package rbac

import (
	"context"
	"errors"

	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
	"github.com/praxisdesk/praxisdesk/internal/shared"
)

// RoleSource provides read access to role definitions. Reads go to the
// store on every call so permission revocation takes effect immediately.
type RoleSource interface {
	GetRole(ctx context.Context, id int64) (Role, error)
}

// Registry resolves permission membership for principals.
type Registry struct {
	source RoleSource
}

// NewRegistry constructs a Registry over the given role source.
func NewRegistry(source RoleSource) *Registry {
	return &Registry{source: source}
}

// PermissionsOf returns the permission set granted by a role. Unknown or
// inactive roles resolve to the empty set; the registry fails closed and
// never surfaces a lookup miss as an error.
func (r *Registry) PermissionsOf(ctx context.Context, roleID int64) (map[string]struct{}, error) {
	role, err := r.source.GetRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return map[string]struct{}{}, nil
		}
		return nil, err
	}
	if !role.Active {
		return map[string]struct{}{}, nil
	}
	perms := make(map[string]struct{}, len(role.Permissions))
	for _, tag := range role.Permissions {
		perms[tag] = struct{}{}
	}
	return perms, nil
}

// HasPermission reports whether any of the principal's roles grants the tag.
func (r *Registry) HasPermission(ctx context.Context, p shared.Principal, tag string) (bool, error) {
	for _, ref := range p.Roles {
		perms, err := r.PermissionsOf(ctx, shared.RoleID(ref))
		if err != nil {
			return false, err
		}
		if _, ok := perms[tag]; ok {
			return true, nil
		}
	}
	return false, nil
}

// IsAdmin reports whether the principal holds the Administrator role.
// Admin status bypasses per-resource ownership checks in the authorization
// engine, so this is a pure role-ID check, not a permission lookup.
func IsAdmin(p shared.Principal) bool {
	return p.HasRole(RoleAdministrator)
}
