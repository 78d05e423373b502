package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/praxisdesk/praxisdesk/internal/shared"
)

type memoryRoleSource struct {
	roles map[int64]Role
}

func (s *memoryRoleSource) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

func seededSource() *memoryRoleSource {
	src := &memoryRoleSource{roles: make(map[int64]Role)}
	for _, role := range SeedRoles() {
		src.roles[role.ID] = role
	}
	return src
}

func principalWithRoles(ids ...int64) shared.Principal {
	refs := make([]shared.RoleRef, len(ids))
	for i, id := range ids {
		refs[i] = shared.RoleRef{ID: id}
	}
	return shared.Principal{ID: 42, Email: "someone@example.com", Active: true, Roles: refs}
}

func TestPermissionsOfActiveRole(t *testing.T) {
	registry := NewRegistry(seededSource())

	perms, err := registry.PermissionsOf(context.Background(), RoleDeveloper)
	require.NoError(t, err)
	require.Contains(t, perms, PermProjectsCreate)
	require.Contains(t, perms, PermConsultationsUpdate)
	require.NotContains(t, perms, PermRolesManage)
}

func TestPermissionsOfUnknownRoleIsEmpty(t *testing.T) {
	registry := NewRegistry(seededSource())

	perms, err := registry.PermissionsOf(context.Background(), 999)
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestPermissionsOfInactiveRoleIsEmpty(t *testing.T) {
	src := seededSource()
	role := src.roles[RoleClient]
	role.Active = false
	src.roles[RoleClient] = role
	registry := NewRegistry(src)

	perms, err := registry.PermissionsOf(context.Background(), RoleClient)
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestHasPermissionAcrossRoles(t *testing.T) {
	registry := NewRegistry(seededSource())
	p := principalWithRoles(RoleClient, RoleDeveloper)

	ok, err := registry.HasPermission(context.Background(), p, PermProjectsCreate)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = registry.HasPermission(context.Background(), p, PermUsersDelete)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHasPermissionInactiveRoleGrantsNothing(t *testing.T) {
	src := seededSource()
	role := src.roles[RoleDeveloper]
	role.Active = false
	src.roles[RoleDeveloper] = role
	registry := NewRegistry(src)

	ok, err := registry.HasPermission(context.Background(), principalWithRoles(RoleDeveloper), PermProjectsCreate)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsAdmin(t *testing.T) {
	require.True(t, IsAdmin(principalWithRoles(RoleAdministrator)))
	require.True(t, IsAdmin(principalWithRoles(RoleClient, RoleAdministrator)))
	require.False(t, IsAdmin(principalWithRoles(RoleDeveloper)))
	require.False(t, IsAdmin(shared.Principal{}))
}
