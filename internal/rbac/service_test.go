package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
)

type memoryRoleRepo struct {
	roles  map[int64]Role
	nextID int64
}

func newMemoryRoleRepo() *memoryRoleRepo {
	repo := &memoryRoleRepo{roles: make(map[int64]Role), nextID: 100}
	for _, role := range SeedRoles() {
		repo.roles[role.ID] = role
	}
	return repo
}

func (r *memoryRoleRepo) ListRoles(ctx context.Context, filter ListFilter) ([]Role, error) {
	var out []Role
	for _, role := range r.roles {
		if filter.Active != nil && role.Active != *filter.Active {
			continue
		}
		out = append(out, role)
	}
	return out, nil
}

func (r *memoryRoleRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

func (r *memoryRoleRepo) GetRoleByName(ctx context.Context, name string) (Role, error) {
	for _, role := range r.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, ErrRoleNotFound
}

func (r *memoryRoleRepo) CreateRole(ctx context.Context, role Role) (Role, error) {
	r.nextID++
	role.ID = r.nextID
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRoleRepo) UpdateRole(ctx context.Context, role Role) (Role, error) {
	if _, ok := r.roles[role.ID]; !ok {
		return Role{}, ErrRoleNotFound
	}
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRoleRepo) SetActive(ctx context.Context, id int64, active bool) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	role.Active = active
	r.roles[id] = role
	return role, nil
}

func TestCreateRole(t *testing.T) {
	svc := NewService(newMemoryRoleRepo())

	role, err := svc.CreateRole(context.Background(), "Reviewer", "Reviews deliverables",
		[]string{PermProjectsViewOwn, PermReportsExport})
	require.NoError(t, err)
	require.True(t, role.Active)
	require.Equal(t, "Reviewer", role.Name)
	require.Len(t, role.Permissions, 2)
}

func TestCreateRoleNameConflict(t *testing.T) {
	svc := NewService(newMemoryRoleRepo())

	_, err := svc.CreateRole(context.Background(), "Developer", "duplicate", nil)
	require.ErrorIs(t, err, ErrNameTaken)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestCreateRoleNameConflictWithInactive(t *testing.T) {
	repo := newMemoryRoleRepo()
	svc := NewService(repo)

	_, err := svc.DeactivateRole(context.Background(), RoleDeveloper)
	require.NoError(t, err)

	// Uniqueness spans inactive roles too.
	_, err = svc.CreateRole(context.Background(), "Developer", "duplicate", nil)
	require.ErrorIs(t, err, ErrNameTaken)
}

func TestCreateRoleUnknownPermission(t *testing.T) {
	svc := NewService(newMemoryRoleRepo())

	_, err := svc.CreateRole(context.Background(), "Broken", "", []string{"projects:launch"})
	require.ErrorIs(t, err, ErrUnknownPermission)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCreateRoleNameRequired(t *testing.T) {
	svc := NewService(newMemoryRoleRepo())

	_, err := svc.CreateRole(context.Background(), "   ", "", nil)
	require.ErrorIs(t, err, ErrNameRequired)
}

func TestUpdateRoleKeepsOwnName(t *testing.T) {
	svc := NewService(newMemoryRoleRepo())

	role, err := svc.UpdateRole(context.Background(), RoleDeveloper, "Developer", "updated",
		[]string{PermProjectsEdit})
	require.NoError(t, err)
	require.Equal(t, "updated", role.Description)
	require.Equal(t, []string{PermProjectsEdit}, role.Permissions)
}

func TestUpdateRoleNameConflict(t *testing.T) {
	svc := NewService(newMemoryRoleRepo())

	_, err := svc.UpdateRole(context.Background(), RoleDeveloper, "Client", "", nil)
	require.ErrorIs(t, err, ErrNameTaken)
}

func TestDeactivateRoleSoftDeletes(t *testing.T) {
	repo := newMemoryRoleRepo()
	svc := NewService(repo)

	role, err := svc.DeactivateRole(context.Background(), RoleClient)
	require.NoError(t, err)
	require.False(t, role.Active)

	// The row survives for historic assignments.
	stored, err := repo.GetRole(context.Background(), RoleClient)
	require.NoError(t, err)
	require.False(t, stored.Active)

	reactivated, err := svc.ReactivateRole(context.Background(), RoleClient)
	require.NoError(t, err)
	require.True(t, reactivated.Active)
}

func TestGetRoleNotFound(t *testing.T) {
	svc := NewService(newMemoryRoleRepo())

	_, err := svc.GetRole(context.Background(), 999)
	require.True(t, errors.Is(err, httpx.ErrNotFound))
}
