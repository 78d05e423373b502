package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
)

// Package errors wrap the httpx taxonomy so handlers map them uniformly.
var (
	ErrRoleNotFound      = fmt.Errorf("role: %w", httpx.ErrNotFound)
	ErrNameTaken         = fmt.Errorf("role name already in use: %w", httpx.ErrConflict)
	ErrUnknownPermission = fmt.Errorf("unknown permission tag: %w", httpx.ErrValidation)
	ErrNameRequired      = fmt.Errorf("role name required: %w", httpx.ErrValidation)
)

// RepositoryPort defines persistence for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context, filter ListFilter) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	SetActive(ctx context.Context, id int64, active bool) (Role, error)
}

// ListFilter narrows role listings.
type ListFilter struct {
	Active     *bool
	Name       string
	Permission string
}

// Service orchestrates role management. All mutation goes through explicit
// create/update/deactivate operations returning fresh snapshots.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a role Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListRoles returns roles matching the filter.
func (s *Service) ListRoles(ctx context.Context, filter ListFilter) ([]Role, error) {
	return s.repo.ListRoles(ctx, filter)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role after validating its name and permissions.
// Name uniqueness spans active and inactive roles.
func (s *Service) CreateRole(ctx context.Context, name, description string, permissions []string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, ErrNameRequired
	}
	if err := validatePermissions(permissions); err != nil {
		return Role{}, err
	}
	if err := s.ensureNameFree(ctx, name, 0); err != nil {
		return Role{}, err
	}
	return s.repo.CreateRole(ctx, Role{
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: permissions,
		Active:      true,
	})
}

// UpdateRole updates name, description and permission set of a role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string, permissions []string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, ErrNameRequired
	}
	if err := validatePermissions(permissions); err != nil {
		return Role{}, err
	}
	existing, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if err := s.ensureNameFree(ctx, name, existing.ID); err != nil {
		return Role{}, err
	}
	existing.Name = name
	existing.Description = strings.TrimSpace(description)
	existing.Permissions = permissions
	return s.repo.UpdateRole(ctx, existing)
}

// DeactivateRole soft-deletes a role. The row stays so historic
// assignments keep resolving; the registry treats it as granting nothing.
func (s *Service) DeactivateRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.SetActive(ctx, id, false)
}

// ReactivateRole re-enables a previously deactivated role.
func (s *Service) ReactivateRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.SetActive(ctx, id, true)
}

func (s *Service) ensureNameFree(ctx context.Context, name string, selfID int64) error {
	existing, err := s.repo.GetRoleByName(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if existing.ID != selfID {
		return ErrNameTaken
	}
	return nil
}

func validatePermissions(tags []string) error {
	for _, tag := range tags {
		if !IsKnownPermission(tag) {
			return fmt.Errorf("%q: %w", tag, ErrUnknownPermission)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, httpx.ErrNotFound)
}
