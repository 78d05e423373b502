// Package users implements the admin user directory: listing accounts,
// editing status and role assignments. Registration and credentials live
// in the auth package.
package users

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
	"github.com/praxisdesk/praxisdesk/internal/rbac"
	"github.com/praxisdesk/praxisdesk/internal/shared"
)

// User is the directory view of an account. No credential material.
type User struct {
	ID        int64
	Name      string
	Username  string
	Email     string
	Active    bool
	Roles     []shared.RoleRef
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrUserNotFound is returned when the account row is absent.
	ErrUserNotFound = fmt.Errorf("user: %w", httpx.ErrNotFound)
	// ErrUnknownRole rejects assignment of a role ID with no row.
	ErrUnknownRole = fmt.Errorf("unknown role: %w", httpx.ErrValidation)
)

// RepositoryPort defines persistence for the user directory.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
	Get(ctx context.Context, id int64) (User, error)
	Exists(ctx context.Context, id int64) (bool, error)
	Update(ctx context.Context, id int64, name *string, active *bool) (User, error)
	SetRoles(ctx context.Context, id int64, roleIDs []int64) error
}

// ListFilter narrows user listings.
type ListFilter struct {
	Active  *bool
	Search  string
	Page    int
	PerPage int
}

// UpdateInput patches directory-editable fields. Nil leaves a field
// untouched; RoleIDs replaces the whole assignment set when present.
type UpdateInput struct {
	Name    *string
	Active  *bool
	RoleIDs []int64
}

// Service orchestrates directory operations.
type Service struct {
	repo     RepositoryPort
	registry *rbac.Registry
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService constructs a users Service.
func NewService(repo RepositoryPort, registry *rbac.Registry, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, registry: registry, audit: audit, logger: logger}
}

// List returns accounts visible to the principal (users:view_all).
func (s *Service) List(ctx context.Context, principal shared.Principal, filter ListFilter) ([]User, int, error) {
	if err := s.require(ctx, principal, rbac.PermUsersViewAll); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, filter)
}

// Get fetches one account (users:view_all).
func (s *Service) Get(ctx context.Context, principal shared.Principal, id int64) (User, error) {
	if err := s.require(ctx, principal, rbac.PermUsersViewAll); err != nil {
		return User{}, err
	}
	return s.repo.Get(ctx, id)
}

// Update patches name, active flag and role assignments (users:edit).
// Deactivation is the soft delete: the row stays, resolution fails.
func (s *Service) Update(ctx context.Context, principal shared.Principal, id int64, input UpdateInput) (User, error) {
	if err := s.require(ctx, principal, rbac.PermUsersEdit); err != nil {
		return User{}, err
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return User{}, err
	}
	if input.RoleIDs != nil {
		if len(input.RoleIDs) == 0 {
			return User{}, fmt.Errorf("at least one role required: %w", httpx.ErrValidation)
		}
		if err := s.repo.SetRoles(ctx, id, input.RoleIDs); err != nil {
			return User{}, err
		}
	}
	updated, err := s.repo.Update(ctx, id, input.Name, input.Active)
	if err != nil {
		return User{}, err
	}
	s.audit.Record(ctx, shared.AuditLog{
		ActorID:  principal.ID,
		Action:   "user.updated",
		Entity:   "user",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     map[string]any{"active": updated.Active},
	})
	return updated, nil
}

// Exists reports whether an account row is present, active or not.
func (s *Service) Exists(ctx context.Context, userID int64) (bool, error) {
	return s.repo.Exists(ctx, userID)
}

func (s *Service) require(ctx context.Context, principal shared.Principal, tag string) error {
	if rbac.IsAdmin(principal) {
		return nil
	}
	ok, err := s.registry.HasPermission(ctx, principal, tag)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", tag, httpx.ErrForbidden)
	}
	return nil
}
