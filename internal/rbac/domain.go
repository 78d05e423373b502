// Package rbac implements the role/permission registry: the static
// permission allow-list, the seed roles and the admin-managed role CRUD.
package rbac

import "time"

// Seed role identifiers. These three rows are created at install time and
// are never hard-deleted.
const (
	RoleAdministrator int64 = 1
	RoleDeveloper     int64 = 2
	RoleClient        int64 = 3
)

// Permission tags. Tags take the form resource:action and assignment is
// restricted to this fixed allow-list.
const (
	PermUsersCreate  = "users:create"
	PermUsersEdit    = "users:edit"
	PermUsersDelete  = "users:delete"
	PermUsersViewAll = "users:view_all"

	PermRolesManage = "roles:manage"

	PermProjectsCreate  = "projects:create"
	PermProjectsEdit    = "projects:edit"
	PermProjectsViewOwn = "projects:view_own"
	PermProjectsViewAll = "projects:view_all"

	PermConsultationsCreate  = "consultations:create"
	PermConsultationsUpdate  = "consultations:update"
	PermConsultationsView    = "consultations:view"
	PermConsultationsViewOwn = "consultations:view_own"
	PermConsultationsViewAll = "consultations:view_all"

	PermFilesUpload = "files:upload"

	PermReportsGenerate = "reports:generate"
	PermReportsExport   = "reports:export"

	PermSystemConfig = "system:config"
	PermProfileEdit  = "profile:edit"
)

// AllPermissions lists every assignable permission tag.
func AllPermissions() []string {
	return []string{
		PermUsersCreate, PermUsersEdit, PermUsersDelete, PermUsersViewAll,
		PermRolesManage,
		PermProjectsCreate, PermProjectsEdit, PermProjectsViewOwn, PermProjectsViewAll,
		PermConsultationsCreate, PermConsultationsUpdate, PermConsultationsView,
		PermConsultationsViewOwn, PermConsultationsViewAll,
		PermFilesUpload,
		PermReportsGenerate, PermReportsExport,
		PermSystemConfig, PermProfileEdit,
	}
}

// IsKnownPermission reports whether the tag is in the allow-list.
func IsKnownPermission(tag string) bool {
	for _, known := range AllPermissions() {
		if known == tag {
			return true
		}
	}
	return false
}

// Role represents a named permission bundle.
type Role struct {
	ID          int64
	Name        string
	Description string
	Permissions []string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SeedRoles returns the immutable initial role set.
func SeedRoles() []Role {
	return []Role{
		{
			ID:          RoleAdministrator,
			Name:        "Administrator",
			Description: "System administrator",
			Permissions: []string{
				PermUsersCreate, PermUsersEdit, PermUsersDelete, PermUsersViewAll,
				PermRolesManage, PermProjectsViewAll, PermConsultationsViewAll,
				PermReportsGenerate, PermSystemConfig,
			},
			Active: true,
		},
		{
			ID:          RoleDeveloper,
			Name:        "Developer",
			Description: "Manages projects and consultancy work",
			Permissions: []string{
				PermProjectsCreate, PermProjectsEdit, PermProjectsViewOwn,
				PermConsultationsUpdate, PermConsultationsView,
				PermFilesUpload, PermReportsExport,
			},
			Active: true,
		},
		{
			ID:          RoleClient,
			Name:        "Client",
			Description: "Submits and follows own consultancy requests",
			Permissions: []string{
				PermConsultationsCreate, PermConsultationsViewOwn,
				PermFilesUpload, PermProfileEdit,
			},
			Active: true,
		},
	}
}
