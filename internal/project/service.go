package project

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/praxisdesk/praxisdesk/internal/authz"
	"github.com/praxisdesk/praxisdesk/internal/file"
	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
	"github.com/praxisdesk/praxisdesk/internal/rbac"
	"github.com/praxisdesk/praxisdesk/internal/shared"
)

// RepositoryPort defines persistence for projects.
type RepositoryPort interface {
	Create(ctx context.Context, p Project) (Project, error)
	Get(ctx context.Context, id uuid.UUID) (Project, error)
	List(ctx context.Context, filter ListFilter) ([]Project, int, error)
	Update(ctx context.Context, p Project) (Project, error)
	SetApproved(ctx context.Context, id uuid.UUID, approved bool) (Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AddParticipant(ctx context.Context, projectID uuid.UUID, userID int64) error
	RemoveParticipant(ctx context.Context, projectID uuid.UUID, userID int64) error
	StatusCounts(ctx context.Context) (Stats, error)
}

// FilePort is the slice of the file service used for project attachments.
type FilePort interface {
	Upload(ctx context.Context, parent file.ParentRef, up file.Upload, uploaderID int64) (file.Record, error)
	Get(ctx context.Context, id uuid.UUID) (file.Record, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]file.Record, error)
	Download(ctx context.Context, id uuid.UUID) (file.Content, error)
	UpdateDescription(ctx context.Context, principal shared.Principal, id uuid.UUID, description string) (file.Record, error)
	Delete(ctx context.Context, principal shared.Principal, id uuid.UUID) error
	Remove(ctx context.Context, id uuid.UUID) error
}

// UserDirectory checks that responsible and participant assignments point
// at real users.
type UserDirectory interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}

// ListFilter narrows project listings. MemberID restricts to projects the
// user creates, is responsible for or participates in.
type ListFilter struct {
	Status   Status
	Stage    Stage
	Approved *bool
	MemberID *int64
	Page     int
	PerPage  int
}

// CreateInput is the project creation payload.
type CreateInput struct {
	Name          string
	Description   string
	ResponsibleID *int64
	StartDate     *time.Time
	EndDate       *time.Time
}

// UpdateInput patches project fields. Nil pointers leave the field
// untouched; the approved flag has its own admin-only operation.
type UpdateInput struct {
	Name          *string
	Description   *string
	Status        *Status
	Stage         *Stage
	ResponsibleID *int64
	StartDate     *time.Time
	EndDate       *time.Time
}

// Service orchestrates project business rules.
type Service struct {
	repo     RepositoryPort
	files    FilePort
	users    UserDirectory
	engine   *authz.Engine
	registry *rbac.Registry
	stats    *StatsCache
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService constructs a project Service.
func NewService(repo RepositoryPort, files FilePort, users UserDirectory, engine *authz.Engine, registry *rbac.Registry, stats *StatsCache, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		files:    files,
		users:    users,
		engine:   engine,
		registry: registry,
		stats:    stats,
		audit:    audit,
		logger:   logger,
	}
}

// Create opens a new project. The actor becomes creator; responsible
// defaults to the actor when unset.
func (s *Service) Create(ctx context.Context, principal shared.Principal, input CreateInput) (Project, error) {
	allowed, err := s.hasAny(ctx, principal, rbac.PermProjectsCreate)
	if err != nil {
		return Project{}, err
	}
	if !allowed {
		return Project{}, fmt.Errorf("project create: %w", httpx.ErrForbidden)
	}
	if input.Name == "" {
		return Project{}, fmt.Errorf("project name required: %w", httpx.ErrValidation)
	}
	responsible := principal.ID
	if input.ResponsibleID != nil {
		exists, err := s.users.Exists(ctx, *input.ResponsibleID)
		if err != nil {
			return Project{}, err
		}
		if !exists {
			return Project{}, ErrResponsibleNotFound
		}
		responsible = *input.ResponsibleID
	}
	created, err := s.repo.Create(ctx, Project{
		Name:          input.Name,
		Description:   input.Description,
		Status:        StatusInProgress,
		Stage:         StagePlanning,
		CreatorID:     principal.ID,
		ResponsibleID: responsible,
		StartDate:     input.StartDate,
		EndDate:       input.EndDate,
	})
	if err != nil {
		return Project{}, err
	}
	s.stats.Invalidate(ctx)
	return created, nil
}

// List returns projects visible to the principal. Admins and view_all
// holders see everything; everyone else is scoped to membership.
func (s *Service) List(ctx context.Context, principal shared.Principal, filter ListFilter) ([]Project, int, error) {
	broad, err := s.hasAny(ctx, principal, rbac.PermProjectsViewAll)
	if err != nil {
		return nil, 0, err
	}
	if !broad {
		id := principal.ID
		filter.MemberID = &id
	}
	return s.repo.List(ctx, filter)
}

// Get fetches one project. Membership is required unless the principal is
// an admin or holds view_all; an existing but invisible project answers
// 403, not 404.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id uuid.UUID) (Project, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if err := s.authorizeView(ctx, principal, p); err != nil {
		return Project{}, err
	}
	return p, nil
}

// Update patches project fields. Membership grants edit; the approved
// flag is not reachable here.
func (s *Service) Update(ctx context.Context, principal shared.Principal, id uuid.UUID, input UpdateInput) (Project, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if err := s.authorize(ctx, principal, authz.ActionEdit, p); err != nil {
		return Project{}, err
	}
	if input.Name != nil {
		if *input.Name == "" {
			return Project{}, fmt.Errorf("project name required: %w", httpx.ErrValidation)
		}
		p.Name = *input.Name
	}
	if input.Description != nil {
		p.Description = *input.Description
	}
	if input.Status != nil {
		if !ValidStatus(*input.Status) {
			return Project{}, fmt.Errorf("%q: %w", *input.Status, ErrInvalidStatus)
		}
		p.Status = *input.Status
	}
	if input.Stage != nil {
		if !ValidStage(*input.Stage) {
			return Project{}, fmt.Errorf("%q: %w", *input.Stage, ErrInvalidStage)
		}
		p.Stage = *input.Stage
	}
	if input.ResponsibleID != nil {
		exists, err := s.users.Exists(ctx, *input.ResponsibleID)
		if err != nil {
			return Project{}, err
		}
		if !exists {
			return Project{}, ErrResponsibleNotFound
		}
		p.ResponsibleID = *input.ResponsibleID
	}
	if input.StartDate != nil {
		p.StartDate = input.StartDate
	}
	if input.EndDate != nil {
		p.EndDate = input.EndDate
	}
	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		return Project{}, err
	}
	s.stats.Invalidate(ctx)
	return updated, nil
}

// SetApproved toggles the admin-only approval gate. Status and stage are
// untouched.
func (s *Service) SetApproved(ctx context.Context, principal shared.Principal, id uuid.UUID, approved bool) (Project, error) {
	if !rbac.IsAdmin(principal) {
		return Project{}, fmt.Errorf("project approval: %w", httpx.ErrForbidden)
	}
	updated, err := s.repo.SetApproved(ctx, id, approved)
	if err != nil {
		return Project{}, err
	}
	s.audit.Record(ctx, shared.AuditLog{
		ActorID:  principal.ID,
		Action:   "project.approval_changed",
		Entity:   "project",
		EntityID: id.String(),
		Meta:     map[string]any{"approved": approved},
	})
	return updated, nil
}

// Delete removes the project and cascades over its attachments. The
// cascade is continue-on-error: each failure is collected, the remaining
// attachments are still attempted and the project row is removed
// regardless.
func (s *Service) Delete(ctx context.Context, principal shared.Principal, id uuid.UUID) (CascadeResult, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return CascadeResult{}, err
	}
	if err := s.authorize(ctx, principal, authz.ActionDelete, p); err != nil {
		return CascadeResult{}, err
	}

	var result CascadeResult
	recs, err := s.files.ListByProject(ctx, id)
	if err != nil {
		return CascadeResult{}, fmt.Errorf("list attachments for cascade: %w", err)
	}
	for _, rec := range recs {
		if err := s.files.Remove(ctx, rec.ID); err != nil {
			s.logger.Error("cascade attachment delete failed",
				slog.String("project_id", id.String()),
				slog.String("file_id", rec.ID.String()),
				slog.Any("error", err))
			result.Failures = append(result.Failures, CascadeFailure{FileID: rec.ID, Err: err})
			continue
		}
		result.Deleted++
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return result, err
	}
	s.audit.Record(ctx, shared.AuditLog{
		ActorID:  principal.ID,
		Action:   "project.deleted",
		Entity:   "project",
		EntityID: id.String(),
		Meta:     map[string]any{"files_deleted": result.Deleted, "files_failed": len(result.Failures)},
	})
	s.stats.Invalidate(ctx)
	return result, nil
}

// AddParticipant assigns a user to the project. Re-adding an existing
// participant is a no-op.
func (s *Service) AddParticipant(ctx context.Context, principal shared.Principal, id uuid.UUID, userID int64) (Project, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if err := s.authorize(ctx, principal, authz.ActionEdit, p); err != nil {
		return Project{}, err
	}
	exists, err := s.users.Exists(ctx, userID)
	if err != nil {
		return Project{}, err
	}
	if !exists {
		return Project{}, ErrParticipantNotFound
	}
	if err := s.repo.AddParticipant(ctx, id, userID); err != nil {
		return Project{}, err
	}
	return s.repo.Get(ctx, id)
}

// RemoveParticipant unassigns a user from the project.
func (s *Service) RemoveParticipant(ctx context.Context, principal shared.Principal, id uuid.UUID, userID int64) (Project, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if err := s.authorize(ctx, principal, authz.ActionEdit, p); err != nil {
		return Project{}, err
	}
	if err := s.repo.RemoveParticipant(ctx, id, userID); err != nil {
		return Project{}, err
	}
	return s.repo.Get(ctx, id)
}

// Stats returns aggregate counts by status and stage, served through the
// cache.
func (s *Service) Stats(ctx context.Context, principal shared.Principal) (Stats, error) {
	broad, err := s.hasAny(ctx, principal, rbac.PermProjectsViewAll, rbac.PermProjectsViewOwn)
	if err != nil {
		return Stats{}, err
	}
	if !broad {
		return Stats{}, fmt.Errorf("project stats: %w", httpx.ErrForbidden)
	}
	return s.stats.Get(ctx)
}

// UploadFile attaches a file to the project. Membership grants upload.
func (s *Service) UploadFile(ctx context.Context, principal shared.Principal, id uuid.UUID, up file.Upload) (file.Record, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return file.Record{}, err
	}
	if err := s.authorize(ctx, principal, authz.ActionUpload, p); err != nil {
		return file.Record{}, err
	}
	return s.files.Upload(ctx, file.ParentRef{ProjectID: &p.ID}, up, principal.ID)
}

// Files lists the project's attachments, gated like Get.
func (s *Service) Files(ctx context.Context, principal shared.Principal, id uuid.UUID) ([]file.Record, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, principal, p); err != nil {
		return nil, err
	}
	return s.files.ListByProject(ctx, p.ID)
}

// DownloadFile returns one attachment's decoded content, gated like Get.
func (s *Service) DownloadFile(ctx context.Context, principal shared.Principal, id, fileID uuid.UUID) (file.Content, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return file.Content{}, err
	}
	if err := s.authorizeView(ctx, principal, p); err != nil {
		return file.Content{}, err
	}
	content, err := s.files.Download(ctx, fileID)
	if err != nil {
		return file.Content{}, err
	}
	if content.Record.Parent.ProjectID == nil || *content.Record.Parent.ProjectID != p.ID {
		return file.Content{}, file.ErrFileNotFound
	}
	return content, nil
}

// UpdateFileDescription edits an attachment's description. Uploader-only
// on top of project visibility. The parent check runs before the write so
// a file addressed through the wrong project is never touched.
func (s *Service) UpdateFileDescription(ctx context.Context, principal shared.Principal, id, fileID uuid.UUID, description string) (file.Record, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return file.Record{}, err
	}
	if err := s.authorizeView(ctx, principal, p); err != nil {
		return file.Record{}, err
	}
	rec, err := s.files.Get(ctx, fileID)
	if err != nil {
		return file.Record{}, err
	}
	if rec.Parent.ProjectID == nil || *rec.Parent.ProjectID != p.ID {
		return file.Record{}, file.ErrFileNotFound
	}
	return s.files.UpdateDescription(ctx, principal, fileID, description)
}

// DeleteFile removes one attachment. Uploader-only on top of project
// visibility, and only for files the addressed project actually owns.
func (s *Service) DeleteFile(ctx context.Context, principal shared.Principal, id, fileID uuid.UUID) error {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorizeView(ctx, principal, p); err != nil {
		return err
	}
	rec, err := s.files.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if rec.Parent.ProjectID == nil || *rec.Parent.ProjectID != p.ID {
		return file.ErrFileNotFound
	}
	return s.files.Delete(ctx, principal, fileID)
}

func (s *Service) authorize(ctx context.Context, principal shared.Principal, action authz.Action, p Project) error {
	decision, err := s.engine.Authorize(ctx, principal, action, authz.Project{
		CreatorID:      p.CreatorID,
		ResponsibleID:  p.ResponsibleID,
		ParticipantIDs: p.ParticipantIDs,
	})
	if err != nil {
		return err
	}
	return decision.Err()
}

// authorizeView admits members via the engine and non-members holding
// view_all.
func (s *Service) authorizeView(ctx context.Context, principal shared.Principal, p Project) error {
	if err := s.authorize(ctx, principal, authz.ActionView, p); err == nil {
		return nil
	}
	broad, err := s.hasAny(ctx, principal, rbac.PermProjectsViewAll)
	if err != nil {
		return err
	}
	if broad {
		return nil
	}
	return fmt.Errorf("project not visible: %w", httpx.ErrForbidden)
}

func (s *Service) hasAny(ctx context.Context, principal shared.Principal, tags ...string) (bool, error) {
	if rbac.IsAdmin(principal) {
		return true, nil
	}
	for _, tag := range tags {
		ok, err := s.registry.HasPermission(ctx, principal, tag)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
