package consultancy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/praxisdesk/praxisdesk/internal/authz"
	"github.com/praxisdesk/praxisdesk/internal/file"
	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
	"github.com/praxisdesk/praxisdesk/internal/rbac"
	"github.com/praxisdesk/praxisdesk/internal/shared"
)

// RepositoryPort defines persistence for consultancies.
type RepositoryPort interface {
	Create(ctx context.Context, c Consultancy) (Consultancy, error)
	Get(ctx context.Context, id uuid.UUID) (Consultancy, error)
	List(ctx context.Context, filter ListFilter) ([]Consultancy, int, error)
	Update(ctx context.Context, c Consultancy) (Consultancy, error)
	HasRecentByEmail(ctx context.Context, email string, since time.Time) (bool, error)
}

// FilePort is the slice of the file service used for attachments.
type FilePort interface {
	Upload(ctx context.Context, parent file.ParentRef, up file.Upload, uploaderID int64) (file.Record, error)
	ListByConsultancy(ctx context.Context, consultancyID uuid.UUID) ([]file.Record, error)
	Download(ctx context.Context, id uuid.UUID) (file.Content, error)
}

// UserDirectory checks that a responsible assignment points at a real user.
type UserDirectory interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}

// Notifier dispatches lifecycle emails. Implementations are best effort:
// they log failures and never return them.
type Notifier interface {
	Received(ctx context.Context, c Consultancy, attachments []file.Record)
	StatusChanged(ctx context.Context, c Consultancy, oldStatus Status, actor string)
}

// ListFilter narrows consultancy listings.
type ListFilter struct {
	Status        Status
	Email         string
	Company       string
	ResponsibleID *int64
	Page          int
	PerPage       int
}

// CreateInput is the submission payload.
type CreateInput struct {
	Name         string
	Email        string
	Phone        string
	Company      string
	Description  string
	ConsentGiven bool
	Attachments  []file.Upload
}

// UpdateInput patches staff-editable fields. Nil pointers leave the field
// untouched.
type UpdateInput struct {
	Observations  *string
	ResponsibleID *int64
	ScheduledAt   *time.Time
	Status        *Status
}

// Service orchestrates consultancy business rules.
type Service struct {
	repo     RepositoryPort
	files    FilePort
	users    UserDirectory
	notifier Notifier
	engine   *authz.Engine
	registry *rbac.Registry
	audit    *shared.AuditLogger
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a consultancy Service.
func NewService(repo RepositoryPort, files FilePort, users UserDirectory, notifier Notifier, engine *authz.Engine, registry *rbac.Registry, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		files:    files,
		users:    users,
		notifier: notifier,
		engine:   engine,
		registry: registry,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Used by tests to simulate the
// duplicate-submission window.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create submits a new consultancy request. The duplicate guard is a
// read-then-write check: concurrent submissions inside the same instant may
// both pass, which is accepted for a soft throttle.
func (s *Service) Create(ctx context.Context, principal shared.Principal, input CreateInput) (Consultancy, []file.Record, error) {
	decision, err := s.engine.Authorize(ctx, principal, authz.ActionCreate, authz.Consultancy{})
	if err != nil {
		return Consultancy{}, nil, err
	}
	if err := decision.Err(); err != nil {
		return Consultancy{}, nil, err
	}
	if !input.ConsentGiven {
		return Consultancy{}, nil, ErrConsentRequired
	}
	if input.Name == "" || input.Email == "" || input.Description == "" {
		return Consultancy{}, nil, fmt.Errorf("name, email and description required: %w", httpx.ErrValidation)
	}
	if len(input.Attachments) > file.MaxConsultancyAttachments {
		return Consultancy{}, nil, fmt.Errorf("%d files, limit %d: %w",
			len(input.Attachments), file.MaxConsultancyAttachments, ErrTooManyAttachments)
	}
	// Validate every attachment before anything is persisted so a rejected
	// file never leaves a partial submission behind.
	for _, up := range input.Attachments {
		if !file.AllowedMimeType(file.ParentConsultancy, up.MimeType) {
			return Consultancy{}, nil, fmt.Errorf("%q: %w", up.MimeType, file.ErrUnsupportedType)
		}
		if int64(len(up.Bytes)) > file.SizeCeiling(file.ParentConsultancy) {
			return Consultancy{}, nil, fmt.Errorf("%q: %w", up.OriginalName, file.ErrTooLarge)
		}
	}

	email := normalizeEmail(input.Email)
	recent, err := s.repo.HasRecentByEmail(ctx, email, s.now().Add(-DuplicateWindow))
	if err != nil {
		return Consultancy{}, nil, err
	}
	if recent {
		return Consultancy{}, nil, ErrDuplicateSubmission
	}

	created, err := s.repo.Create(ctx, Consultancy{
		Name:         input.Name,
		Email:        email,
		Phone:        input.Phone,
		Company:      input.Company,
		Description:  input.Description,
		ConsentGiven: true,
		Status:       StatusPending,
	})
	if err != nil {
		return Consultancy{}, nil, err
	}

	attachments := make([]file.Record, 0, len(input.Attachments))
	for _, up := range input.Attachments {
		rec, err := s.files.Upload(ctx, file.ParentRef{ConsultancyID: &created.ID}, up, principal.ID)
		if err != nil {
			return Consultancy{}, nil, err
		}
		attachments = append(attachments, rec)
	}

	s.notifier.Received(ctx, created, attachments)
	return created, attachments, nil
}

// List returns consultancies visible to the principal. Holders of the
// view/view_all permissions see everything; view_own is scoped to the
// principal's own email.
func (s *Service) List(ctx context.Context, principal shared.Principal, filter ListFilter) ([]Consultancy, int, error) {
	scoped, err := s.scopeFilter(ctx, principal, &filter)
	if err != nil {
		return nil, 0, err
	}
	if !scoped {
		return nil, 0, fmt.Errorf("consultancy list: %w", httpx.ErrForbidden)
	}
	return s.repo.List(ctx, filter)
}

// Get fetches one consultancy. A principal limited to view_own may only
// see requests submitted under their own email; an existing but invisible
// resource deliberately answers 403, not 404.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id uuid.UUID) (Consultancy, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Consultancy{}, err
	}
	if err := s.authorizeRead(ctx, principal, c); err != nil {
		return Consultancy{}, err
	}
	return c, nil
}

// Update patches observations, responsible, schedule and optionally status.
// A status change rides the same transition rules as Transition.
func (s *Service) Update(ctx context.Context, principal shared.Principal, id uuid.UUID, input UpdateInput) (Consultancy, error) {
	decision, err := s.engine.Authorize(ctx, principal, authz.ActionEdit, authz.Consultancy{})
	if err != nil {
		return Consultancy{}, err
	}
	if err := decision.Err(); err != nil {
		return Consultancy{}, err
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Consultancy{}, err
	}
	if input.ResponsibleID != nil {
		exists, err := s.users.Exists(ctx, *input.ResponsibleID)
		if err != nil {
			return Consultancy{}, err
		}
		if !exists {
			return Consultancy{}, ErrResponsibleNotFound
		}
		c.ResponsibleID = input.ResponsibleID
	}
	if input.Observations != nil {
		c.Observations = *input.Observations
	}
	if input.ScheduledAt != nil {
		c.ScheduledAt = input.ScheduledAt
	}

	oldStatus := c.Status
	if input.Status != nil && *input.Status != oldStatus {
		if err := checkTransition(oldStatus, *input.Status); err != nil {
			return Consultancy{}, err
		}
		c.Status = *input.Status
	}

	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		return Consultancy{}, err
	}
	if updated.Status != oldStatus {
		s.afterTransition(ctx, principal, updated, oldStatus)
	}
	return updated, nil
}

// Transition moves the consultancy to a new status. Equal status is a
// no-op: nothing is persisted and no notification fires.
func (s *Service) Transition(ctx context.Context, principal shared.Principal, id uuid.UUID, newStatus Status) (Consultancy, error) {
	decision, err := s.engine.Authorize(ctx, principal, authz.ActionTransition, authz.Consultancy{})
	if err != nil {
		return Consultancy{}, err
	}
	if err := decision.Err(); err != nil {
		return Consultancy{}, err
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Consultancy{}, err
	}
	if c.Status == newStatus {
		return c, nil
	}
	if err := checkTransition(c.Status, newStatus); err != nil {
		return Consultancy{}, err
	}
	oldStatus := c.Status
	c.Status = newStatus
	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		return Consultancy{}, err
	}
	s.afterTransition(ctx, principal, updated, oldStatus)
	return updated, nil
}

// Cancel marks the consultancy cancelled. Rows are never removed;
// cancellation is a terminal status.
func (s *Service) Cancel(ctx context.Context, principal shared.Principal, id uuid.UUID) (Consultancy, error) {
	return s.Transition(ctx, principal, id, StatusCancelled)
}

// Attachments lists the consultancy's files, gated like Get.
func (s *Service) Attachments(ctx context.Context, principal shared.Principal, id uuid.UUID) ([]file.Record, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, principal, c); err != nil {
		return nil, err
	}
	return s.files.ListByConsultancy(ctx, c.ID)
}

// DownloadAttachment returns one attachment's decoded content, gated like Get.
func (s *Service) DownloadAttachment(ctx context.Context, principal shared.Principal, id, fileID uuid.UUID) (file.Content, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return file.Content{}, err
	}
	if err := s.authorizeRead(ctx, principal, c); err != nil {
		return file.Content{}, err
	}
	content, err := s.files.Download(ctx, fileID)
	if err != nil {
		return file.Content{}, err
	}
	if content.Record.Parent.ConsultancyID == nil || *content.Record.Parent.ConsultancyID != c.ID {
		return file.Content{}, file.ErrFileNotFound
	}
	return content, nil
}

func (s *Service) authorizeRead(ctx context.Context, principal shared.Principal, c Consultancy) error {
	decision, err := s.engine.Authorize(ctx, principal, authz.ActionView, authz.Consultancy{})
	if err != nil {
		return err
	}
	if err := decision.Err(); err != nil {
		return err
	}
	if rbac.IsAdmin(principal) {
		return nil
	}
	broad, err := s.hasAny(ctx, principal, rbac.PermConsultationsView, rbac.PermConsultationsViewAll)
	if err != nil {
		return err
	}
	if broad {
		return nil
	}
	if normalizeEmail(principal.Email) != c.Email {
		return fmt.Errorf("consultancy not visible: %w", httpx.ErrForbidden)
	}
	return nil
}

// scopeFilter narrows the filter for view_own principals. Returns false
// when the principal holds no view-class permission at all.
func (s *Service) scopeFilter(ctx context.Context, principal shared.Principal, filter *ListFilter) (bool, error) {
	if rbac.IsAdmin(principal) {
		return true, nil
	}
	broad, err := s.hasAny(ctx, principal, rbac.PermConsultationsView, rbac.PermConsultationsViewAll)
	if err != nil {
		return false, err
	}
	if broad {
		return true, nil
	}
	own, err := s.hasAny(ctx, principal, rbac.PermConsultationsViewOwn)
	if err != nil {
		return false, err
	}
	if own {
		filter.Email = normalizeEmail(principal.Email)
		return true, nil
	}
	return false, nil
}

func (s *Service) hasAny(ctx context.Context, principal shared.Principal, tags ...string) (bool, error) {
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

func (s *Service) afterTransition(ctx context.Context, actor shared.Principal, c Consultancy, oldStatus Status) {
	s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   "consultancy.status_changed",
		Entity:   "consultancy",
		EntityID: c.ID.String(),
		Meta:     map[string]any{"from": string(oldStatus), "to": string(c.Status)},
	})
	actorName := actor.Name
	if actorName == "" {
		actorName = actor.Email
	}
	// The status change is the durable fact; delivery is best effort.
	s.notifier.StatusChanged(ctx, c, oldStatus, actorName)
}

// checkTransition validates a genuine (non-equal) status change.
// Transitions out of a terminal status are rejected: the upstream behavior
// left this unguarded, here the terminal states are final.
func checkTransition(from, to Status) error {
	if !ValidStatus(to) {
		return fmt.Errorf("%q: %w", to, ErrInvalidStatus)
	}
	if from.Terminal() {
		return fmt.Errorf("cannot leave %q: %w", from, ErrTerminalStatus)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
