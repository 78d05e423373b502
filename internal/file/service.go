package file

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/praxisdesk/praxisdesk/internal/authz"
	"github.com/praxisdesk/praxisdesk/internal/shared"
)

// RepositoryPort defines persistence for attachment records.
type RepositoryPort interface {
	Create(ctx context.Context, rec Record, encoded string) (Record, error)
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	GetEncoded(ctx context.Context, id uuid.UUID) (string, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]Record, error)
	ListByConsultancy(ctx context.Context, consultancyID uuid.UUID) ([]Record, error)
	UpdateDescription(ctx context.Context, id uuid.UUID, description string) (Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service implements attachment operations. Parent-level access (who may
// see or add files on a project/consultancy) is the parent service's
// responsibility; this service enforces per-file ownership and the upload
// constraints.
type Service struct {
	repo   RepositoryPort
	engine *authz.Engine
	logger *slog.Logger
}

// NewService constructs a file Service.
func NewService(repo RepositoryPort, engine *authz.Engine, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, logger: logger}
}

// Upload validates constraints, encodes and persists an attachment.
// Nothing is written when a constraint fails.
func (s *Service) Upload(ctx context.Context, parent ParentRef, up Upload, uploaderID int64) (Record, error) {
	if err := parent.Validate(); err != nil {
		return Record{}, err
	}
	if len(up.Bytes) == 0 {
		return Record{}, ErrEmptyUpload
	}
	kind := parent.Kind()
	if !AllowedMimeType(kind, up.MimeType) {
		return Record{}, fmt.Errorf("%q: %w", up.MimeType, ErrUnsupportedType)
	}
	ceiling := SizeCeiling(kind)
	size := int64(len(up.Bytes))
	if size > ceiling {
		return Record{}, fmt.Errorf("%d bytes over %d limit: %w", size, ceiling, ErrTooLarge)
	}

	rec := Record{
		OriginalName: up.OriginalName,
		MimeType:     up.MimeType,
		SizeBytes:    size,
		Description:  up.Description,
		UploaderID:   uploaderID,
		Parent:       parent,
	}
	return s.repo.Create(ctx, rec, base64.StdEncoding.EncodeToString(up.Bytes))
}

// Get returns attachment metadata.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	return s.repo.Get(ctx, id)
}

// Download decodes the stored content. The caller has already authorized
// access to the parent resource.
func (s *Service) Download(ctx context.Context, id uuid.UUID) (Content, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Content{}, err
	}
	encoded, err := s.repo.GetEncoded(ctx, id)
	if err != nil {
		return Content{}, err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Content{}, fmt.Errorf("decode attachment %s: %w", id, err)
	}
	return Content{Record: rec, Bytes: raw}, nil
}

// ListByProject returns attachment metadata for a project.
func (s *Service) ListByProject(ctx context.Context, projectID uuid.UUID) ([]Record, error) {
	return s.repo.ListByProject(ctx, projectID)
}

// ListByConsultancy returns attachment metadata for a consultancy.
func (s *Service) ListByConsultancy(ctx context.Context, consultancyID uuid.UUID) ([]Record, error) {
	return s.repo.ListByConsultancy(ctx, consultancyID)
}

// UpdateDescription edits the only mutable field. Uploader-only, with the
// usual admin bypass; parent-resource roles grant nothing here.
func (s *Service) UpdateDescription(ctx context.Context, principal shared.Principal, id uuid.UUID, description string) (Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	decision, err := s.engine.Authorize(ctx, principal, authz.ActionEdit, authz.File{UploaderID: rec.UploaderID})
	if err != nil {
		return Record{}, err
	}
	if err := decision.Err(); err != nil {
		return Record{}, err
	}
	return s.repo.UpdateDescription(ctx, id, description)
}

// Delete removes one attachment. Uploader-only, admin bypass applies.
func (s *Service) Delete(ctx context.Context, principal shared.Principal, id uuid.UUID) error {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	decision, err := s.engine.Authorize(ctx, principal, authz.ActionDelete, authz.File{UploaderID: rec.UploaderID})
	if err != nil {
		return err
	}
	if err := decision.Err(); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// Remove deletes an attachment record without an ownership check. It exists
// for the project cascade, which has already authorized the parent deletion.
func (s *Service) Remove(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
