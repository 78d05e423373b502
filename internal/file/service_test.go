package file

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/praxisdesk/praxisdesk/internal/authz"
	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
	"github.com/praxisdesk/praxisdesk/internal/rbac"
	"github.com/praxisdesk/praxisdesk/internal/shared"
)

type memoryFileRepo struct {
	records map[uuid.UUID]Record
	encoded map[uuid.UUID]string
}

func newMemoryFileRepo() *memoryFileRepo {
	return &memoryFileRepo{
		records: make(map[uuid.UUID]Record),
		encoded: make(map[uuid.UUID]string),
	}
}

func (r *memoryFileRepo) Create(ctx context.Context, rec Record, encoded string) (Record, error) {
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()
	r.records[rec.ID] = rec
	r.encoded[rec.ID] = encoded
	return rec, nil
}

func (r *memoryFileRepo) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	rec, ok := r.records[id]
	if !ok {
		return Record{}, ErrFileNotFound
	}
	return rec, nil
}

func (r *memoryFileRepo) GetEncoded(ctx context.Context, id uuid.UUID) (string, error) {
	encoded, ok := r.encoded[id]
	if !ok {
		return "", ErrFileNotFound
	}
	return encoded, nil
}

func (r *memoryFileRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]Record, error) {
	var out []Record
	for _, rec := range r.records {
		if rec.Parent.ProjectID != nil && *rec.Parent.ProjectID == projectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryFileRepo) ListByConsultancy(ctx context.Context, consultancyID uuid.UUID) ([]Record, error) {
	var out []Record
	for _, rec := range r.records {
		if rec.Parent.ConsultancyID != nil && *rec.Parent.ConsultancyID == consultancyID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryFileRepo) UpdateDescription(ctx context.Context, id uuid.UUID, description string) (Record, error) {
	rec, ok := r.records[id]
	if !ok {
		return Record{}, ErrFileNotFound
	}
	rec.Description = description
	r.records[id] = rec
	return rec, nil
}

func (r *memoryFileRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.records[id]; !ok {
		return ErrFileNotFound
	}
	delete(r.records, id)
	delete(r.encoded, id)
	return nil
}

type seedSource struct{}

func (seedSource) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	for _, role := range rbac.SeedRoles() {
		if role.ID == id {
			return role, nil
		}
	}
	return rbac.Role{}, rbac.ErrRoleNotFound
}

func newTestService() (*Service, *memoryFileRepo) {
	repo := newMemoryFileRepo()
	engine := authz.NewEngine(rbac.NewRegistry(seedSource{}))
	return NewService(repo, engine, slog.Default()), repo
}

func developer(id int64) shared.Principal {
	return shared.Principal{ID: id, Active: true, Roles: []shared.RoleRef{{ID: rbac.RoleDeveloper}}}
}

func admin() shared.Principal {
	return shared.Principal{ID: 1, Active: true, Roles: []shared.RoleRef{{ID: rbac.RoleAdministrator}}}
}

func projectParent() ParentRef {
	id := uuid.New()
	return ParentRef{ProjectID: &id}
}

func consultancyParent() ParentRef {
	id := uuid.New()
	return ParentRef{ConsultancyID: &id}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	payload := []byte("%PDF-1.7 fake body with\x00binary bytes")

	rec, err := svc.Upload(ctx, projectParent(), Upload{
		OriginalName: "report.pdf",
		MimeType:     "application/pdf",
		Description:  "final report",
		Bytes:        payload,
	}, 7)
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), rec.SizeBytes)
	require.Equal(t, int64(7), rec.UploaderID)

	content, err := svc.Download(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, content.Bytes))
	require.Equal(t, "report.pdf", content.Record.OriginalName)
	require.Equal(t, "application/pdf", content.Record.MimeType)
	require.Equal(t, int64(len(payload)), content.Record.SizeBytes)
}

func TestUploadRejectsDisallowedMime(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	_, err := svc.Upload(ctx, projectParent(), Upload{
		OriginalName: "malware.exe",
		MimeType:     "application/x-msdownload",
		Bytes:        []byte("MZ"),
	}, 7)
	require.ErrorIs(t, err, ErrUnsupportedType)
	require.Empty(t, repo.records)
}

func TestUploadConsultancyNarrowerAllowList(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	up := Upload{OriginalName: "data.zip", MimeType: "application/zip", Bytes: []byte("PK")}

	// Archives are fine on projects, rejected on consultancies.
	_, err := svc.Upload(ctx, projectParent(), up, 7)
	require.NoError(t, err)

	_, err = svc.Upload(ctx, consultancyParent(), up, 7)
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestUploadRejectsOversize(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	_, err := svc.Upload(ctx, consultancyParent(), Upload{
		OriginalName: "big.pdf",
		MimeType:     "application/pdf",
		Bytes:        make([]byte, MaxConsultancyFileBytes+1),
	}, 7)
	require.ErrorIs(t, err, ErrTooLarge)
	require.ErrorIs(t, err, httpx.ErrPayloadTooLarge)
	require.Empty(t, repo.records)
}

func TestUploadRejectsEmpty(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Upload(context.Background(), projectParent(), Upload{
		OriginalName: "empty.txt",
		MimeType:     "text/plain",
	}, 7)
	require.ErrorIs(t, err, ErrEmptyUpload)
}

func TestUploadRequiresExactlyOneParent(t *testing.T) {
	svc, _ := newTestService()
	up := Upload{OriginalName: "a.txt", MimeType: "text/plain", Bytes: []byte("x")}

	_, err := svc.Upload(context.Background(), ParentRef{}, up, 7)
	require.ErrorIs(t, err, httpx.ErrValidation)

	pid, cid := uuid.New(), uuid.New()
	_, err = svc.Upload(context.Background(), ParentRef{ProjectID: &pid, ConsultancyID: &cid}, up, 7)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestDeleteIsUploaderOnly(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	rec, err := svc.Upload(ctx, projectParent(), Upload{
		OriginalName: "a.txt", MimeType: "text/plain", Bytes: []byte("x"),
	}, 7)
	require.NoError(t, err)

	err = svc.Delete(ctx, developer(8), rec.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)
	require.Len(t, repo.records, 1)

	require.NoError(t, svc.Delete(ctx, developer(7), rec.ID))
	require.Empty(t, repo.records)
}

func TestDeleteAdminBypass(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	rec, err := svc.Upload(ctx, projectParent(), Upload{
		OriginalName: "a.txt", MimeType: "text/plain", Bytes: []byte("x"),
	}, 7)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, admin(), rec.ID))
	require.Empty(t, repo.records)
}

func TestUpdateDescriptionIsUploaderOnly(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	rec, err := svc.Upload(ctx, projectParent(), Upload{
		OriginalName: "a.txt", MimeType: "text/plain", Bytes: []byte("x"),
	}, 7)
	require.NoError(t, err)

	_, err = svc.UpdateDescription(ctx, developer(8), rec.ID, "sneaky")
	require.ErrorIs(t, err, httpx.ErrForbidden)

	updated, err := svc.UpdateDescription(ctx, developer(7), rec.ID, "mine")
	require.NoError(t, err)
	require.Equal(t, "mine", updated.Description)
}
