package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/praxisdesk/praxisdesk/internal/authz"
	"github.com/praxisdesk/praxisdesk/internal/file"
	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
	"github.com/praxisdesk/praxisdesk/internal/rbac"
	"github.com/praxisdesk/praxisdesk/internal/shared"
)

type memoryProjectRepo struct {
	items map[uuid.UUID]Project
}

func newMemoryProjectRepo() *memoryProjectRepo {
	return &memoryProjectRepo{items: make(map[uuid.UUID]Project)}
}

func (r *memoryProjectRepo) Create(ctx context.Context, p Project) (Project, error) {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.items[p.ID] = p
	return p, nil
}

func (r *memoryProjectRepo) Get(ctx context.Context, id uuid.UUID) (Project, error) {
	p, ok := r.items[id]
	if !ok {
		return Project{}, ErrProjectNotFound
	}
	return p, nil
}

func (r *memoryProjectRepo) List(ctx context.Context, filter ListFilter) ([]Project, int, error) {
	var out []Project
	for _, p := range r.items {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.MemberID != nil && !isMember(p, *filter.MemberID) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func isMember(p Project, userID int64) bool {
	if p.CreatorID == userID || p.ResponsibleID == userID {
		return true
	}
	for _, id := range p.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (r *memoryProjectRepo) Update(ctx context.Context, p Project) (Project, error) {
	if _, ok := r.items[p.ID]; !ok {
		return Project{}, ErrProjectNotFound
	}
	p.UpdatedAt = time.Now()
	r.items[p.ID] = p
	return p, nil
}

func (r *memoryProjectRepo) SetApproved(ctx context.Context, id uuid.UUID, approved bool) (Project, error) {
	p, ok := r.items[id]
	if !ok {
		return Project{}, ErrProjectNotFound
	}
	p.Approved = approved
	r.items[id] = p
	return p, nil
}

func (r *memoryProjectRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.items[id]; !ok {
		return ErrProjectNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *memoryProjectRepo) AddParticipant(ctx context.Context, projectID uuid.UUID, userID int64) error {
	p, ok := r.items[projectID]
	if !ok {
		return ErrProjectNotFound
	}
	if isMember(p, userID) {
		return nil
	}
	p.ParticipantIDs = append(p.ParticipantIDs, userID)
	r.items[projectID] = p
	return nil
}

func (r *memoryProjectRepo) RemoveParticipant(ctx context.Context, projectID uuid.UUID, userID int64) error {
	p, ok := r.items[projectID]
	if !ok {
		return ErrProjectNotFound
	}
	for i, id := range p.ParticipantIDs {
		if id == userID {
			p.ParticipantIDs = append(p.ParticipantIDs[:i], p.ParticipantIDs[i+1:]...)
			r.items[projectID] = p
			return nil
		}
	}
	return ErrNotParticipant
}

func (r *memoryProjectRepo) StatusCounts(ctx context.Context) (Stats, error) {
	stats := Stats{ByStatus: make(map[string]int), ByStage: make(map[string]int)}
	for _, p := range r.items {
		stats.Total++
		stats.ByStatus[string(p.Status)]++
		stats.ByStage[string(p.Stage)]++
	}
	return stats, nil
}

// fakeFiles implements FilePort in memory with per-file removal failure
// injection for the cascade tests.
type fakeFiles struct {
	records    map[uuid.UUID]file.Record
	failRemove map[uuid.UUID]bool
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{
		records:    make(map[uuid.UUID]file.Record),
		failRemove: make(map[uuid.UUID]bool),
	}
}

func (f *fakeFiles) Upload(ctx context.Context, parent file.ParentRef, up file.Upload, uploaderID int64) (file.Record, error) {
	if err := parent.Validate(); err != nil {
		return file.Record{}, err
	}
	rec := file.Record{
		ID:           uuid.New(),
		OriginalName: up.OriginalName,
		MimeType:     up.MimeType,
		SizeBytes:    int64(len(up.Bytes)),
		Description:  up.Description,
		UploaderID:   uploaderID,
		Parent:       parent,
	}
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeFiles) Get(ctx context.Context, id uuid.UUID) (file.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return file.Record{}, file.ErrFileNotFound
	}
	return rec, nil
}

func (f *fakeFiles) ListByProject(ctx context.Context, projectID uuid.UUID) ([]file.Record, error) {
	var out []file.Record
	for _, rec := range f.records {
		if rec.Parent.ProjectID != nil && *rec.Parent.ProjectID == projectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeFiles) Download(ctx context.Context, id uuid.UUID) (file.Content, error) {
	rec, ok := f.records[id]
	if !ok {
		return file.Content{}, file.ErrFileNotFound
	}
	return file.Content{Record: rec}, nil
}

func (f *fakeFiles) UpdateDescription(ctx context.Context, principal shared.Principal, id uuid.UUID, description string) (file.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return file.Record{}, file.ErrFileNotFound
	}
	rec.Description = description
	f.records[id] = rec
	return rec, nil
}

func (f *fakeFiles) Delete(ctx context.Context, principal shared.Principal, id uuid.UUID) error {
	if _, ok := f.records[id]; !ok {
		return file.ErrFileNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeFiles) Remove(ctx context.Context, id uuid.UUID) error {
	if f.failRemove[id] {
		return errors.New("storage unavailable")
	}
	if _, ok := f.records[id]; !ok {
		return file.ErrFileNotFound
	}
	delete(f.records, id)
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

type staticUsers struct {
	known map[int64]bool
}

func (u staticUsers) Exists(ctx context.Context, userID int64) (bool, error) {
	return u.known[userID], nil
}

type fixture struct {
	svc   *Service
	repo  *memoryProjectRepo
	files *fakeFiles
}

func newFixture() *fixture {
	repo := newMemoryProjectRepo()
	files := newFakeFiles()
	registry := rbac.NewRegistry(seedSource{})
	engine := authz.NewEngine(registry)
	stats := NewStatsCache(repo, nil, slog.Default())
	users := staticUsers{known: map[int64]bool{1: true, 2: true, 3: true, 4: true}}

	svc := NewService(repo, files, users, engine, registry, stats, nil, slog.Default())
	return &fixture{svc: svc, repo: repo, files: files}
}

func developer(id int64) shared.Principal {
	return shared.Principal{ID: id, Active: true, Roles: []shared.RoleRef{{ID: rbac.RoleDeveloper}}}
}

func client(id int64) shared.Principal {
	return shared.Principal{ID: id, Active: true, Roles: []shared.RoleRef{{ID: rbac.RoleClient}}}
}

func admin() shared.Principal {
	return shared.Principal{ID: 1, Active: true, Roles: []shared.RoleRef{{ID: rbac.RoleAdministrator}}}
}

func (f *fixture) mustCreate(t *testing.T, actor shared.Principal) Project {
	t.Helper()
	p, err := f.svc.Create(context.Background(), actor, CreateInput{Name: "Platform migration"})
	require.NoError(t, err)
	return p
}

func (f *fixture) attach(t *testing.T, projectID uuid.UUID, uploaderID int64) file.Record {
	t.Helper()
	rec, err := f.files.Upload(context.Background(), file.ParentRef{ProjectID: &projectID}, file.Upload{
		OriginalName: "doc.pdf", MimeType: "application/pdf", Bytes: []byte("x"),
	}, uploaderID)
	require.NoError(t, err)
	return rec
}

func TestCreateDefaults(t *testing.T) {
	f := newFixture()

	p := f.mustCreate(t, developer(2))
	require.Equal(t, StatusInProgress, p.Status)
	require.Equal(t, StagePlanning, p.Stage)
	require.False(t, p.Approved)
	require.Equal(t, int64(2), p.CreatorID)
	require.Equal(t, int64(2), p.ResponsibleID, "responsible defaults to the actor")
}

func TestCreateRequiresPermission(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), client(10), CreateInput{Name: "x"})
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestCreateResponsibleMustExist(t *testing.T) {
	f := newFixture()

	unknown := int64(99)
	_, err := f.svc.Create(context.Background(), developer(2), CreateInput{Name: "x", ResponsibleID: &unknown})
	require.ErrorIs(t, err, ErrResponsibleNotFound)

	other := int64(3)
	p, err := f.svc.Create(context.Background(), developer(2), CreateInput{Name: "x", ResponsibleID: &other})
	require.NoError(t, err)
	require.Equal(t, other, p.ResponsibleID)
	require.Equal(t, int64(2), p.CreatorID)
}

func TestListScopedToMembership(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	mine := f.mustCreate(t, developer(2))
	f.mustCreate(t, developer(3))

	items, total, err := f.svc.List(ctx, developer(2), ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, mine.ID, items[0].ID)

	_, total, err = f.svc.List(ctx, admin(), ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
}

func TestGetVisibility(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p := f.mustCreate(t, developer(2))

	// An existing but foreign project answers 403, not 404.
	_, err := f.svc.Get(ctx, developer(3), p.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	got, err := f.svc.Get(ctx, developer(2), p.ID)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)

	_, err = f.svc.Get(ctx, admin(), p.ID)
	require.NoError(t, err)
}

func TestUpdateValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.mustCreate(t, developer(2))

	bad := Status("archived")
	_, err := f.svc.Update(ctx, developer(2), p.ID, UpdateInput{Status: &bad})
	require.ErrorIs(t, err, ErrInvalidStatus)

	badStage := Stage("shipping")
	_, err = f.svc.Update(ctx, developer(2), p.ID, UpdateInput{Stage: &badStage})
	require.ErrorIs(t, err, ErrInvalidStage)

	paused, stage := StatusPaused, StageTesting
	updated, err := f.svc.Update(ctx, developer(2), p.ID, UpdateInput{Status: &paused, Stage: &stage})
	require.NoError(t, err)
	require.Equal(t, StatusPaused, updated.Status)
	require.Equal(t, StageTesting, updated.Stage)
}

func TestUpdateIsMemberOnly(t *testing.T) {
	f := newFixture()
	p := f.mustCreate(t, developer(2))

	name := "renamed"
	_, err := f.svc.Update(context.Background(), developer(3), p.ID, UpdateInput{Name: &name})
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestSetApprovedAdminOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.mustCreate(t, developer(2))

	// Not even the creator may approve.
	_, err := f.svc.SetApproved(ctx, developer(2), p.ID, true)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	approved, err := f.svc.SetApproved(ctx, admin(), p.ID, true)
	require.NoError(t, err)
	require.True(t, approved.Approved)
	require.Equal(t, StatusInProgress, approved.Status, "approval leaves status untouched")
	require.Equal(t, StagePlanning, approved.Stage)

	revoked, err := f.svc.SetApproved(ctx, admin(), p.ID, false)
	require.NoError(t, err)
	require.False(t, revoked.Approved)
}

func TestDeleteIsCreatorOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	other := int64(3)
	p, err := f.svc.Create(ctx, developer(2), CreateInput{Name: "x", ResponsibleID: &other})
	require.NoError(t, err)
	_, err = f.svc.AddParticipant(ctx, developer(2), p.ID, 4)
	require.NoError(t, err)

	for _, actor := range []shared.Principal{developer(3), developer(4), developer(9)} {
		_, err := f.svc.Delete(ctx, actor, p.ID)
		require.ErrorIs(t, err, httpx.ErrForbidden, "user %d may not delete", actor.ID)
	}

	result, err := f.svc.Delete(ctx, developer(2), p.ID)
	require.NoError(t, err)
	require.Empty(t, result.Failures)
	require.Empty(t, f.repo.items)
}

func TestDeleteCascadesAttachments(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		t.Run(fmt.Sprintf("%d_attachments", n), func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			p := f.mustCreate(t, developer(2))
			for i := 0; i < n; i++ {
				f.attach(t, p.ID, 2)
			}

			result, err := f.svc.Delete(ctx, developer(2), p.ID)
			require.NoError(t, err)
			require.Equal(t, n, result.Deleted)
			require.Empty(t, result.Failures)
			require.Empty(t, f.files.records, "no orphaned attachments may remain")
			require.Empty(t, f.repo.items)
		})
	}
}

func TestDeleteCascadeContinuesOnError(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.mustCreate(t, developer(2))

	var failing []uuid.UUID
	for i := 0; i < 5; i++ {
		rec := f.attach(t, p.ID, 2)
		if i == 1 || i == 3 {
			f.files.failRemove[rec.ID] = true
			failing = append(failing, rec.ID)
		}
	}

	result, err := f.svc.Delete(ctx, developer(2), p.ID)
	require.NoError(t, err)
	require.Equal(t, 3, result.Deleted)
	require.Len(t, result.Failures, 2)
	for _, failure := range result.Failures {
		require.Contains(t, failing, failure.FileID)
		require.Error(t, failure.Err)
	}

	// The project row is removed even though two attachments survived.
	require.Empty(t, f.repo.items)
	require.Len(t, f.files.records, 2)
}

func TestParticipants(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.mustCreate(t, developer(2))

	_, err := f.svc.AddParticipant(ctx, developer(2), p.ID, 99)
	require.ErrorIs(t, err, ErrParticipantNotFound)

	withMember, err := f.svc.AddParticipant(ctx, developer(2), p.ID, 3)
	require.NoError(t, err)
	require.Contains(t, withMember.ParticipantIDs, int64(3))

	// Participants gain edit rights and may manage the roster themselves.
	_, err = f.svc.AddParticipant(ctx, developer(3), p.ID, 4)
	require.NoError(t, err)

	_, err = f.svc.RemoveParticipant(ctx, developer(2), p.ID, 9)
	require.ErrorIs(t, err, ErrNotParticipant)

	without, err := f.svc.RemoveParticipant(ctx, developer(2), p.ID, 3)
	require.NoError(t, err)
	require.NotContains(t, without.ParticipantIDs, int64(3))
}

func TestStats(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.mustCreate(t, developer(2))
	p := f.mustCreate(t, developer(2))
	paused := StatusPaused
	_, err := f.svc.Update(ctx, developer(2), p.ID, UpdateInput{Status: &paused})
	require.NoError(t, err)

	// Clients hold no project view permission at all.
	_, err = f.svc.Stats(ctx, client(10))
	require.ErrorIs(t, err, httpx.ErrForbidden)

	stats, err := f.svc.Stats(ctx, developer(2))
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.ByStatus[string(StatusInProgress)])
	require.Equal(t, 1, stats.ByStatus[string(StatusPaused)])
	require.Equal(t, 2, stats.ByStage[string(StagePlanning)])
}

func TestDownloadFileChecksParent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p1 := f.mustCreate(t, developer(2))
	p2 := f.mustCreate(t, developer(2))
	rec := f.attach(t, p2.ID, 2)

	// A real file reached through the wrong project answers 404.
	_, err := f.svc.DownloadFile(ctx, developer(2), p1.ID, rec.ID)
	require.ErrorIs(t, err, file.ErrFileNotFound)

	content, err := f.svc.DownloadFile(ctx, developer(2), p2.ID, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ID, content.Record.ID)
}

func TestUpdateFileDescriptionChecksParent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p1 := f.mustCreate(t, developer(2))
	p2 := f.mustCreate(t, developer(2))
	rec := f.attach(t, p2.ID, 2)

	// The write must not happen when the file is reached through the
	// wrong project.
	_, err := f.svc.UpdateFileDescription(ctx, developer(2), p1.ID, rec.ID, "sneaky")
	require.ErrorIs(t, err, file.ErrFileNotFound)
	require.Empty(t, f.files.records[rec.ID].Description)

	updated, err := f.svc.UpdateFileDescription(ctx, developer(2), p2.ID, rec.ID, "final report")
	require.NoError(t, err)
	require.Equal(t, "final report", updated.Description)
}

func TestDeleteFileChecksParent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p := f.mustCreate(t, developer(2))
	consultancyID := uuid.New()
	foreign, err := f.files.Upload(ctx, file.ParentRef{ConsultancyID: &consultancyID}, file.Upload{
		OriginalName: "brief.pdf", MimeType: "application/pdf", Bytes: []byte("x"),
	}, 2)
	require.NoError(t, err)

	err = f.svc.DeleteFile(ctx, developer(2), p.ID, foreign.ID)
	require.ErrorIs(t, err, file.ErrFileNotFound)
	require.Contains(t, f.files.records, foreign.ID, "a foreign file must survive the attempt")

	mine := f.attach(t, p.ID, 2)
	require.NoError(t, f.svc.DeleteFile(ctx, developer(2), p.ID, mine.ID))
	require.NotContains(t, f.files.records, mine.ID)
}

func TestUploadFileIsMemberGated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.mustCreate(t, developer(2))
	up := file.Upload{OriginalName: "a.txt", MimeType: "text/plain", Bytes: []byte("x")}

	_, err := f.svc.UploadFile(ctx, developer(3), p.ID, up)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	rec, err := f.svc.UploadFile(ctx, developer(2), p.ID, up)
	require.NoError(t, err)
	require.Equal(t, int64(2), rec.UploaderID)
	require.Equal(t, p.ID, *rec.Parent.ProjectID)
}
