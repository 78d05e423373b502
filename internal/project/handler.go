package project

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/praxisdesk/praxisdesk/internal/file"
	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
	"github.com/praxisdesk/praxisdesk/internal/shared"
)

const multipartMemoryLimit = 16 << 20

// Handler wires HTTP endpoints for projects.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers project routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/stats", h.stats)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Patch("/{id}/approve", h.approve)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/participants", h.addParticipant)
	r.Delete("/{id}/participants/{userID}", h.removeParticipant)
	r.Post("/{id}/files", h.uploadFile)
	r.Get("/{id}/files", h.files)
	r.Get("/{id}/files/{fileID}/download", h.downloadFile)
	r.Put("/{id}/files/{fileID}", h.updateFile)
	r.Delete("/{id}/files/{fileID}", h.deleteFile)
}

type projectResponse struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status"`
	Stage          string     `json:"stage"`
	Approved       bool       `json:"approved"`
	CreatorID      int64      `json:"creator_id"`
	ResponsibleID  int64      `json:"responsible_id"`
	ParticipantIDs []int64    `json:"participant_ids"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toProjectResponse(p Project) projectResponse {
	participants := p.ParticipantIDs
	if participants == nil {
		participants = []int64{}
	}
	return projectResponse{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Status:         string(p.Status),
		Stage:          string(p.Stage),
		Approved:       p.Approved,
		CreatorID:      p.CreatorID,
		ResponsibleID:  p.ResponsibleID,
		ParticipantIDs: participants,
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

type fileResponse struct {
	ID           uuid.UUID `json:"id"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	Description  string    `json:"description,omitempty"`
	UploaderID   int64     `json:"uploader_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func toFileResponse(rec file.Record) fileResponse {
	return fileResponse{
		ID:           rec.ID,
		OriginalName: rec.OriginalName,
		MimeType:     rec.MimeType,
		SizeBytes:    rec.SizeBytes,
		Description:  rec.Description,
		UploaderID:   rec.UploaderID,
		CreatedAt:    rec.CreatedAt,
	}
}

func principalOr401(w http.ResponseWriter, r *http.Request) (shared.Principal, bool) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return shared.Principal{}, false
	}
	return principal, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return uuid.Nil, false
	}
	return id, true
}

type createRequest struct {
	Name          string     `json:"name" validate:"required,max=255"`
	Description   string     `json:"description" validate:"max=4000"`
	ResponsibleID *int64     `json:"responsible_id"`
	StartDate     *time.Time `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), principal, CreateInput{
		Name:          req.Name,
		Description:   req.Description,
		ResponsibleID: req.ResponsibleID,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProjectResponse(created))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := ListFilter{
		Status: Status(q.Get("status")),
		Stage:  Stage(q.Get("stage")),
	}
	if filter.Status != "" && !ValidStatus(filter.Status) {
		httpx.RespondError(w, ErrInvalidStatus)
		return
	}
	if filter.Stage != "" && !ValidStage(filter.Stage) {
		httpx.RespondError(w, ErrInvalidStage)
		return
	}
	if raw := q.Get("approved"); raw != "" {
		approved := raw == "true"
		filter.Approved = &approved
	}
	if raw := q.Get("page"); raw != "" {
		filter.Page, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("per_page"); raw != "" {
		filter.PerPage, _ = strconv.Atoi(raw)
	}

	items, total, err := h.service.List(r.Context(), principal, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]projectResponse, len(items))
	for i, p := range items {
		out[i] = toProjectResponse(p)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": out, "total": total})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	stats, err := h.service.Stats(r.Context(), principal)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProjectResponse(p))
}

type updateRequest struct {
	Name          *string    `json:"name" validate:"omitempty,max=255"`
	Description   *string    `json:"description" validate:"omitempty,max=4000"`
	Status        *string    `json:"status"`
	Stage         *string    `json:"stage"`
	ResponsibleID *int64     `json:"responsible_id"`
	StartDate     *time.Time `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := UpdateInput{
		Name:          req.Name,
		Description:   req.Description,
		ResponsibleID: req.ResponsibleID,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
	}
	if req.Status != nil {
		status := Status(*req.Status)
		input.Status = &status
	}
	if req.Stage != nil {
		stage := Stage(*req.Stage)
		input.Stage = &stage
	}
	updated, err := h.service.Update(r.Context(), principal, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProjectResponse(updated))
}

type approveRequest struct {
	Approved bool `json:"approved"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req approveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	updated, err := h.service.SetApproved(r.Context(), principal, id, req.Approved)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProjectResponse(updated))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.service.Delete(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	failures := make([]map[string]string, len(result.Failures))
	for i, f := range result.Failures {
		failures[i] = map[string]string{"file_id": f.FileID.String(), "error": f.Err.Error()}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"files_deleted": result.Deleted,
		"files_failed":  failures,
	})
}

type participantRequest struct {
	UserID int64 `json:"user_id" validate:"required"`
}

func (h *Handler) addParticipant(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req participantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.AddParticipant(r.Context(), principal, id, req.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProjectResponse(updated))
}

func (h *Handler) removeParticipant(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	updated, err := h.service.RemoveParticipant(r.Context(), principal, id, userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProjectResponse(updated))
}

func (h *Handler) uploadFile(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart form expected")
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "file field required")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		h.logger.Error("read upload", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrDependency)
		return
	}
	rec, err := h.service.UploadFile(r.Context(), principal, id, file.Upload{
		OriginalName: hdr.Filename,
		MimeType:     hdr.Header.Get("Content-Type"),
		Description:  r.PostFormValue("description"),
		Bytes:        data,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toFileResponse(rec))
}

func (h *Handler) files(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	recs, err := h.service.Files(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]fileResponse, len(recs))
	for i, rec := range recs {
		out[i] = toFileResponse(rec)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) downloadFile(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	fileID, ok := pathUUID(w, r, "fileID")
	if !ok {
		return
	}
	content, err := h.service.DownloadFile(r.Context(), principal, id, fileID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", content.Record.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", content.Record.OriginalName))
	w.Header().Set("Content-Length", strconv.FormatInt(int64(len(content.Bytes)), 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content.Bytes)
}

type fileUpdateRequest struct {
	Description string `json:"description" validate:"max=2000"`
}

func (h *Handler) updateFile(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	fileID, ok := pathUUID(w, r, "fileID")
	if !ok {
		return
	}
	var req fileUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rec, err := h.service.UpdateFileDescription(r.Context(), principal, id, fileID, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFileResponse(rec))
}

func (h *Handler) deleteFile(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	fileID, ok := pathUUID(w, r, "fileID")
	if !ok {
		return
	}
	if err := h.service.DeleteFile(r.Context(), principal, id, fileID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
