package consultancy

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
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

// multipartMemoryLimit bounds how much of the form is buffered in memory;
// the remainder spills to temp files.
const multipartMemoryLimit = 16 << 20

// Handler wires HTTP endpoints for consultancy requests.
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

// MountRoutes registers consultancy routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Patch("/{id}/status", h.transition)
	r.Delete("/{id}", h.cancel)
	r.Get("/{id}/files", h.attachments)
	r.Get("/{id}/files/{fileID}/download", h.download)
}

type consultancyResponse struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone,omitempty"`
	Company       string     `json:"company,omitempty"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	ResponsibleID *int64     `json:"responsible_id,omitempty"`
	Observations  string     `json:"observations,omitempty"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toConsultancyResponse(c Consultancy) consultancyResponse {
	return consultancyResponse{
		ID:            c.ID,
		Name:          c.Name,
		Email:         c.Email,
		Phone:         c.Phone,
		Company:       c.Company,
		Description:   c.Description,
		Status:        string(c.Status),
		ResponsibleID: c.ResponsibleID,
		Observations:  c.Observations,
		ScheduledAt:   c.ScheduledAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

type attachmentResponse struct {
	ID           uuid.UUID `json:"id"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	Description  string    `json:"description,omitempty"`
	UploaderID   int64     `json:"uploader_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func toAttachmentResponses(recs []file.Record) []attachmentResponse {
	out := make([]attachmentResponse, len(recs))
	for i, rec := range recs {
		out[i] = attachmentResponse{
			ID:           rec.ID,
			OriginalName: rec.OriginalName,
			MimeType:     rec.MimeType,
			SizeBytes:    rec.SizeBytes,
			Description:  rec.Description,
			UploaderID:   rec.UploaderID,
			CreatedAt:    rec.CreatedAt,
		}
	}
	return out
}

func principalOr401(w http.ResponseWriter, r *http.Request) (shared.Principal, bool) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return shared.Principal{}, false
	}
	return principal, true
}

type createForm struct {
	Name        string `validate:"required,max=255"`
	Email       string `validate:"required,email"`
	Phone       string `validate:"max=40"`
	Company     string `validate:"max=255"`
	Description string `validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart form expected")
		return
	}
	form := createForm{
		Name:        r.PostFormValue("name"),
		Email:       r.PostFormValue("email"),
		Phone:       r.PostFormValue("phone"),
		Company:     r.PostFormValue("company"),
		Description: r.PostFormValue("description"),
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{
		Name:         form.Name,
		Email:        form.Email,
		Phone:        form.Phone,
		Company:      form.Company,
		Description:  form.Description,
		ConsentGiven: r.PostFormValue("consent_given") == "true",
	}
	if r.MultipartForm != nil {
		uploads, err := readUploads(r.MultipartForm.File["attachments"])
		if err != nil {
			h.logger.Error("read attachments", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		input.Attachments = uploads
	}

	created, attachments, err := h.service.Create(r.Context(), principal, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"consultancy": toConsultancyResponse(created),
		"attachments": toAttachmentResponses(attachments),
	})
}

func readUploads(headers []*multipart.FileHeader) ([]file.Upload, error) {
	var uploads []file.Upload
	for _, hdr := range headers {
		f, err := hdr.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %q: %w", hdr.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %q: %w", hdr.Filename, err)
		}
		uploads = append(uploads, file.Upload{
			OriginalName: hdr.Filename,
			MimeType:     hdr.Header.Get("Content-Type"),
			Bytes:        data,
		})
	}
	return uploads, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := ListFilter{
		Status:  Status(q.Get("status")),
		Email:   q.Get("email"),
		Company: q.Get("company"),
	}
	if raw := q.Get("responsible_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
		filter.ResponsibleID = &id
	}
	if raw := q.Get("page"); raw != "" {
		filter.Page, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("per_page"); raw != "" {
		filter.PerPage, _ = strconv.Atoi(raw)
	}
	if filter.Status != "" && !ValidStatus(filter.Status) {
		httpx.RespondError(w, ErrInvalidStatus)
		return
	}

	items, total, err := h.service.List(r.Context(), principal, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]consultancyResponse, len(items))
	for i, c := range items {
		out[i] = toConsultancyResponse(c)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": out, "total": total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	c, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toConsultancyResponse(c))
}

type updateRequest struct {
	Observations  *string    `json:"observations" validate:"omitempty,max=2000"`
	ResponsibleID *int64     `json:"responsible_id"`
	ScheduledAt   *time.Time `json:"scheduled_at"`
	Status        *string    `json:"status"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
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
		Observations:  req.Observations,
		ResponsibleID: req.ResponsibleID,
		ScheduledAt:   req.ScheduledAt,
	}
	if req.Status != nil {
		status := Status(*req.Status)
		input.Status = &status
	}
	updated, err := h.service.Update(r.Context(), principal, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toConsultancyResponse(updated))
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.Transition(r.Context(), principal, id, Status(req.Status))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toConsultancyResponse(updated))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	cancelled, err := h.service.Cancel(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toConsultancyResponse(cancelled))
}

func (h *Handler) attachments(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	recs, err := h.service.Attachments(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAttachmentResponses(recs))
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	fileID, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	content, err := h.service.DownloadAttachment(r.Context(), principal, id, fileID)
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
