package file

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for attachments.
// The content column stores base64 text; metadata queries never touch it.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const fileColumns = `id, original_name, mime_type, size_bytes, description, uploader_id, project_id, consultancy_id, created_at`

func scanFile(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.OriginalName, &rec.MimeType, &rec.SizeBytes, &rec.Description,
		&rec.UploaderID, &rec.Parent.ProjectID, &rec.Parent.ConsultancyID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrFileNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// Create inserts the record with its encoded content.
func (r *Repository) Create(ctx context.Context, rec Record, encoded string) (Record, error) {
	return scanFile(r.pool.QueryRow(ctx, `INSERT INTO files
(original_name, mime_type, size_bytes, description, uploader_id, project_id, consultancy_id, content)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+fileColumns,
		rec.OriginalName, rec.MimeType, rec.SizeBytes, rec.Description,
		rec.UploaderID, rec.Parent.ProjectID, rec.Parent.ConsultancyID, encoded))
}

// Get fetches metadata by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	return scanFile(r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
}

// GetEncoded fetches the stored base64 content.
func (r *Repository) GetEncoded(ctx context.Context, id uuid.UUID) (string, error) {
	var encoded string
	err := r.pool.QueryRow(ctx, `SELECT content FROM files WHERE id = $1`, id).Scan(&encoded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrFileNotFound
		}
		return "", err
	}
	return encoded, nil
}

func (r *Repository) list(ctx context.Context, query string, parentID uuid.UUID) ([]Record, error) {
	rows, err := r.pool.Query(ctx, query, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.OriginalName, &rec.MimeType, &rec.SizeBytes, &rec.Description,
			&rec.UploaderID, &rec.Parent.ProjectID, &rec.Parent.ConsultancyID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ListByProject returns metadata for a project's attachments, newest first.
func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]Record, error) {
	return r.list(ctx, `SELECT `+fileColumns+` FROM files WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
}

// ListByConsultancy returns metadata for a consultancy's attachments, newest first.
func (r *Repository) ListByConsultancy(ctx context.Context, consultancyID uuid.UUID) ([]Record, error) {
	return r.list(ctx, `SELECT `+fileColumns+` FROM files WHERE consultancy_id = $1 ORDER BY created_at DESC`, consultancyID)
}

// UpdateDescription edits the description field.
func (r *Repository) UpdateDescription(ctx context.Context, id uuid.UUID, description string) (Record, error) {
	return scanFile(r.pool.QueryRow(ctx, `UPDATE files SET description = $2 WHERE id = $1
RETURNING `+fileColumns, id, description))
}

// Delete removes the record (content travels with the row).
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}
