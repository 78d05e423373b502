package consultancy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for consultancies.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const consultancyColumns = `id, name, email, phone, company, description, consent_given, status, responsible_id, observations, scheduled_at, created_at, updated_at`

func scanConsultancy(row pgx.Row) (Consultancy, error) {
	var c Consultancy
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Company, &c.Description,
		&c.ConsentGiven, &c.Status, &c.ResponsibleID, &c.Observations,
		&c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Consultancy{}, ErrConsultancyNotFound
		}
		return Consultancy{}, err
	}
	return c, nil
}

// Create inserts a new consultancy.
func (r *Repository) Create(ctx context.Context, c Consultancy) (Consultancy, error) {
	return scanConsultancy(r.pool.QueryRow(ctx, `INSERT INTO consultancies
(name, email, phone, company, description, consent_given, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+consultancyColumns,
		c.Name, c.Email, c.Phone, c.Company, c.Description, c.ConsentGiven, c.Status))
}

// Get fetches a consultancy by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Consultancy, error) {
	return scanConsultancy(r.pool.QueryRow(ctx, `SELECT `+consultancyColumns+` FROM consultancies WHERE id = $1`, id))
}

// List returns consultancies matching the filter with the total count,
// newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Consultancy, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, filter.Status)
		argPos++
	}
	if filter.Email != "" {
		conditions = append(conditions, fmt.Sprintf("email = $%d", argPos))
		args = append(args, filter.Email)
		argPos++
	}
	if filter.Company != "" {
		conditions = append(conditions, fmt.Sprintf("company ILIKE $%d", argPos))
		args = append(args, "%"+filter.Company+"%")
		argPos++
	}
	if filter.ResponsibleID != nil {
		conditions = append(conditions, fmt.Sprintf("responsible_id = $%d", argPos))
		args = append(args, *filter.ResponsibleID)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			whereClause += " AND " + conditions[i]
		}
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM consultancies "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM consultancies %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		consultancyColumns, whereClause, argPos, argPos+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Consultancy
	for rows.Next() {
		var c Consultancy
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Company, &c.Description,
			&c.ConsentGiven, &c.Status, &c.ResponsibleID, &c.Observations,
			&c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Update persists the mutable fields.
func (r *Repository) Update(ctx context.Context, c Consultancy) (Consultancy, error) {
	return scanConsultancy(r.pool.QueryRow(ctx, `UPDATE consultancies
SET status = $2, responsible_id = $3, observations = $4, scheduled_at = $5, updated_at = NOW()
WHERE id = $1
RETURNING `+consultancyColumns,
		c.ID, c.Status, c.ResponsibleID, c.Observations, c.ScheduledAt))
}

// HasRecentByEmail reports whether the email submitted a request at or
// after the given instant.
func (r *Repository) HasRecentByEmail(ctx context.Context, email string, since time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM consultancies WHERE email = $1 AND created_at >= $2)`,
		email, since).Scan(&exists)
	return exists, err
}
