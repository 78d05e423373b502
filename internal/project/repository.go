package project

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for projects.
// Participants live in the project_participants join table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const projectColumns = `id, name, description, status, stage, approved, creator_id, responsible_id, start_date, end_date, created_at, updated_at`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.Stage, &p.Approved,
		&p.CreatorID, &p.ResponsibleID, &p.StartDate, &p.EndDate, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrProjectNotFound
		}
		return Project{}, err
	}
	return p, nil
}

func (r *Repository) participantsOf(ctx context.Context, projectID uuid.UUID) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM project_participants WHERE project_id = $1 ORDER BY user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create inserts a new project.
func (r *Repository) Create(ctx context.Context, p Project) (Project, error) {
	return scanProject(r.pool.QueryRow(ctx, `INSERT INTO projects
(name, description, status, stage, approved, creator_id, responsible_id, start_date, end_date)
VALUES ($1, $2, $3, $4, false, $5, $6, $7, $8)
RETURNING `+projectColumns,
		p.Name, p.Description, p.Status, p.Stage, p.CreatorID, p.ResponsibleID, p.StartDate, p.EndDate))
}

// Get fetches a project with its participant list.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		return Project{}, err
	}
	p.ParticipantIDs, err = r.participantsOf(ctx, id)
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

// List returns projects matching the filter with the total count, newest
// first. Participant lists are not populated here.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Project, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, filter.Status)
		argPos++
	}
	if filter.Stage != "" {
		conditions = append(conditions, fmt.Sprintf("stage = $%d", argPos))
		args = append(args, filter.Stage)
		argPos++
	}
	if filter.Approved != nil {
		conditions = append(conditions, fmt.Sprintf("approved = $%d", argPos))
		args = append(args, *filter.Approved)
		argPos++
	}
	if filter.MemberID != nil {
		conditions = append(conditions, fmt.Sprintf(
			`(creator_id = $%d OR responsible_id = $%d OR EXISTS (
SELECT 1 FROM project_participants pp WHERE pp.project_id = projects.id AND pp.user_id = $%d))`,
			argPos, argPos, argPos))
		args = append(args, *filter.MemberID)
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
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM projects "+whereClause, args...).Scan(&total); err != nil {
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
	query := fmt.Sprintf(`SELECT %s FROM projects %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		projectColumns, whereClause, argPos, argPos+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.Stage, &p.Approved,
			&p.CreatorID, &p.ResponsibleID, &p.StartDate, &p.EndDate, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Update persists the mutable fields except the approval flag.
func (r *Repository) Update(ctx context.Context, p Project) (Project, error) {
	updated, err := scanProject(r.pool.QueryRow(ctx, `UPDATE projects
SET name = $2, description = $3, status = $4, stage = $5, responsible_id = $6,
    start_date = $7, end_date = $8, updated_at = NOW()
WHERE id = $1
RETURNING `+projectColumns,
		p.ID, p.Name, p.Description, p.Status, p.Stage, p.ResponsibleID, p.StartDate, p.EndDate))
	if err != nil {
		return Project{}, err
	}
	updated.ParticipantIDs = p.ParticipantIDs
	return updated, nil
}

// SetApproved flips the approval gate.
func (r *Repository) SetApproved(ctx context.Context, id uuid.UUID, approved bool) (Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx, `UPDATE projects
SET approved = $2, updated_at = NOW()
WHERE id = $1
RETURNING `+projectColumns, id, approved))
	if err != nil {
		return Project{}, err
	}
	p.ParticipantIDs, err = r.participantsOf(ctx, id)
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

// Delete removes the project row. Participant rows go with it via the
// foreign key cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// AddParticipant assigns a user. Duplicate assignment is a no-op.
func (r *Repository) AddParticipant(ctx context.Context, projectID uuid.UUID, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO project_participants (project_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		projectID, userID)
	return err
}

// RemoveParticipant unassigns a user.
func (r *Repository) RemoveParticipant(ctx context.Context, projectID uuid.UUID, userID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM project_participants WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotParticipant
	}
	return nil
}

// StatusCounts aggregates totals by status and stage.
func (r *Repository) StatusCounts(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByStatus: make(map[string]int),
		ByStage:  make(map[string]int),
	}
	rows, err := r.pool.Query(ctx, `SELECT status, stage, COUNT(*) FROM projects GROUP BY status, stage`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status, stage string
		var count int
		if err := rows.Scan(&status, &stage, &count); err != nil {
			return Stats{}, err
		}
		stats.ByStatus[status] += count
		stats.ByStage[stage] += count
		stats.Total += count
	}
	return stats, rows.Err()
}
