package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for roles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, description, permissions, active, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Permissions,
		&role.Active, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns roles matching the filter, ordered by ID.
func (r *Repository) ListRoles(ctx context.Context, filter ListFilter) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles
WHERE ($1::boolean IS NULL OR active = $1)
  AND ($2 = '' OR name ILIKE '%' || $2 || '%')
  AND ($3 = '' OR $3 = ANY(permissions))
ORDER BY id`, filter.Active, filter.Name, filter.Permission)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Permissions,
			&role.Active, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// GetRoleByName fetches a role by exact name. Uniqueness is case-sensitive.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	created, err := scanRole(r.pool.QueryRow(ctx, `INSERT INTO roles (name, description, permissions, active)
VALUES ($1, $2, $3, $4)
RETURNING `+roleColumns, role.Name, role.Description, role.Permissions, role.Active))
	if err != nil {
		return Role{}, mapUniqueViolation(err)
	}
	return created, nil
}

// UpdateRole updates name, description and permissions.
func (r *Repository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	updated, err := scanRole(r.pool.QueryRow(ctx, `UPDATE roles
SET name = $2, description = $3, permissions = $4, updated_at = NOW()
WHERE id = $1
RETURNING `+roleColumns, role.ID, role.Name, role.Description, role.Permissions))
	if err != nil {
		return Role{}, mapUniqueViolation(err)
	}
	return updated, nil
}

// SetActive flips the soft-delete flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `UPDATE roles
SET active = $2, updated_at = NOW()
WHERE id = $1
RETURNING `+roleColumns, id, active))
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrNameTaken
	}
	return err
}
