package projects

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackhive/backend/internal/models"
)

// Repository handles project persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a projects repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new project.
func (r *Repository) Create(ctx context.Context, p *models.Project) error {
	const q = `INSERT INTO projects (id, organization_id, name, description)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, p.OrganizationID, p.Name, p.Description).
		Scan(&p.ID, &p.CreatedAt)
}

// GetByID returns a project by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	const q = `SELECT id, organization_id, name, description, created_at
		FROM projects WHERE id = $1`
	var p models.Project
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Description, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Update applies non-nil fields and returns the updated row, or nil when absent.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, name, description *string) (*models.Project, error) {
	const q = `UPDATE projects
		SET name = COALESCE($2, name), description = COALESCE($3, description)
		WHERE id = $1
		RETURNING id, organization_id, name, description, created_at`
	var p models.Project
	err := r.pool.QueryRow(ctx, q, id, name, description).
		Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Description, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes a project; its issues cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return err
}

// ListForUser returns projects in organizations where the user has a
// membership, optionally restricted to one organization. Non-members of an
// organization never see its projects.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) ([]*models.Project, error) {
	const q = `SELECT p.id, p.organization_id, p.name, p.description, p.created_at
		FROM projects p
		INNER JOIN memberships m ON m.organization_id = p.organization_id
		WHERE m.user_id = $1 AND ($2::uuid IS NULL OR p.organization_id = $2)
		ORDER BY p.created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}
