package authz

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackhive/backend/internal/models"
)

// Repository implements Store against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an authz repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RoleOf returns the user's role in the organization, or "" if not a member.
func (r *Repository) RoleOf(ctx context.Context, userID, orgID uuid.UUID) (models.Role, error) {
	const q = `SELECT role FROM memberships WHERE user_id = $1 AND organization_id = $2`
	var role models.Role
	err := r.pool.QueryRow(ctx, q, userID, orgID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// ProjectOrg returns the organization owning a project, or uuid.Nil if the
// project does not exist.
func (r *Repository) ProjectOrg(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error) {
	const q = `SELECT organization_id FROM projects WHERE id = $1`
	var orgID uuid.UUID
	err := r.pool.QueryRow(ctx, q, projectID).Scan(&orgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return orgID, nil
}

// IssueOrg returns the organization owning an issue's project, or uuid.Nil
// if the issue does not exist.
func (r *Repository) IssueOrg(ctx context.Context, issueID uuid.UUID) (uuid.UUID, error) {
	const q = `SELECT p.organization_id
		FROM issues i
		INNER JOIN projects p ON p.id = i.project_id
		WHERE i.id = $1`
	var orgID uuid.UUID
	err := r.pool.QueryRow(ctx, q, issueID).Scan(&orgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return orgID, nil
}
