package issues

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackhive/backend/internal/models"
)

// Repository handles issue and attachment persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an issues repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const issueColumns = `id, project_id, title, description, status, priority,
	due_date, assigned_to, created_by, created_at, updated_at`

func scanIssue(row pgx.Row) (*models.Issue, error) {
	var i models.Issue
	err := row.Scan(&i.ID, &i.ProjectID, &i.Title, &i.Description, &i.Status, &i.Priority,
		&i.DueDate, &i.AssignedTo, &i.CreatedBy, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// Create inserts a new issue.
func (r *Repository) Create(ctx context.Context, i *models.Issue) error {
	const q = `INSERT INTO issues (id, project_id, title, description, status, priority, due_date, assigned_to, created_by)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, i.ProjectID, i.Title, i.Description, i.Status, i.Priority,
		i.DueDate, i.AssignedTo, i.CreatedBy).
		Scan(&i.ID, &i.CreatedAt, &i.UpdatedAt)
}

// GetByID returns an issue by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	q := `SELECT ` + issueColumns + ` FROM issues WHERE id = $1`
	return scanIssue(r.pool.QueryRow(ctx, q, id))
}

// UpdateParams are the optional fields of a partial issue update; nil means
// leave unchanged.
type UpdateParams struct {
	Title       *string
	Description *string
	Status      *models.IssueStatus
	Priority    *models.IssuePriority
	DueDate     *time.Time
	AssignedTo  *uuid.UUID
}

// Update applies non-nil fields and returns the updated row, or nil when absent.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*models.Issue, error) {
	q := `UPDATE issues SET
		title = COALESCE($2, title),
		description = COALESCE($3, description),
		status = COALESCE($4, status),
		priority = COALESCE($5, priority),
		due_date = COALESCE($6, due_date),
		assigned_to = COALESCE($7, assigned_to),
		updated_at = NOW()
		WHERE id = $1
		RETURNING ` + issueColumns
	return scanIssue(r.pool.QueryRow(ctx, q, id,
		p.Title, p.Description, p.Status, p.Priority, p.DueDate, p.AssignedTo))
}

// Delete removes an issue; its attachments cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM issues WHERE id = $1`, id)
	return err
}

// Filter narrows and orders the scoped issue listing.
type Filter struct {
	Status     string
	Priority   string
	AssignedTo *uuid.UUID
	DueDate    *time.Time
	Search     string // matches title or description
	Ordering   string // due_date | priority | created_at, "-" prefix for descending
}

// orderColumns whitelists sortable columns.
var orderColumns = map[string]string{
	"due_date":   "i.due_date",
	"priority":   "i.priority",
	"created_at": "i.created_at",
}

// ListForUser returns issues in projects whose organization the user
// belongs to. Non-members of an organization never see its issues; for a
// user with no memberships the result is empty, not an error.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, f Filter) ([]*models.Issue, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT i.id, i.project_id, i.title, i.description, i.status, i.priority,
		i.due_date, i.assigned_to, i.created_by, i.created_at, i.updated_at
		FROM issues i
		INNER JOIN projects p ON p.id = i.project_id
		INNER JOIN memberships m ON m.organization_id = p.organization_id
		WHERE m.user_id = $1`)
	args := []interface{}{userID}

	addArg := func(clause string, v interface{}) {
		args = append(args, v)
		fmt.Fprintf(&sb, " AND "+clause, len(args))
	}
	if f.Status != "" {
		addArg("i.status = $%d", f.Status)
	}
	if f.Priority != "" {
		addArg("i.priority = $%d", f.Priority)
	}
	if f.AssignedTo != nil {
		addArg("i.assigned_to = $%d", *f.AssignedTo)
	}
	if f.DueDate != nil {
		addArg("i.due_date = $%d", *f.DueDate)
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		fmt.Fprintf(&sb, " AND (i.title ILIKE $%d OR i.description ILIKE $%d)", len(args), len(args))
	}

	order, desc := f.Ordering, false
	if strings.HasPrefix(order, "-") {
		order, desc = order[1:], true
	}
	col, ok := orderColumns[order]
	if !ok {
		col, desc = "i.created_at", true
	}
	sb.WriteString(" ORDER BY " + col)
	if desc {
		sb.WriteString(" DESC")
	}

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Issue
	for rows.Next() {
		var i models.Issue
		if err := rows.Scan(&i.ID, &i.ProjectID, &i.Title, &i.Description, &i.Status, &i.Priority,
			&i.DueDate, &i.AssignedTo, &i.CreatedBy, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &i)
	}
	return list, rows.Err()
}

// CreateAttachment inserts an attachment row for an issue.
func (r *Repository) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	const q = `INSERT INTO attachments (id, issue_id, file_key, file_url, content_type, size_bytes, uploaded_by)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id, uploaded_at`
	return r.pool.QueryRow(ctx, q, a.IssueID, a.FileKey, a.FileURL, a.ContentType, a.SizeBytes, a.UploadedBy).
		Scan(&a.ID, &a.UploadedAt)
}

// ListAttachments returns an issue's attachments, newest last.
func (r *Repository) ListAttachments(ctx context.Context, issueID uuid.UUID) ([]models.Attachment, error) {
	const q = `SELECT id, issue_id, file_key, file_url, content_type, size_bytes, uploaded_by, uploaded_at
		FROM attachments WHERE issue_id = $1 ORDER BY uploaded_at ASC`
	rows, err := r.pool.Query(ctx, q, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Attachment
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.IssueID, &a.FileKey, &a.FileURL, &a.ContentType,
			&a.SizeBytes, &a.UploadedBy, &a.UploadedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
