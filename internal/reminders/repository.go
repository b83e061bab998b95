package reminders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackhive/backend/internal/models"
)

// OverdueIssue is an issue past its due date along with its assignee's email.
type OverdueIssue struct {
	ID       uuid.UUID
	Title    string
	DueDate  time.Time
	Assignee string
}

// Repository reads overdue issues and records reminder emails.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reminders repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListOverdue returns issues whose due date has passed, that are not done,
// and that have an assignee to notify.
func (r *Repository) ListOverdue(ctx context.Context, today time.Time) ([]OverdueIssue, error) {
	const q = `SELECT i.id, i.title, i.due_date, u.email
		FROM issues i
		INNER JOIN users u ON u.id = i.assigned_to
		WHERE i.due_date < $1
		  AND i.status <> 'done'
		  AND i.assigned_to IS NOT NULL
		ORDER BY i.due_date ASC`
	rows, err := r.pool.Query(ctx, q, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []OverdueIssue
	for rows.Next() {
		var o OverdueIssue
		if err := rows.Scan(&o.ID, &o.Title, &o.DueDate, &o.Assignee); err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// LogEmail records the outcome of a reminder email delivery attempt.
func (r *Repository) LogEmail(ctx context.Context, log *models.EmailLog) error {
	const q = `INSERT INTO email_logs (id, issue_id, recipient, subject, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, log.IssueID, log.Recipient, log.Subject, log.Status).
		Scan(&log.ID, &log.CreatedAt)
}
