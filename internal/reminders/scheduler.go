package reminders

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trackhive/backend/pkg/queue"
)

// OverdueLister is the read side the scheduler needs; satisfied by *Repository.
type OverdueLister interface {
	ListOverdue(ctx context.Context, today time.Time) ([]OverdueIssue, error)
}

// Enqueuer pushes reminder email jobs; satisfied by *queue.Queue.
type Enqueuer interface {
	EnqueueReminderEmail(ctx context.Context, payload queue.ReminderEmailPayload) error
}

// Scheduler periodically scans for overdue issues and enqueues one reminder
// email job per issue.
type Scheduler struct {
	store    OverdueLister
	queue    Enqueuer
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler creates a reminder scheduler.
func NewScheduler(store OverdueLister, q Enqueuer, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{store: store, queue: q, interval: interval, logger: logger}
}

// Run scans once immediately, then on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("reminder scheduler started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.Scan(ctx); err != nil {
		s.logger.Error("reminder scan failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Scan(ctx); err != nil {
				s.logger.Error("reminder scan failed", zap.Error(err))
			}
		}
	}
}

// Scan enqueues a reminder for every overdue assigned issue. Enqueue failures
// are logged and the scan continues; the next tick retries naturally.
func (s *Scheduler) Scan(ctx context.Context) error {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	overdue, err := s.store.ListOverdue(ctx, today)
	if err != nil {
		return fmt.Errorf("list overdue issues: %w", err)
	}
	if len(overdue) == 0 {
		s.logger.Debug("no overdue issues")
		return nil
	}

	enqueued := 0
	for _, issue := range overdue {
		payload := queue.ReminderEmailPayload{
			IssueID:   issue.ID,
			Recipient: issue.Assignee,
			Subject:   fmt.Sprintf("Reminder: issue '%s' is overdue", issue.Title),
			Body: fmt.Sprintf("The issue '%s' was due on %s and is still open. Please update its status.",
				issue.Title, issue.DueDate.Format("2006-01-02")),
		}
		if err := s.queue.EnqueueReminderEmail(ctx, payload); err != nil {
			s.logger.Error("failed to enqueue reminder", zap.Error(err),
				zap.String("issue_id", issue.ID.String()))
			continue
		}
		enqueued++
	}
	s.logger.Info("reminder scan complete",
		zap.Int("overdue", len(overdue)), zap.Int("enqueued", enqueued))
	return nil
}
