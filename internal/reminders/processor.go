package reminders

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/trackhive/backend/internal/models"
	"github.com/trackhive/backend/pkg/queue"
)

// EmailLogger records delivery outcomes; satisfied by *Repository.
type EmailLogger interface {
	LogEmail(ctx context.Context, log *models.EmailLog) error
}

// Sender delivers a reminder email. The default implementation only logs;
// a real SMTP or SES sender slots in here.
type Sender interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// LogSender writes the email to the process log instead of delivering it.
type LogSender struct {
	Logger *zap.Logger
}

// Send logs the email and reports success.
func (s LogSender) Send(_ context.Context, from, to, subject, _ string) error {
	s.Logger.Info("reminder email",
		zap.String("from", from), zap.String("to", to), zap.String("subject", subject))
	return nil
}

// Processor consumes reminder email jobs from the queue, sends them, and
// records each attempt in email_logs.
type Processor struct {
	queue  *queue.Queue
	store  EmailLogger
	sender Sender
	from   string
	logger *zap.Logger
}

// NewProcessor creates a reminder job processor.
func NewProcessor(q *queue.Queue, store EmailLogger, sender Sender, from string, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = LogSender{Logger: logger}
	}
	return &Processor{queue: q, store: store, sender: sender, from: from, logger: logger}
}

// Run consumes jobs until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info("reminder processor started")
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("reminder processor stopped")
				return
			}
			p.logger.Error("dequeue failed", zap.Error(err))
			continue
		}
		if job == nil {
			continue
		}
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.Error(err),
				zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
			if err := p.queue.Retry(ctx, job); err != nil {
				p.logger.Error("retry failed", zap.Error(err), zap.String("job_id", job.ID))
			}
		}
	}
}

// Process handles a single job. The email log row is written whether the
// send succeeded or failed, so the history survives retries.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeReminderEmail {
		p.logger.Warn("unknown job type dropped", zap.String("type", string(job.Type)))
		return nil
	}
	var payload queue.ReminderEmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		p.logger.Warn("malformed job payload dropped", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}

	sendErr := p.sender.Send(ctx, p.from, payload.Recipient, payload.Subject, payload.Body)
	status := models.EmailStatusSent
	if sendErr != nil {
		status = models.EmailStatusFailed
	}

	log := &models.EmailLog{
		IssueID:   payload.IssueID,
		Recipient: payload.Recipient,
		Subject:   payload.Subject,
		Status:    status,
	}
	if err := p.store.LogEmail(ctx, log); err != nil {
		p.logger.Error("failed to record email log", zap.Error(err),
			zap.String("issue_id", payload.IssueID.String()))
	}

	if sendErr != nil {
		return fmt.Errorf("send reminder: %w", sendErr)
	}
	return nil
}
