package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trackhive/backend/internal/models"
	"github.com/trackhive/backend/pkg/queue"
)

type fakeLister struct {
	overdue []OverdueIssue
	err     error
}

func (f *fakeLister) ListOverdue(_ context.Context, _ time.Time) ([]OverdueIssue, error) {
	return f.overdue, f.err
}

type fakeEnqueuer struct {
	payloads []queue.ReminderEmailPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueReminderEmail(_ context.Context, p queue.ReminderEmailPayload) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, p)
	return nil
}

type fakeEmailLogger struct {
	logs []models.EmailLog
}

func (f *fakeEmailLogger) LogEmail(_ context.Context, log *models.EmailLog) error {
	f.logs = append(f.logs, *log)
	return nil
}

type failingSender struct{}

func (failingSender) Send(_ context.Context, _, _, _, _ string) error {
	return errors.New("smtp unreachable")
}

func TestScanEnqueuesPerOverdueIssue(t *testing.T) {
	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	lister := &fakeLister{overdue: []OverdueIssue{
		{ID: uuid.New(), Title: "Fix login", DueDate: due, Assignee: "dev@example.com"},
		{ID: uuid.New(), Title: "Rotate certs", DueDate: due, Assignee: "ops@example.com"},
	}}
	enq := &fakeEnqueuer{}
	s := NewScheduler(lister, enq, time.Hour, zap.NewNop())

	require.NoError(t, s.Scan(context.Background()))
	require.Len(t, enq.payloads, 2)
	assert.Equal(t, "dev@example.com", enq.payloads[0].Recipient)
	assert.Contains(t, enq.payloads[0].Subject, "Fix login")
	assert.Contains(t, enq.payloads[0].Body, "2026-08-01")
}

func TestScanNothingOverdue(t *testing.T) {
	enq := &fakeEnqueuer{}
	s := NewScheduler(&fakeLister{}, enq, time.Hour, zap.NewNop())
	require.NoError(t, s.Scan(context.Background()))
	assert.Empty(t, enq.payloads)
}

func TestScanPropagatesListError(t *testing.T) {
	s := NewScheduler(&fakeLister{err: errors.New("db down")}, &fakeEnqueuer{}, time.Hour, zap.NewNop())
	assert.Error(t, s.Scan(context.Background()))
}

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return queue.NewQueue(client, zap.NewNop())
}

func reminderJob(t *testing.T, payload queue.ReminderEmailPayload) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{
		ID:      uuid.New().String(),
		Type:    queue.JobTypeReminderEmail,
		Payload: raw,
	}
}

func TestProcessRecordsSentEmail(t *testing.T) {
	store := &fakeEmailLogger{}
	p := NewProcessor(newTestQueue(t), store, nil, "noreply@trackhive.dev", zap.NewNop())

	issueID := uuid.New()
	job := reminderJob(t, queue.ReminderEmailPayload{
		IssueID:   issueID,
		Recipient: "dev@example.com",
		Subject:   "Reminder: issue 'Fix login' is overdue",
	})

	require.NoError(t, p.Process(context.Background(), job))
	require.Len(t, store.logs, 1)
	assert.Equal(t, issueID, store.logs[0].IssueID)
	assert.Equal(t, models.EmailStatusSent, store.logs[0].Status)
}

func TestProcessRecordsFailedSend(t *testing.T) {
	store := &fakeEmailLogger{}
	p := NewProcessor(newTestQueue(t), store, failingSender{}, "noreply@trackhive.dev", zap.NewNop())

	job := reminderJob(t, queue.ReminderEmailPayload{
		IssueID:   uuid.New(),
		Recipient: "dev@example.com",
	})

	err := p.Process(context.Background(), job)
	require.Error(t, err)
	require.Len(t, store.logs, 1, "failed sends are still logged")
	assert.Equal(t, models.EmailStatusFailed, store.logs[0].Status)
}

func TestProcessDropsUnknownJobType(t *testing.T) {
	store := &fakeEmailLogger{}
	p := NewProcessor(newTestQueue(t), store, nil, "noreply@trackhive.dev", zap.NewNop())

	job := &queue.Job{ID: uuid.New().String(), Type: "mystery", Payload: []byte(`{}`)}
	require.NoError(t, p.Process(context.Background(), job))
	assert.Empty(t, store.logs)
}
