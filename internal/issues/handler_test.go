package issues

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trackhive/backend/internal/middleware"
	"github.com/trackhive/backend/internal/models"
	"github.com/trackhive/backend/internal/realtime"
)

type fakeStore struct {
	issues      map[uuid.UUID]*models.Issue
	attachments map[uuid.UUID][]models.Attachment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		issues:      make(map[uuid.UUID]*models.Issue),
		attachments: make(map[uuid.UUID][]models.Attachment),
	}
}

func (s *fakeStore) Create(_ context.Context, i *models.Issue) error {
	i.ID = uuid.New()
	s.issues[i.ID] = i
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Issue, error) {
	return s.issues[id], nil
}

func (s *fakeStore) Update(_ context.Context, id uuid.UUID, p UpdateParams) (*models.Issue, error) {
	i, ok := s.issues[id]
	if !ok {
		return nil, nil
	}
	if p.Title != nil {
		i.Title = *p.Title
	}
	if p.Description != nil {
		i.Description = *p.Description
	}
	if p.Status != nil {
		i.Status = *p.Status
	}
	if p.Priority != nil {
		i.Priority = *p.Priority
	}
	if p.DueDate != nil {
		i.DueDate = p.DueDate
	}
	if p.AssignedTo != nil {
		i.AssignedTo = p.AssignedTo
	}
	return i, nil
}

func (s *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(s.issues, id)
	return nil
}

func (s *fakeStore) ListForUser(_ context.Context, _ uuid.UUID, _ Filter) ([]*models.Issue, error) {
	var list []*models.Issue
	for _, i := range s.issues {
		list = append(list, i)
	}
	return list, nil
}

func (s *fakeStore) CreateAttachment(_ context.Context, a *models.Attachment) error {
	a.ID = uuid.New()
	s.attachments[a.IssueID] = append(s.attachments[a.IssueID], *a)
	return nil
}

func (s *fakeStore) ListAttachments(_ context.Context, issueID uuid.UUID) ([]models.Attachment, error) {
	return s.attachments[issueID], nil
}

type fakeAuthz struct {
	projects map[uuid.UUID]map[uuid.UUID]bool // projectID -> userID -> allowed
	issues   map[uuid.UUID]map[uuid.UUID]bool
}

func (a *fakeAuthz) CanAccessProject(_ context.Context, userID, projectID uuid.UUID) (bool, error) {
	return a.projects[projectID][userID], nil
}

func (a *fakeAuthz) CanAccessIssue(_ context.Context, userID, issueID uuid.UUID) (bool, error) {
	return a.issues[issueID][userID], nil
}

type capturedFrame struct {
	group string
	frame []byte
}

type fakeBus struct {
	published []capturedFrame
}

func (b *fakeBus) Publish(_ context.Context, group string, frame []byte) error {
	b.published = append(b.published, capturedFrame{group: group, frame: frame})
	return nil
}

type fakeUploader struct {
	keys []string
}

func (u *fakeUploader) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	io.Copy(io.Discard, body)
	u.keys = append(u.keys, key)
	return "https://files.example.com/" + key, nil
}

func newRouter(h *Handler, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, userID) })
	r.POST("/issues", h.Create)
	r.GET("/issues", h.List)
	r.GET("/issues/:id", h.Get)
	r.PATCH("/issues/:id", h.Update)
	r.DELETE("/issues/:id", h.Delete)
	r.POST("/issues/:id/upload", h.Upload)
	r.GET("/issues/:id/attachments", h.Attachments)
	return r
}

func TestCreateBroadcastsOnce(t *testing.T) {
	user := uuid.New()
	project := uuid.New()
	store := newFakeStore()
	bus := &fakeBus{}
	authz := &fakeAuthz{projects: map[uuid.UUID]map[uuid.UUID]bool{project: {user: true}}}
	h := NewHandler(store, authz, bus, nil, zap.NewNop())
	r := newRouter(h, user)

	body, _ := json.Marshal(map[string]interface{}{
		"project_id": project,
		"title":      "Fix login",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/issues", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, bus.published, 1, "one event per create")
	assert.Equal(t, realtime.ProjectGroup(project), bus.published[0].group)

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(bus.published[0].frame, &event))
	assert.Equal(t, realtime.EventIssueCreated, event["type"])
	assert.Equal(t, "Fix login", event["title"])

	var created *models.Issue
	for _, i := range store.issues {
		created = i
	}
	require.NotNil(t, created)
	assert.Equal(t, created.ID.String(), event["issue_id"], "event names the stored issue")
	assert.Equal(t, models.StatusOpen, created.Status)
	assert.Equal(t, models.PriorityMedium, created.Priority)
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, user, *created.CreatedBy)
}

func TestCreateHidesForeignProject(t *testing.T) {
	user := uuid.New()
	project := uuid.New()
	bus := &fakeBus{}
	h := NewHandler(newFakeStore(), &fakeAuthz{projects: map[uuid.UUID]map[uuid.UUID]bool{}}, bus, nil, zap.NewNop())
	r := newRouter(h, user)

	body, _ := json.Marshal(map[string]interface{}{
		"project_id": project,
		"title":      "Sneaky",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/issues", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, bus.published, "no event for a rejected create")
}

func TestCreateRejectsUnknownEnum(t *testing.T) {
	user := uuid.New()
	project := uuid.New()
	authz := &fakeAuthz{projects: map[uuid.UUID]map[uuid.UUID]bool{project: {user: true}}}
	h := NewHandler(newFakeStore(), authz, &fakeBus{}, nil, zap.NewNop())
	r := newRouter(h, user)

	body, _ := json.Marshal(map[string]interface{}{
		"project_id": project,
		"title":      "Bad",
		"status":     "wontfix",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/issues", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "status")
}

func TestUpdateBroadcastsChangedFields(t *testing.T) {
	user := uuid.New()
	project := uuid.New()
	store := newFakeStore()
	issue := &models.Issue{ID: uuid.New(), ProjectID: project, Title: "Fix login",
		Status: models.StatusOpen, Priority: models.PriorityMedium}
	store.issues[issue.ID] = issue

	bus := &fakeBus{}
	authz := &fakeAuthz{issues: map[uuid.UUID]map[uuid.UUID]bool{issue.ID: {user: true}}}
	h := NewHandler(store, authz, bus, nil, zap.NewNop())
	r := newRouter(h, user)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/issues/"+issue.ID.String(),
		bytes.NewReader([]byte(`{"status": "done"}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusDone, store.issues[issue.ID].Status)

	require.Len(t, bus.published, 1)
	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(bus.published[0].frame, &event))
	assert.Equal(t, realtime.EventIssueUpdated, event["type"])
	assert.Equal(t, issue.ID.String(), event["issue_id"])
	assert.Equal(t, "done", event["status"])
	assert.NotContains(t, event, "title", "unchanged fields stay out of the event")
}

func TestGetHidesForeignIssue(t *testing.T) {
	store := newFakeStore()
	issue := &models.Issue{ID: uuid.New(), ProjectID: uuid.New(), Title: "Hidden"}
	store.issues[issue.ID] = issue

	h := NewHandler(store, &fakeAuthz{issues: map[uuid.UUID]map[uuid.UUID]bool{}}, &fakeBus{}, nil, zap.NewNop())
	r := newRouter(h, uuid.New())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/issues/"+issue.ID.String(), nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListValidatesFilters(t *testing.T) {
	h := NewHandler(newFakeStore(), &fakeAuthz{}, &fakeBus{}, nil, zap.NewNop())
	r := newRouter(h, uuid.New())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/issues?status=wontfix", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/issues?due_date=tomorrow", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadStoresAttachment(t *testing.T) {
	user := uuid.New()
	store := newFakeStore()
	issue := &models.Issue{ID: uuid.New(), ProjectID: uuid.New(), Title: "Fix login"}
	store.issues[issue.ID] = issue

	uploader := &fakeUploader{}
	authz := &fakeAuthz{issues: map[uuid.UUID]map[uuid.UUID]bool{issue.ID: {user: true}}}
	h := NewHandler(store, authz, &fakeBus{}, uploader, zap.NewNop())
	r := newRouter(h, user)

	body, contentType := multipartBody(t, "file", "trace.log", "panic: nil pointer")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/issues/"+issue.ID.String()+"/upload", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, uploader.keys, 1)
	require.Len(t, store.attachments[issue.ID], 1)
	a := store.attachments[issue.ID][0]
	assert.Equal(t, uploader.keys[0], a.FileKey)
	require.NotNil(t, a.UploadedBy)
	assert.Equal(t, user, *a.UploadedBy)
}

func TestUploadRequiresFilePart(t *testing.T) {
	user := uuid.New()
	store := newFakeStore()
	issue := &models.Issue{ID: uuid.New(), ProjectID: uuid.New(), Title: "Fix login"}
	store.issues[issue.ID] = issue

	authz := &fakeAuthz{issues: map[uuid.UUID]map[uuid.UUID]bool{issue.ID: {user: true}}}
	h := NewHandler(store, authz, &fakeBus{}, &fakeUploader{}, zap.NewNop())
	r := newRouter(h, user)

	body, contentType := multipartBody(t, "document", "trace.log", "wrong field name")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/issues/"+issue.ID.String()+"/upload", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "file required")
}

func TestUploadWithoutStorage(t *testing.T) {
	user := uuid.New()
	store := newFakeStore()
	issue := &models.Issue{ID: uuid.New(), ProjectID: uuid.New(), Title: "Fix login"}
	store.issues[issue.ID] = issue

	authz := &fakeAuthz{issues: map[uuid.UUID]map[uuid.UUID]bool{issue.ID: {user: true}}}
	h := NewHandler(store, authz, &fakeBus{}, nil, zap.NewNop())
	r := newRouter(h, user)

	body, contentType := multipartBody(t, "file", "trace.log", "data")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/issues/"+issue.ID.String()+"/upload", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
