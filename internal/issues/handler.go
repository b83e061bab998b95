package issues

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trackhive/backend/internal/middleware"
	"github.com/trackhive/backend/internal/models"
	"github.com/trackhive/backend/internal/realtime"
	"github.com/trackhive/backend/pkg/response"
	"github.com/trackhive/backend/pkg/storage"
)

// Store is the persistence surface the handler needs.
type Store interface {
	Create(ctx context.Context, i *models.Issue) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Issue, error)
	Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*models.Issue, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID, f Filter) ([]*models.Issue, error)
	CreateAttachment(ctx context.Context, a *models.Attachment) error
	ListAttachments(ctx context.Context, issueID uuid.UUID) ([]models.Attachment, error)
}

// Authorizer answers membership questions scoped to a resource.
type Authorizer interface {
	CanAccessProject(ctx context.Context, userID, projectID uuid.UUID) (bool, error)
	CanAccessIssue(ctx context.Context, userID, issueID uuid.UUID) (bool, error)
}

// Publisher fans an event frame out to a broadcast group.
type Publisher interface {
	Publish(ctx context.Context, group string, frame []byte) error
}

// Uploader stores attachment bodies; satisfied by *storage.S3.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
}

// Handler serves the issue endpoints.
type Handler struct {
	store   Store
	authz   Authorizer
	bus     Publisher
	uploads Uploader
	logger  *zap.Logger
}

// NewHandler creates an issues handler. uploads may be nil when attachment
// storage is not configured; uploads then fail with 503.
func NewHandler(store Store, authz Authorizer, bus Publisher, uploads Uploader, logger *zap.Logger) *Handler {
	return &Handler{store: store, authz: authz, bus: bus, uploads: uploads, logger: logger}
}

type createRequest struct {
	ProjectID   uuid.UUID  `json:"project_id" binding:"required"`
	Title       string     `json:"title" binding:"required,max=300"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *string    `json:"due_date"`
	AssignedTo  *uuid.UUID `json:"assigned_to"`
}

// Create handles POST /api/v1/issues. Any member of the project's
// organization may create; a non-member cannot tell the project exists.
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	status := models.StatusOpen
	if req.Status != "" {
		status = models.IssueStatus(req.Status)
		if !status.Valid() {
			response.ValidationFailed(c, "validation failed", map[string]string{"status": "unknown status"})
			return
		}
	}
	priority := models.PriorityMedium
	if req.Priority != "" {
		priority = models.IssuePriority(req.Priority)
		if !priority.Valid() {
			response.ValidationFailed(c, "validation failed", map[string]string{"priority": "unknown priority"})
			return
		}
	}
	dueDate, ok := parseDueDate(c, req.DueDate)
	if !ok {
		return
	}

	ok, err := h.authz.CanAccessProject(c.Request.Context(), userID, req.ProjectID)
	if err != nil {
		h.logger.Error("membership check failed", zap.Error(err))
		response.Internal(c, "could not create issue")
		return
	}
	if !ok {
		response.NotFound(c, "project not found")
		return
	}

	issue := &models.Issue{
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		Status:      status,
		Priority:    priority,
		DueDate:     dueDate,
		AssignedTo:  req.AssignedTo,
		CreatedBy:   &userID,
	}
	if err := h.store.Create(c.Request.Context(), issue); err != nil {
		h.logger.Error("failed to create issue", zap.Error(err))
		response.Internal(c, "could not create issue")
		return
	}

	h.publish(c.Request.Context(), issue.ProjectID,
		realtime.IssueCreatedFrame(issue.ID, issue.Title))

	response.Created(c, issue)
}

// List handles GET /api/v1/issues with optional filters.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	f := Filter{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Search:   c.Query("search"),
		Ordering: c.Query("ordering"),
	}
	if f.Status != "" && !models.IssueStatus(f.Status).Valid() {
		response.ValidationFailed(c, "validation failed", map[string]string{"status": "unknown status"})
		return
	}
	if f.Priority != "" && !models.IssuePriority(f.Priority).Valid() {
		response.ValidationFailed(c, "validation failed", map[string]string{"priority": "unknown priority"})
		return
	}
	if v := c.Query("assigned_to"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.ValidationFailed(c, "validation failed", map[string]string{"assigned_to": "must be a UUID"})
			return
		}
		f.AssignedTo = &id
	}
	if v := c.Query("due_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			response.ValidationFailed(c, "validation failed", map[string]string{"due_date": "must be YYYY-MM-DD"})
			return
		}
		f.DueDate = &t
	}

	list, err := h.store.ListForUser(c.Request.Context(), userID, f)
	if err != nil {
		h.logger.Error("failed to list issues", zap.Error(err))
		response.Internal(c, "could not list issues")
		return
	}
	if list == nil {
		list = []*models.Issue{}
	}
	response.OK(c, list)
}

// Get handles GET /api/v1/issues/:id.
func (h *Handler) Get(c *gin.Context) {
	issue, ok := h.authorizeIssue(c)
	if !ok {
		return
	}
	response.OK(c, issue)
}

type updateRequest struct {
	Title       *string    `json:"title" binding:"omitempty,max=300"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	DueDate     *string    `json:"due_date"`
	AssignedTo  *uuid.UUID `json:"assigned_to"`
}

// Update handles PATCH /api/v1/issues/:id; only the provided fields change.
func (h *Handler) Update(c *gin.Context) {
	issue, ok := h.authorizeIssue(c)
	if !ok {
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	params := UpdateParams{
		Title:       req.Title,
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
	}
	changed := map[string]interface{}{"issue_id": issue.ID}
	if req.Title != nil {
		changed["title"] = *req.Title
	}
	if req.Description != nil {
		changed["description"] = *req.Description
	}
	if req.Status != nil {
		s := models.IssueStatus(*req.Status)
		if !s.Valid() {
			response.ValidationFailed(c, "validation failed", map[string]string{"status": "unknown status"})
			return
		}
		params.Status = &s
		changed["status"] = s
	}
	if req.Priority != nil {
		p := models.IssuePriority(*req.Priority)
		if !p.Valid() {
			response.ValidationFailed(c, "validation failed", map[string]string{"priority": "unknown priority"})
			return
		}
		params.Priority = &p
		changed["priority"] = p
	}
	if req.DueDate != nil {
		t, ok := parseDueDate(c, req.DueDate)
		if !ok {
			return
		}
		params.DueDate = t
		changed["due_date"] = req.DueDate
	}
	if req.AssignedTo != nil {
		changed["assigned_to"] = req.AssignedTo
	}

	updated, err := h.store.Update(c.Request.Context(), issue.ID, params)
	if err != nil {
		h.logger.Error("failed to update issue", zap.Error(err))
		response.Internal(c, "could not update issue")
		return
	}
	if updated == nil {
		response.NotFound(c, "issue not found")
		return
	}

	h.publish(c.Request.Context(), updated.ProjectID,
		realtime.IssueUpdatedFrame(changed))

	response.OK(c, updated)
}

// Delete handles DELETE /api/v1/issues/:id.
func (h *Handler) Delete(c *gin.Context) {
	issue, ok := h.authorizeIssue(c)
	if !ok {
		return
	}
	if err := h.store.Delete(c.Request.Context(), issue.ID); err != nil {
		h.logger.Error("failed to delete issue", zap.Error(err))
		response.Internal(c, "could not delete issue")
		return
	}
	response.NoContent(c)
}

// Upload handles POST /api/v1/issues/:id/upload: a multipart form with a
// single "file" part, stored in object storage and recorded as an attachment.
func (h *Handler) Upload(c *gin.Context) {
	issue, ok := h.authorizeIssue(c)
	if !ok {
		return
	}
	if h.uploads == nil {
		response.ServiceUnavailable(c, "attachment storage is not configured")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		response.ValidationFailed(c, "validation failed", map[string]string{"file": "file required"})
		return
	}
	if fh.Size > storage.MaxAttachmentSize {
		response.ValidationFailed(c, "validation failed", map[string]string{"file": "file exceeds the 25 MB limit"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.logger.Error("failed to open uploaded file", zap.Error(err))
		response.Internal(c, "could not read upload")
		return
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(fh.Filename)
	}

	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	key := storage.AttachmentKey(issue.ID.String(), uuid.New().String(), fh.Filename)
	url, err := h.uploads.Upload(c.Request.Context(), key, contentType, f, fh.Size)
	if err != nil {
		h.logger.Error("attachment upload failed", zap.Error(err),
			zap.String("issue_id", issue.ID.String()))
		response.Internal(c, "could not store attachment")
		return
	}

	attachment := &models.Attachment{
		IssueID:     issue.ID,
		FileKey:     key,
		FileURL:     url,
		ContentType: contentType,
		SizeBytes:   fh.Size,
		UploadedBy:  &userID,
	}
	if err := h.store.CreateAttachment(c.Request.Context(), attachment); err != nil {
		h.logger.Error("failed to record attachment", zap.Error(err))
		response.Internal(c, "could not store attachment")
		return
	}
	response.Created(c, attachment)
}

// Attachments handles GET /api/v1/issues/:id/attachments.
func (h *Handler) Attachments(c *gin.Context) {
	issue, ok := h.authorizeIssue(c)
	if !ok {
		return
	}
	list, err := h.store.ListAttachments(c.Request.Context(), issue.ID)
	if err != nil {
		h.logger.Error("failed to list attachments", zap.Error(err))
		response.Internal(c, "could not list attachments")
		return
	}
	if list == nil {
		list = []models.Attachment{}
	}
	response.OK(c, list)
}

// authorizeIssue resolves :id and checks the caller's membership. An issue
// outside the caller's organizations looks identical to one that does not
// exist.
func (h *Handler) authorizeIssue(c *gin.Context) (*models.Issue, bool) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	issueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, "issue not found")
		return nil, false
	}

	ok, err := h.authz.CanAccessIssue(c.Request.Context(), userID, issueID)
	if err != nil {
		h.logger.Error("membership check failed", zap.Error(err))
		response.Internal(c, "could not load issue")
		return nil, false
	}
	if !ok {
		response.NotFound(c, "issue not found")
		return nil, false
	}

	issue, err := h.store.GetByID(c.Request.Context(), issueID)
	if err != nil {
		h.logger.Error("failed to load issue", zap.Error(err))
		response.Internal(c, "could not load issue")
		return nil, false
	}
	if issue == nil {
		response.NotFound(c, "issue not found")
		return nil, false
	}
	return issue, true
}

// publish pushes a frame to the issue's project group. Delivery is
// best-effort; a bus failure never fails the HTTP request.
func (h *Handler) publish(ctx context.Context, projectID uuid.UUID, frame []byte) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Publish(ctx, realtime.ProjectGroup(projectID), frame); err != nil {
		h.logger.Warn("event publish failed", zap.Error(err),
			zap.String("project_id", projectID.String()))
	}
}

// parseDueDate parses a YYYY-MM-DD due date; a validation response has been
// written when ok is false.
func parseDueDate(c *gin.Context, raw *string) (*time.Time, bool) {
	if raw == nil {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", *raw)
	if err != nil {
		response.ValidationFailed(c, "validation failed", map[string]string{"due_date": "must be YYYY-MM-DD"})
		return nil, false
	}
	return &t, true
}
