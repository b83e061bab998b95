package projects

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trackhive/backend/internal/middleware"
	"github.com/trackhive/backend/internal/models"
	"github.com/trackhive/backend/pkg/response"
)

// Store is the project persistence the handler needs.
type Store interface {
	Create(ctx context.Context, p *models.Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	Update(ctx context.Context, id uuid.UUID, name, description *string) (*models.Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) ([]*models.Project, error)
}

// Authorizer answers membership and role questions for projects.
type Authorizer interface {
	IsMember(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
	HasRole(ctx context.Context, userID, orgID uuid.UUID, allowed ...models.Role) (bool, error)
}

// Handler handles project HTTP endpoints.
type Handler struct {
	store Store
	authz Authorizer
}

// NewHandler creates a projects handler.
func NewHandler(store Store, authz Authorizer) *Handler {
	return &Handler{store: store, authz: authz}
}

// CreateRequest is the body for POST /api/v1/projects/.
type CreateRequest struct {
	OrganizationID uuid.UUID `json:"organization_id" binding:"required"`
	Name           string    `json:"name" binding:"required"`
	Description    string    `json:"description"`
}

// UpdateRequest is the body for PATCH /api/v1/projects/:id.
type UpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Create handles POST /api/v1/projects/. Creation is role-gated: only
// owners and managers of the named organization may create projects.
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var body CreateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.ValidationFailed(c, "invalid request", map[string]string{
			"organization_id": "organization_id required",
			"name":            "name required",
		})
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		response.ValidationFailed(c, "invalid request", map[string]string{"name": "name required"})
		return
	}

	ok, err := h.authz.HasRole(c.Request.Context(), userID, body.OrganizationID,
		models.RoleOwner, models.RoleManager)
	if err != nil {
		response.Internal(c, "failed to create project")
		return
	}
	if !ok {
		response.Forbidden(c, "owner or manager role required")
		return
	}

	p := &models.Project{
		OrganizationID: body.OrganizationID,
		Name:           body.Name,
		Description:    body.Description,
	}
	if err := h.store.Create(c.Request.Context(), p); err != nil {
		response.Internal(c, "failed to create project")
		return
	}
	response.Created(c, p)
}

// List handles GET /api/v1/projects/. Results are scoped to the caller's
// organizations; `?organization=<id>` narrows to one of them.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var orgFilter *uuid.UUID
	if raw := c.Query("organization"); raw != "" {
		orgID, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid organization id")
			return
		}
		orgFilter = &orgID
	}
	list, err := h.store.ListForUser(c.Request.Context(), userID, orgFilter)
	if err != nil {
		response.Internal(c, "failed to load projects")
		return
	}
	if list == nil {
		list = []*models.Project{}
	}
	response.OK(c, list)
}

// Get handles GET /api/v1/projects/:id. Out-of-scope projects answer 404.
func (h *Handler) Get(c *gin.Context) {
	p, ok := h.authorizeProject(c)
	if !ok {
		return
	}
	response.OK(c, p)
}

// Update handles PATCH /api/v1/projects/:id. Any member of the owning
// organization may update; only creation is role-gated.
func (h *Handler) Update(c *gin.Context) {
	p, ok := h.authorizeProject(c)
	if !ok {
		return
	}
	var body UpdateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request")
		return
	}
	if body.Name != nil {
		trimmed := strings.TrimSpace(*body.Name)
		if trimmed == "" {
			response.ValidationFailed(c, "invalid request", map[string]string{"name": "name must not be empty"})
			return
		}
		body.Name = &trimmed
	}
	updated, err := h.store.Update(c.Request.Context(), p.ID, body.Name, body.Description)
	if err != nil {
		response.Internal(c, "failed to update project")
		return
	}
	if updated == nil {
		response.NotFound(c, "project not found")
		return
	}
	response.OK(c, updated)
}

// Delete handles DELETE /api/v1/projects/:id.
func (h *Handler) Delete(c *gin.Context) {
	p, ok := h.authorizeProject(c)
	if !ok {
		return
	}
	if err := h.store.Delete(c.Request.Context(), p.ID); err != nil {
		response.Internal(c, "failed to delete project")
		return
	}
	response.NoContent(c)
}

// authorizeProject loads the project from the :id param and verifies the
// caller's membership in its organization. Writes the error response and
// returns ok=false on any failure; absence and denial are both 404.
func (h *Handler) authorizeProject(c *gin.Context) (*models.Project, bool) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid project id")
		return nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	p, err := h.store.GetByID(c.Request.Context(), projectID)
	if err != nil {
		response.Internal(c, "failed to load project")
		return nil, false
	}
	if p == nil {
		response.NotFound(c, "project not found")
		return nil, false
	}
	member, err := h.authz.IsMember(c.Request.Context(), userID, p.OrganizationID)
	if err != nil {
		response.Internal(c, "failed to load project")
		return nil, false
	}
	if !member {
		response.NotFound(c, "project not found")
		return nil, false
	}
	return p, true
}
