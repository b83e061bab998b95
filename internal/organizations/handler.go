package organizations

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trackhive/backend/internal/middleware"
	"github.com/trackhive/backend/internal/models"
	"github.com/trackhive/backend/pkg/response"
)

// Store is the organization persistence the handler needs.
type Store interface {
	Create(ctx context.Context, org *models.Organization, ownerID uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	Update(ctx context.Context, id uuid.UUID, name string) (*models.Organization, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error)
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]Member, error)
}

// Authorizer answers membership and role questions for organizations.
type Authorizer interface {
	IsMember(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
	HasRole(ctx context.Context, userID, orgID uuid.UUID, allowed ...models.Role) (bool, error)
}

// Handler handles organization HTTP endpoints.
type Handler struct {
	store Store
	authz Authorizer
}

// NewHandler creates an organizations handler.
func NewHandler(store Store, authz Authorizer) *Handler {
	return &Handler{store: store, authz: authz}
}

// CreateRequest is the body for POST /api/v1/organizations/.
type CreateRequest struct {
	Name string `json:"name" binding:"required"`
}

// UpdateRequest is the body for PATCH /api/v1/organizations/:id.
type UpdateRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create handles POST /api/v1/organizations/. The caller becomes owner in
// the same transaction that creates the organization.
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var body CreateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.ValidationFailed(c, "invalid request", map[string]string{"name": "name required"})
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if len(body.Name) < 1 || len(body.Name) > 255 {
		response.ValidationFailed(c, "invalid request", map[string]string{"name": "name must be 1-255 characters"})
		return
	}
	org := &models.Organization{Name: body.Name}
	if err := h.store.Create(c.Request.Context(), org, userID); err != nil {
		response.Internal(c, "failed to create organization")
		return
	}
	response.Created(c, org)
}

// List handles GET /api/v1/organizations/. Returns orgs the caller belongs to.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	orgs, err := h.store.ListForUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to load organizations")
		return
	}
	if orgs == nil {
		orgs = []*models.Organization{}
	}
	response.OK(c, orgs)
}

// Get handles GET /api/v1/organizations/:id. Non-members see 404, never 403,
// so denial is indistinguishable from non-existence.
func (h *Handler) Get(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	member, err := h.authz.IsMember(c.Request.Context(), userID, orgID)
	if err != nil {
		response.Internal(c, "failed to load organization")
		return
	}
	if !member {
		response.NotFound(c, "organization not found")
		return
	}
	org, err := h.store.GetByID(c.Request.Context(), orgID)
	if err != nil || org == nil {
		response.NotFound(c, "organization not found")
		return
	}
	response.OK(c, org)
}

// Update handles PATCH /api/v1/organizations/:id. Owner only.
func (h *Handler) Update(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	member, err := h.authz.IsMember(c.Request.Context(), userID, orgID)
	if err != nil {
		response.Internal(c, "failed to update organization")
		return
	}
	if !member {
		response.NotFound(c, "organization not found")
		return
	}
	ok, err := h.authz.HasRole(c.Request.Context(), userID, orgID, models.RoleOwner)
	if err != nil {
		response.Internal(c, "failed to update organization")
		return
	}
	if !ok {
		response.Forbidden(c, "owner role required")
		return
	}

	var body UpdateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.ValidationFailed(c, "invalid request", map[string]string{"name": "name required"})
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if len(body.Name) < 1 || len(body.Name) > 255 {
		response.ValidationFailed(c, "invalid request", map[string]string{"name": "name must be 1-255 characters"})
		return
	}
	org, err := h.store.Update(c.Request.Context(), orgID, body.Name)
	if err != nil {
		response.Internal(c, "failed to update organization")
		return
	}
	if org == nil {
		response.NotFound(c, "organization not found")
		return
	}
	response.OK(c, org)
}

// Delete handles DELETE /api/v1/organizations/:id. Owner only; projects,
// issues, and memberships cascade.
func (h *Handler) Delete(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	member, err := h.authz.IsMember(c.Request.Context(), userID, orgID)
	if err != nil {
		response.Internal(c, "failed to delete organization")
		return
	}
	if !member {
		response.NotFound(c, "organization not found")
		return
	}
	ok, err := h.authz.HasRole(c.Request.Context(), userID, orgID, models.RoleOwner)
	if err != nil {
		response.Internal(c, "failed to delete organization")
		return
	}
	if !ok {
		response.Forbidden(c, "owner role required")
		return
	}
	if err := h.store.Delete(c.Request.Context(), orgID); err != nil {
		response.Internal(c, "failed to delete organization")
		return
	}
	response.NoContent(c)
}

// Members handles GET /api/v1/organizations/:id/members. Member only.
func (h *Handler) Members(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	member, err := h.authz.IsMember(c.Request.Context(), userID, orgID)
	if err != nil {
		response.Internal(c, "failed to load members")
		return
	}
	if !member {
		response.NotFound(c, "organization not found")
		return
	}
	members, err := h.store.ListMembers(c.Request.Context(), orgID)
	if err != nil {
		response.Internal(c, "failed to load members")
		return
	}
	if members == nil {
		members = []Member{}
	}
	response.OK(c, members)
}
