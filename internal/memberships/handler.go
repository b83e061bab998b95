package memberships

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trackhive/backend/internal/middleware"
	"github.com/trackhive/backend/internal/models"
	"github.com/trackhive/backend/pkg/response"
)

// Store is the membership persistence the handler needs.
type Store interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Membership, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Membership, error)
}

// Handler handles read-only membership endpoints.
type Handler struct {
	store Store
}

// NewHandler creates a memberships handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// List handles GET /api/v1/memberships/. Returns the caller's rows only.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.store.ListForUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to load memberships")
		return
	}
	if list == nil {
		list = []models.Membership{}
	}
	response.OK(c, list)
}

// Get handles GET /api/v1/memberships/:id. Rows belonging to other users
// answer 404.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid membership id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	m, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load membership")
		return
	}
	if m == nil || m.UserID != userID {
		response.NotFound(c, "membership not found")
		return
	}
	response.OK(c, m)
}
