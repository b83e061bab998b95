package organizations

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackhive/backend/internal/middleware"
	"github.com/trackhive/backend/internal/models"
)

type fakeStore struct {
	orgs    map[uuid.UUID]*models.Organization
	owners  map[uuid.UUID]uuid.UUID // orgID -> ownerID from Create
	members map[uuid.UUID][]Member
	deleted []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orgs:    make(map[uuid.UUID]*models.Organization),
		owners:  make(map[uuid.UUID]uuid.UUID),
		members: make(map[uuid.UUID][]Member),
	}
}

func (s *fakeStore) Create(_ context.Context, org *models.Organization, ownerID uuid.UUID) error {
	org.ID = uuid.New()
	s.orgs[org.ID] = org
	s.owners[org.ID] = ownerID
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	return s.orgs[id], nil
}

func (s *fakeStore) Update(_ context.Context, id uuid.UUID, name string) (*models.Organization, error) {
	org, ok := s.orgs[id]
	if !ok {
		return nil, nil
	}
	org.Name = name
	return org, nil
}

func (s *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(s.orgs, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeStore) ListForUser(_ context.Context, _ uuid.UUID) ([]*models.Organization, error) {
	var list []*models.Organization
	for _, o := range s.orgs {
		list = append(list, o)
	}
	return list, nil
}

func (s *fakeStore) ListMembers(_ context.Context, orgID uuid.UUID) ([]Member, error) {
	return s.members[orgID], nil
}

type fakeAuthz struct {
	roles map[uuid.UUID]map[uuid.UUID]models.Role // orgID -> userID -> role
}

func (a *fakeAuthz) IsMember(_ context.Context, userID, orgID uuid.UUID) (bool, error) {
	return a.roles[orgID][userID] != "", nil
}

func (a *fakeAuthz) HasRole(_ context.Context, userID, orgID uuid.UUID, allowed ...models.Role) (bool, error) {
	role := a.roles[orgID][userID]
	for _, r := range allowed {
		if role == r {
			return true, nil
		}
	}
	return false, nil
}

func newRouter(h *Handler, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, userID) })
	r.POST("/organizations", h.Create)
	r.GET("/organizations/:id", h.Get)
	r.PATCH("/organizations/:id", h.Update)
	r.DELETE("/organizations/:id", h.Delete)
	r.GET("/organizations/:id/members", h.Members)
	return r
}

func TestCreateAssignsOwner(t *testing.T) {
	store := newFakeStore()
	userID := uuid.New()
	h := NewHandler(store, &fakeAuthz{roles: map[uuid.UUID]map[uuid.UUID]models.Role{}})
	r := newRouter(h, userID)

	body, _ := json.Marshal(CreateRequest{Name: "Acme"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/organizations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, store.orgs, 1)
	for orgID := range store.orgs {
		assert.Equal(t, userID, store.owners[orgID], "creator becomes owner atomically")
	}
}

func TestCreateRejectsBlankName(t *testing.T) {
	h := NewHandler(newFakeStore(), &fakeAuthz{})
	r := newRouter(h, uuid.New())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/organizations", bytes.NewReader([]byte(`{"name": "   "}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetHidesForeignOrg(t *testing.T) {
	store := newFakeStore()
	org := &models.Organization{ID: uuid.New(), Name: "Acme"}
	store.orgs[org.ID] = org

	outsider := uuid.New()
	h := NewHandler(store, &fakeAuthz{roles: map[uuid.UUID]map[uuid.UUID]models.Role{}})
	r := newRouter(h, outsider)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/organizations/"+org.ID.String(), nil)
	r.ServeHTTP(w, req)

	// a non-member cannot tell the org exists
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateRequiresOwner(t *testing.T) {
	store := newFakeStore()
	org := &models.Organization{ID: uuid.New(), Name: "Acme"}
	store.orgs[org.ID] = org

	member := uuid.New()
	owner := uuid.New()
	authz := &fakeAuthz{roles: map[uuid.UUID]map[uuid.UUID]models.Role{
		org.ID: {member: models.RoleMember, owner: models.RoleOwner},
	}}
	h := NewHandler(store, authz)

	body := []byte(`{"name": "Renamed"}`)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/organizations/"+org.ID.String(), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	newRouter(h, member).ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/organizations/"+org.ID.String(), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	newRouter(h, owner).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Renamed", store.orgs[org.ID].Name)
}

func TestDeleteRequiresOwner(t *testing.T) {
	store := newFakeStore()
	org := &models.Organization{ID: uuid.New(), Name: "Acme"}
	store.orgs[org.ID] = org

	manager := uuid.New()
	owner := uuid.New()
	authz := &fakeAuthz{roles: map[uuid.UUID]map[uuid.UUID]models.Role{
		org.ID: {manager: models.RoleManager, owner: models.RoleOwner},
	}}
	h := NewHandler(store, authz)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/organizations/"+org.ID.String(), nil)
	newRouter(h, manager).ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/organizations/"+org.ID.String(), nil)
	newRouter(h, owner).ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, store.deleted, org.ID)
}

func TestMembersRequiresMembership(t *testing.T) {
	store := newFakeStore()
	org := &models.Organization{ID: uuid.New(), Name: "Acme"}
	store.orgs[org.ID] = org
	member := uuid.New()
	store.members[org.ID] = []Member{{ID: uuid.New(), UserID: member, Role: models.RoleMember}}

	authz := &fakeAuthz{roles: map[uuid.UUID]map[uuid.UUID]models.Role{
		org.ID: {member: models.RoleMember},
	}}
	h := NewHandler(store, authz)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/organizations/"+org.ID.String()+"/members", nil)
	newRouter(h, uuid.New()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/organizations/"+org.ID.String()+"/members", nil)
	newRouter(h, member).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), member.String())
}
