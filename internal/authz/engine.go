// Package authz decides whether a user may see or mutate a resource.
// Every decision resolves the resource to its organization and checks the
// caller's membership row there; resources with no resolvable organization
// are denied (fail-closed).
package authz

import (
	"context"

	"github.com/google/uuid"

	"github.com/trackhive/backend/internal/models"
)

// Store provides the membership and ownership-chain lookups the engine needs.
// Implementations must return zero values (not errors) for absent rows:
// RoleOf returns "" for a non-member, ProjectOrg/IssueOrg return uuid.Nil
// for an unknown resource.
type Store interface {
	RoleOf(ctx context.Context, userID, orgID uuid.UUID) (models.Role, error)
	ProjectOrg(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error)
	IssueOrg(ctx context.Context, issueID uuid.UUID) (uuid.UUID, error)
}

// Engine answers membership, role, and resource-access questions.
type Engine struct {
	store Store
}

// NewEngine creates an authorization engine backed by store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// IsMember reports whether the user has any membership in the organization.
func (e *Engine) IsMember(ctx context.Context, userID, orgID uuid.UUID) (bool, error) {
	role, err := e.store.RoleOf(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	return role != "", nil
}

// RoleOf returns the user's role in the organization, or "" for a non-member.
func (e *Engine) RoleOf(ctx context.Context, userID, orgID uuid.UUID) (models.Role, error) {
	return e.store.RoleOf(ctx, userID, orgID)
}

// HasRole reports whether the user holds one of the allowed roles in the
// organization. When orgID is uuid.Nil the check is permissive: creation
// endpoints only validate role when an explicit organization is named, and
// the scoped list filters still bound what the caller can see.
func (e *Engine) HasRole(ctx context.Context, userID, orgID uuid.UUID, allowed ...models.Role) (bool, error) {
	if orgID == uuid.Nil {
		return true, nil
	}
	role, err := e.store.RoleOf(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	if role == "" {
		return false, nil
	}
	for _, a := range allowed {
		if role == a {
			return true, nil
		}
	}
	return false, nil
}

// CanAccessProject reports whether the user is a member of the project's
// organization. Unknown projects deny.
func (e *Engine) CanAccessProject(ctx context.Context, userID, projectID uuid.UUID) (bool, error) {
	orgID, err := e.store.ProjectOrg(ctx, projectID)
	if err != nil {
		return false, err
	}
	if orgID == uuid.Nil {
		return false, nil
	}
	return e.IsMember(ctx, userID, orgID)
}

// CanAccessIssue reports whether the user is a member of the organization
// owning the issue's project. Unknown issues deny.
func (e *Engine) CanAccessIssue(ctx context.Context, userID, issueID uuid.UUID) (bool, error) {
	orgID, err := e.store.IssueOrg(ctx, issueID)
	if err != nil {
		return false, err
	}
	if orgID == uuid.Nil {
		return false, nil
	}
	return e.IsMember(ctx, userID, orgID)
}
