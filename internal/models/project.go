package models

import (
	"time"

	"github.com/google/uuid"
)

// Project belongs to exactly one organization and cascades with it.
type Project struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
}
