package models

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is a file stored in S3 and linked to an issue.
type Attachment struct {
	ID          uuid.UUID  `json:"id"`
	IssueID     uuid.UUID  `json:"issue_id"`
	FileKey     string     `json:"file_key"`
	FileURL     string     `json:"file_url"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	UploadedBy  *uuid.UUID `json:"uploaded_by,omitempty"`
	UploadedAt  time.Time  `json:"uploaded_at"`
}
