package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Event types delivered to project groups.
const (
	EventIssueCreated = "issue.created"
	EventIssueUpdated = "issue.updated"
)

// ProjectGroup returns the broadcast group name for a project.
func ProjectGroup(projectID uuid.UUID) string {
	return "project_" + projectID.String()
}

// IssueCreatedFrame builds the issue.created frame.
func IssueCreatedFrame(issueID uuid.UUID, title string) []byte {
	frame, _ := json.Marshal(map[string]interface{}{
		"type":     EventIssueCreated,
		"issue_id": issueID,
		"title":    title,
	})
	return frame
}

// IssueUpdatedFrame builds the issue.updated frame: the event fields are
// merged as-is next to the type discriminator.
func IssueUpdatedFrame(fields map[string]interface{}) []byte {
	payload := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["type"] = EventIssueUpdated
	frame, _ := json.Marshal(payload)
	return frame
}
