package models

import "time"

// Session is a session-replay record attached to a BugReport. The row
// carries the recorded events (Events) and their counters; the replay
// worker also writes them, chunked and compressed, to the object store.
type Session struct {
	ID          string    `json:"id" db:"id"`
	BugReportID string    `json:"bugReportId" db:"bug_report_id"`
	Events      RawJSON   `json:"events" db:"events"`
	DurationMs  int64     `json:"durationMs" db:"duration_ms"`
	ChunkCount  int       `json:"chunkCount" db:"chunk_count"`
	EventCount  int       `json:"eventCount" db:"event_count"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Platform is an external tracker integration.
type Platform string

const (
	PlatformJira   Platform = "jira"
	PlatformLinear Platform = "linear"
	PlatformGithub Platform = "github"
)

// Ticket links a BugReport to an external tracker issue. BugSpotter stores
// only the opaque reference; it never talks to the tracker itself.
type Ticket struct {
	ID          string    `json:"id" db:"id"`
	BugReportID string    `json:"bugReportId" db:"bug_report_id"`
	ExternalID  string    `json:"externalId" db:"external_id"`
	Platform    Platform  `json:"platform" db:"platform"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// TicketCreate is the payload for linking a new external ticket.
type TicketCreate struct {
	ExternalID string   `json:"externalId" binding:"required"`
	Platform   Platform `json:"platform" binding:"required"`
	Status     string   `json:"status"`
}
