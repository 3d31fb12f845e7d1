package models

import "time"

// Status is a BugReport's workflow state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Priority is a BugReport's urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// RetentionClass drives the compliance floor lookup in internal/retention.
type RetentionClass string

const (
	ClassGeneral    RetentionClass = "general"
	ClassFinancial  RetentionClass = "financial"
	ClassHealthcare RetentionClass = "healthcare"
	ClassPII        RetentionClass = "pii"
	ClassSensitive  RetentionClass = "sensitive"
	ClassGovernment RetentionClass = "government"
)

// BugReport is the central artifact: a single captured issue with its
// evidence (screenshot, console logs, network requests, optional replay).
type BugReport struct {
	ID             string         `json:"id" db:"id"`
	ProjectID      string         `json:"projectId" db:"project_id"`
	Title          string         `json:"title" db:"title"`
	Description    *string        `json:"description,omitempty" db:"description"`
	Status         Status         `json:"status" db:"status"`
	Priority       Priority       `json:"priority" db:"priority"`
	ScreenshotURL  *string        `json:"screenshotUrl,omitempty" db:"screenshot_url"`
	ReplayURL      *string        `json:"replayUrl,omitempty" db:"replay_url"`
	Metadata       RawJSON        `json:"metadata" db:"metadata"`
	LegalHold      bool           `json:"legalHold" db:"legal_hold"`
	RetentionClass RetentionClass `json:"retentionClass" db:"retention_class"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty" db:"deleted_at"`
	DeletedBy      *string        `json:"deletedBy,omitempty" db:"deleted_by"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
}

// ConsoleLogEntry is one captured browser console statement.
type ConsoleLogEntry struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	Stack     string `json:"stack,omitempty"`
}

// NetworkRequestEntry is one captured XHR/fetch call.
type NetworkRequestEntry struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	Status    int    `json:"status"`
	Duration  int64  `json:"duration"`
	Timestamp int64  `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// Viewport is the captured browser window size.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BrowserMetadata describes the client environment at capture time.
type BrowserMetadata struct {
	UserAgent string   `json:"userAgent"`
	Viewport  Viewport `json:"viewport"`
	Browser   string   `json:"browser"`
	OS        string   `json:"os"`
	URL       string   `json:"url"`
	Timestamp int64    `json:"timestamp"`
}

// SessionReplayPayload is the optional raw replay stream submitted with a
// report. Extra carries any additional fields the SDK sent that this
// server version doesn't know about, so round-tripping never loses data.
type SessionReplayPayload struct {
	Type           string        `json:"type"`
	RecordedEvents []RawJSON     `json:"recordedEvents"`
	Extra          RawJSON       `json:"-"`
}

// ReportMetadata is the tagged-variant shape stored in BugReport.Metadata.
// Each known field is typed; Extra preserves any additional keys the SDK
// sent that this server version doesn't recognize.
type ReportMetadata struct {
	ConsoleLogs      []ConsoleLogEntry     `json:"consoleLogs"`
	NetworkRequests  []NetworkRequestEntry `json:"networkRequests"`
	BrowserMetadata  BrowserMetadata       `json:"browserMetadata"`
	Extra            RawJSON               `json:"extra,omitempty"`
}

// IngestReportRequest is the payload for POST /api/v1/reports.
type IngestReportRequest struct {
	Title       string       `json:"title" binding:"required,min=1,max=500"`
	Description string       `json:"description"`
	Report      ReportDetail `json:"report" binding:"required"`
}

// ReportDetail carries the evidence bundle of an ingested report.
type ReportDetail struct {
	ConsoleLogs       []ConsoleLogEntry     `json:"consoleLogs"`
	NetworkRequests   []NetworkRequestEntry `json:"networkRequests"`
	BrowserMetadata   BrowserMetadata       `json:"browserMetadata" binding:"required"`
	ScreenshotBase64  string                `json:"screenshotBase64"`
	SessionReplay     *SessionReplayPayload `json:"sessionReplay"`
}

// BugReportUpdate is a partial update to a bug report.
type BugReportUpdate struct {
	Title          *string         `json:"title" binding:"omitempty,min=1,max=500"`
	Description    *string         `json:"description"`
	Status         *Status         `json:"status"`
	Priority       *Priority       `json:"priority"`
	RetentionClass *RetentionClass `json:"retentionClass"`
}
