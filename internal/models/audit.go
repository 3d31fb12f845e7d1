package models

import "time"

// AuditLog is an append-only record of an administrative or ingestion
// action. Rows are never updated or deleted except by the retention
// policy bounded to the longest compliance requirement.
type AuditLog struct {
	ID           int64     `json:"id" db:"id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	UserID       *string   `json:"userId,omitempty" db:"user_id"`
	Action       string    `json:"action" db:"action"`
	Resource     string    `json:"resource" db:"resource"`
	ResourceID   *string   `json:"resourceId,omitempty" db:"resource_id"`
	IPAddress    string    `json:"ipAddress" db:"ip_address"`
	UserAgent    string    `json:"userAgent" db:"user_agent"`
	Success      bool      `json:"success" db:"success"`
	ErrorMessage *string   `json:"errorMessage,omitempty" db:"error_message"`
	Details      RawJSON   `json:"details" db:"details"`
}

// AuditLogFilter narrows an audit log query.
type AuditLogFilter struct {
	UserID    string
	Action    string
	Resource  string
	Success   *bool
	StartDate *time.Time
	EndDate   *time.Time
}

// AuditLogStats summarizes audit activity for the admin statistics endpoint.
type AuditLogStats struct {
	Total        int64            `json:"total"`
	ByAction     map[string]int64 `json:"byAction"`
	ByUser       map[string]int64 `json:"byUser"`
	SuccessCount int64            `json:"successCount"`
	FailureCount int64            `json:"failureCount"`
}
