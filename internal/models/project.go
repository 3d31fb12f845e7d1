// Package models defines the core data structures for the BugSpotter API.
//
// Models carry both `json` tags (wire format) and `db` tags (column
// mapping used by internal/db repositories via database/sql scans).
package models

import "time"

// Project is the tenant boundary. Every BugReport belongs to exactly one
// Project, and every Project has exactly one APIKey used by SDK ingestion.
type Project struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	APIKey    string          `json:"apiKey" db:"api_key"`
	OwnerID   string          `json:"ownerId" db:"owner_id"`
	Settings  RawJSON         `json:"settings" db:"settings"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// ProjectCreate is the payload accepted by the project creation endpoint.
type ProjectCreate struct {
	Name     string  `json:"name" binding:"required,min=1,max=200"`
	Settings RawJSON `json:"settings"`
}

// ProjectUpdate is a partial update; nil fields are left unchanged.
type ProjectUpdate struct {
	Name     *string  `json:"name" binding:"omitempty,min=1,max=200"`
	Settings *RawJSON `json:"settings"`
}

// APIKeyPrefix is prepended to every generated project API key.
const APIKeyPrefix = "bgs_"
