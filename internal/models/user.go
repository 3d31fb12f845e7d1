package models

import "time"

// Role is a user's global permission level.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleViewer:
		return true
	}
	return false
}

// User is a principal authenticated either by password or by a linked OAuth
// identity. Exactly one of PasswordHash or (OAuthProvider, OAuthID) is set;
// this XOR is enforced by a check constraint in migrations and re-verified
// in internal/db before insert.
type User struct {
	ID            string    `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	Name          string    `json:"name" db:"name"`
	Role          Role      `json:"role" db:"role"`
	PasswordHash  *string   `json:"-" db:"password_hash"`
	OAuthProvider *string   `json:"oauthProvider,omitempty" db:"oauth_provider"`
	OAuthID       *string   `json:"-" db:"oauth_id"`
	TOTPSecret    *string   `json:"-" db:"totp_secret"`
	TOTPEnabled   bool      `json:"totpEnabled" db:"totp_enabled"`
	Active        bool      `json:"active" db:"active"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// UserCreate is the payload for creating a local (password-authenticated) user.
type UserCreate struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required,min=1,max=200"`
	Password string `json:"password" binding:"required,min=8,password"`
	Role     Role   `json:"role" binding:"required"`
}

// UserUpdate is a partial update to a user record.
type UserUpdate struct {
	Name   *string `json:"name" binding:"omitempty,min=1,max=200"`
	Role   *Role   `json:"role"`
	Active *bool   `json:"active"`
}

// LoginRequest is the payload for POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totpCode"`
}
