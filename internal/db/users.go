package db

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// UserRepository is the C1 repository for dashboard principals: local
// (password + optional TOTP) or OAuth-linked.
type UserRepository struct {
	q Queryer
}

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash,
		&u.OAuthProvider, &u.OAuthID, &u.TOTPSecret, &u.TOTPEnabled, &u.Active,
		&u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const userColumns = `id, email, name, role, password_hash, oauth_provider, oauth_id, totp_secret, totp_enabled, active, created_at, updated_at`

// normalizeEmail lowercases an email so storage and lookups agree
// regardless of the case a caller typed it in; email is case-insensitive
// per the unique index on lower(email) in migrations/0002_users.sql.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a local, password-authenticated user. The password is
// hashed with argon2id before storage.
func (r *UserRepository) Create(ctx context.Context, in models.UserCreate) (*models.User, error) {
	if !in.Role.Valid() {
		return nil, apperrors.NewValidationError("invalid role")
	}
	hash := HashPassword(in.Password)

	u := &models.User{
		ID:           uuid.New().String(),
		Email:        normalizeEmail(in.Email),
		Name:         in.Name,
		Role:         in.Role,
		PasswordHash: &hash,
		Active:       true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	_, err := r.q.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO users (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, userColumns),
		u.ID, u.Email, u.Name, u.Role, u.PasswordHash, u.OAuthProvider, u.OAuthID,
		u.TOTPSecret, u.TOTPEnabled, u.Active, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return u, nil
}

// CreateOAuth inserts a user linked to an external identity provider, with
// no local password.
func (r *UserRepository) CreateOAuth(ctx context.Context, email, name, provider, oauthID string) (*models.User, error) {
	u := &models.User{
		ID:            uuid.New().String(),
		Email:         normalizeEmail(email),
		Name:          name,
		Role:          models.RoleUser,
		OAuthProvider: &provider,
		OAuthID:       &oauthID,
		Active:        true,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	_, err := r.q.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO users (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, userColumns),
		u.ID, u.Email, u.Name, u.Role, u.PasswordHash, u.OAuthProvider, u.OAuthID,
		u.TOTPSecret, u.TOTPEnabled, u.Active, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return u, nil
}

// FindByID returns a user by id, or nil if not found.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var u *models.User
	err := withReadRetry(ctx, func() error {
		row := r.q.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns), id)
		var scanErr error
		u, scanErr = scanUser(row)
		return scanErr
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("db-user-find", err)
	}
	return u, nil
}

// FindByEmail is the login lookup path.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	var u *models.User
	err := withReadRetry(ctx, func() error {
		row := r.q.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns), email)
		var scanErr error
		u, scanErr = scanUser(row)
		return scanErr
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("db-user-find-email", err)
	}
	return u, nil
}

// FindByOAuth looks up a user by (provider, oauthID) pair.
func (r *UserRepository) FindByOAuth(ctx context.Context, provider, oauthID string) (*models.User, error) {
	var u *models.User
	err := withReadRetry(ctx, func() error {
		row := r.q.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM users WHERE oauth_provider = $1 AND oauth_id = $2`, userColumns), provider, oauthID)
		var scanErr error
		u, scanErr = scanUser(row)
		return scanErr
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("db-user-find-oauth", err)
	}
	return u, nil
}

// Update applies a partial update.
func (r *UserRepository) Update(ctx context.Context, id string, in models.UserUpdate) (*models.User, error) {
	existing, err := r.FindByID(ctx, id)
	if err != nil || existing == nil {
		return existing, err
	}
	if in.Name != nil {
		existing.Name = *in.Name
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, apperrors.NewValidationError("invalid role")
		}
		existing.Role = *in.Role
	}
	if in.Active != nil {
		existing.Active = *in.Active
	}
	existing.UpdatedAt = time.Now()

	_, err = r.q.ExecContext(ctx, `
		UPDATE users SET name = $2, role = $3, active = $4, updated_at = $5 WHERE id = $1
	`, existing.ID, existing.Name, existing.Role, existing.Active, existing.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return existing, nil
}

// SetPassword replaces a user's password hash directly (password reset).
func (r *UserRepository) SetPassword(ctx context.Context, id, newPassword string) error {
	hash := HashPassword(newPassword)
	res, err := r.q.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return mapWriteError(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("user")
	}
	return nil
}

// SetTOTPSecret enables or disables TOTP for a user; pass secret="" to disable.
func (r *UserRepository) SetTOTPSecret(ctx context.Context, id, secret string, enabled bool) error {
	var secretPtr *string
	if secret != "" {
		secretPtr = &secret
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE users SET totp_secret = $2, totp_enabled = $3, updated_at = now() WHERE id = $1
	`, id, secretPtr, enabled)
	if err != nil {
		return mapWriteError(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("user")
	}
	return nil
}

// Delete removes a user. A user referenced by any audit_log row is never
// hard-deleted — it is soft-deleted by marking it inactive, so the audit
// trail keeps a stable user_id to report against. audit_log.user_id
// carries no foreign key (an audit entry must survive user deletion), so
// this check is the only thing standing between a dangling audit row and
// a hard delete. A user with no audit history is hard-deleted outright.
func (r *UserRepository) Delete(ctx context.Context, id string) (bool, error) {
	var referenced bool
	err := withReadRetry(ctx, func() error {
		return r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM audit_log WHERE user_id = $1)`, id).Scan(&referenced)
	})
	if err != nil {
		return false, apperrors.NewInternalError("db-user-delete-check", err)
	}

	if referenced {
		res, err := r.q.ExecContext(ctx, `UPDATE users SET active = false, updated_at = now() WHERE id = $1`, id)
		if err != nil {
			return false, mapWriteError(err)
		}
		n, _ := res.RowsAffected()
		return n > 0, nil
	}

	res, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, mapWriteError(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List returns a page of users, optionally filtered by role.
func (r *UserRepository) List(ctx context.Context, params models.ListParams) ([]*models.User, models.Pagination, error) {
	if err := validatePagination(params.Page, params.Limit); err != nil {
		return nil, models.Pagination{}, err
	}
	orderBy, err := normalizeSort(params.SortBy, params.SortOrder, "created_at")
	if err != nil {
		return nil, models.Pagination{}, err
	}

	where := ""
	args := []interface{}{}
	if role, ok := params.Filters["role"]; ok && role != "" {
		args = append(args, role)
		where = fmt.Sprintf("WHERE role = $%d", len(args))
	}

	var total int64
	err = withReadRetry(ctx, func() error {
		return r.q.QueryRowContext(ctx, "SELECT count(*) FROM users "+where, args...).Scan(&total)
	})
	if err != nil {
		return nil, models.Pagination{}, apperrors.NewInternalError("db-user-count", err)
	}

	offset := (params.Page - 1) * params.Limit
	args = append(args, params.Limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM users %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		userColumns, where, orderBy, len(args)-1, len(args))

	var out []*models.User
	err = withReadRetry(ctx, func() error {
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			out = append(out, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, models.Pagination{}, apperrors.NewInternalError("db-user-list", err)
	}
	return out, models.NewPagination(params.Page, params.Limit, total), nil
}

// --- password hashing: argon2id, memory-hard per the operator's compliance ---

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// HashPassword derives an argon2id hash encoded as
// argon2id$<memory>$<time>$<threads>$<salt-b64>$<hash-b64>.
func HashPassword(password string) string {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		panic(fmt.Sprintf("db: generate salt: %v", err))
	}
	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("argon2id$%d$%d$%d$%s$%s",
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

// VerifyPassword checks a plaintext password against an encoded argon2id hash.
func VerifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "argon2id" {
		return false
	}
	var memory, timeParam, threads uint32
	if _, err := fmt.Sscanf(parts[1], "%d", &memory); err != nil {
		return false
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &timeParam); err != nil {
		return false
	}
	if _, err := fmt.Sscanf(parts[3], "%d", &threads); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, timeParam, memory, uint8(threads), uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
