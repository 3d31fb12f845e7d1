package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// ProjectRepository is the C1 repository for the Project entity: the
// tenant boundary every BugReport, RetentionPolicy, and API key belongs to.
type ProjectRepository struct {
	q Queryer
}

// GenerateAPIKey returns a new bgs_-prefixed key with 32+ bytes of CSPRNG
// entropy, base64url encoded.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("db: generate api key: %w", err)
	}
	return models.APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// ListAllIDs returns every project id, used by the retention scheduler to
// find projects with no explicit RetentionPolicy row (which fall back to
// the global default policy).
func (r *ProjectRepository) ListAllIDs(ctx context.Context) ([]string, error) {
	var out []string
	err := withReadRetry(ctx, func() error {
		rows, err := r.q.QueryContext(ctx, `SELECT id FROM projects ORDER BY created_at ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.NewInternalError("db-project-list-ids", err)
	}
	return out, nil
}

// Create inserts a new project, generating its API key.
func (r *ProjectRepository) Create(ctx context.Context, ownerID string, in models.ProjectCreate) (*models.Project, error) {
	apiKey, err := GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	p := &models.Project{
		ID:        uuid.New().String(),
		Name:      in.Name,
		APIKey:    apiKey,
		OwnerID:   ownerID,
		Settings:  in.Settings,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if p.Settings.IsNull() {
		p.Settings = models.RawJSON("{}")
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO projects (id, name, api_key, owner_id, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Name, p.APIKey, p.OwnerID, []byte(p.Settings), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return p, nil
}

func scanProject(row interface{ Scan(...interface{}) error }) (*models.Project, error) {
	p := &models.Project{}
	err := row.Scan(&p.ID, &p.Name, &p.APIKey, &p.OwnerID, &p.Settings, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// FindByID returns a project by id, or nil if not found.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*models.Project, error) {
	var p *models.Project
	err := withReadRetry(ctx, func() error {
		row := r.q.QueryRowContext(ctx, `
			SELECT id, name, api_key, owner_id, settings, created_at, updated_at
			FROM projects WHERE id = $1
		`, id)
		var scanErr error
		p, scanErr = scanProject(row)
		return scanErr
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("db-project-find", err)
	}
	return p, nil
}

// FindByAPIKey is the hot path for SDK ingestion authentication: an exact
// match lookup against projects.api_key.
func (r *ProjectRepository) FindByAPIKey(ctx context.Context, apiKey string) (*models.Project, error) {
	var p *models.Project
	err := withReadRetry(ctx, func() error {
		row := r.q.QueryRowContext(ctx, `
			SELECT id, name, api_key, owner_id, settings, created_at, updated_at
			FROM projects WHERE api_key = $1
		`, apiKey)
		var scanErr error
		p, scanErr = scanProject(row)
		return scanErr
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("db-project-find-key", err)
	}
	return p, nil
}

// FindByOwner lists every project owned by a given user, without pagination
// (used for authorization checks, not list endpoints).
func (r *ProjectRepository) FindByOwner(ctx context.Context, ownerID string) ([]*models.Project, error) {
	var out []*models.Project
	err := withReadRetry(ctx, func() error {
		rows, err := r.q.QueryContext(ctx, `
			SELECT id, name, api_key, owner_id, settings, created_at, updated_at
			FROM projects WHERE owner_id = $1 ORDER BY created_at DESC
		`, ownerID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			p, err := scanProject(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.NewInternalError("db-project-find-owner", err)
	}
	return out, nil
}

// Update applies a partial update and returns the updated row, or nil if
// the project doesn't exist.
func (r *ProjectRepository) Update(ctx context.Context, id string, in models.ProjectUpdate) (*models.Project, error) {
	existing, err := r.FindByID(ctx, id)
	if err != nil || existing == nil {
		return existing, err
	}
	if in.Name != nil {
		existing.Name = *in.Name
	}
	if in.Settings != nil {
		existing.Settings = *in.Settings
	}
	existing.UpdatedAt = time.Now()

	_, err = r.q.ExecContext(ctx, `
		UPDATE projects SET name = $2, settings = $3, updated_at = $4 WHERE id = $1
	`, existing.ID, existing.Name, []byte(existing.Settings), existing.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return existing, nil
}

// RegenerateAPIKey invalidates the prior key immediately and returns the
// new one. Only an admin or the project's owner may call this.
func (r *ProjectRepository) RegenerateAPIKey(ctx context.Context, id string) (string, error) {
	newKey, err := GenerateAPIKey()
	if err != nil {
		return "", err
	}
	res, err := r.q.ExecContext(ctx, `UPDATE projects SET api_key = $2, updated_at = now() WHERE id = $1`, id, newKey)
	if err != nil {
		return "", mapWriteError(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return "", apperrors.NewNotFoundError("project")
	}
	return newKey, nil
}

// Delete hard-deletes a project. Cascade to bug_reports/sessions/tickets
// is enforced at the schema level (ON DELETE CASCADE); callers are
// responsible for issuing the matching storage-layer deleteFolder call.
func (r *ProjectRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return false, mapWriteError(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List returns a page of projects, optionally filtered by owner_id.
func (r *ProjectRepository) List(ctx context.Context, params models.ListParams) ([]*models.Project, models.Pagination, error) {
	if err := validatePagination(params.Page, params.Limit); err != nil {
		return nil, models.Pagination{}, err
	}
	orderBy, err := normalizeSort(params.SortBy, params.SortOrder, "created_at")
	if err != nil {
		return nil, models.Pagination{}, err
	}

	where := ""
	args := []interface{}{}
	if ownerID, ok := params.Filters["owner_id"]; ok && ownerID != "" {
		args = append(args, ownerID)
		where = fmt.Sprintf("WHERE owner_id = $%d", len(args))
	}

	var total int64
	err = withReadRetry(ctx, func() error {
		return r.q.QueryRowContext(ctx, "SELECT count(*) FROM projects "+where, args...).Scan(&total)
	})
	if err != nil {
		return nil, models.Pagination{}, apperrors.NewInternalError("db-project-count", err)
	}

	offset := (params.Page - 1) * params.Limit
	args = append(args, params.Limit, offset)
	query := fmt.Sprintf(`
		SELECT id, name, api_key, owner_id, settings, created_at, updated_at
		FROM projects %s ORDER BY %s LIMIT $%d OFFSET $%d
	`, where, orderBy, len(args)-1, len(args))

	var out []*models.Project
	err = withReadRetry(ctx, func() error {
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			p, err := scanProject(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, models.Pagination{}, apperrors.NewInternalError("db-project-list", err)
	}
	return out, models.NewPagination(params.Page, params.Limit, total), nil
}
