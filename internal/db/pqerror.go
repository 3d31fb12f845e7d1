package db

import (
	"errors"

	"github.com/lib/pq"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
)

// PostgreSQL error codes this layer distinguishes; see
// https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

// mapWriteError translates a raw driver error from an insert/update into
// the typed error a repository's create/update contract promises:
// UniqueViolation, FKViolation, and CheckViolation all surface as
// apperrors.ConflictError (409) or ValidationError depending on kind;
// anything else is wrapped as an opaque internal error.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return apperrors.NewConflictError("unique constraint violated: " + pqErr.Constraint)
		case pqForeignKeyViolation:
			return apperrors.NewValidationError("foreign key constraint violated: " + pqErr.Constraint)
		case pqCheckViolation:
			return apperrors.NewValidationError("check constraint violated: " + pqErr.Constraint)
		}
	}
	return apperrors.NewInternalError("db-write", err)
}
