package db

import (
	"regexp"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// validateIdentifier enforces the safety invariant that any column or sort
// key originating from caller input is checked against an allowlist
// pattern before being embedded in SQL, regardless of how it got there.
func validateIdentifier(name string) error {
	if name == "" || !identifierPattern.MatchString(name) {
		return apperrors.NewInvalidIdentifier(name)
	}
	return nil
}

// validatePagination enforces page >= 1 and 1 <= limit <= 1000.
func validatePagination(page, limit int) error {
	if page < models.MinPage {
		return apperrors.NewInvalidPagination("page must be >= 1")
	}
	if limit < models.MinLimit || limit > models.MaxLimit {
		return apperrors.NewInvalidPagination("limit must be between 1 and 1000")
	}
	return nil
}

// normalizeSort validates sort_by/sort_order and returns a safe ORDER BY
// fragment, defaulting to created_at/DESC when unset.
func normalizeSort(sortBy, sortOrder, defaultColumn string) (string, error) {
	if sortBy == "" {
		sortBy = defaultColumn
	}
	if err := validateIdentifier(sortBy); err != nil {
		return "", err
	}
	order := "DESC"
	if sortOrder != "" {
		if sortOrder != "asc" && sortOrder != "ASC" && sortOrder != "desc" && sortOrder != "DESC" {
			return "", apperrors.NewValidationError("sort_order must be asc or desc")
		}
		if sortOrder == "asc" || sortOrder == "ASC" {
			order = "ASC"
		}
	}
	return sortBy + " " + order, nil
}

const maxBatchSize = 1000

// validateBatchSize enforces the 1000-row cap on createBatch.
func validateBatchSize(n int) error {
	if n > maxBatchSize {
		return apperrors.NewValidationError("createBatch: batch exceeds 1000 rows")
	}
	return nil
}

// chunkIndices splits total rows into [start, end) index spans of at most
// size rows, implementing
// createBatchAuto's chunking behavior for any row type.
func chunkIndices(total, size int) [][2]int {
	if size <= 0 || size > maxBatchSize {
		size = maxBatchSize
	}
	var chunks [][2]int
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		chunks = append(chunks, [2]int{start, end})
	}
	return chunks
}
