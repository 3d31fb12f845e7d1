// Package apperrors provides the typed error taxonomy used across
// BugSpotter's service layer and the HTTP status mapping for each type.
//
// Repositories, storage, queue, and retention code return one of the
// typed errors defined here (or wrap an underlying error with one).
// The HTTP layer (internal/handlers' respondError) never inspects a
// raw error string to decide a status code — it walks a strategy table
// of matchers in order, so supporting a new error kind means appending
// a table entry, never touching the existing ones.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the common shape every typed error implements through
// embedding: a machine-readable Code, a user-safe Message, and optional
// Details. Details stays on the error value; the HTTP response envelope
// does not include it.
type AppError struct {
	Code    string
	Message string
	Details string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func newErr(code, message string) *AppError { return &AppError{Code: code, Message: message} }

// ValidationError — request shape, missing fields, out-of-range. 400.
type ValidationError struct{ *AppError }

func NewValidationError(message string) *ValidationError {
	return &ValidationError{newErr("VALIDATION_ERROR", message)}
}

// InvalidIdentifier is a ValidationError raised when a caller-supplied
// column/sort identifier fails the `^[A-Za-z0-9_]+$` allowlist.
func NewInvalidIdentifier(identifier string) *ValidationError {
	return &ValidationError{&AppError{Code: "INVALID_IDENTIFIER", Message: fmt.Sprintf("invalid identifier: %q", identifier)}}
}

// InvalidPagination is a ValidationError raised when page/limit fall
// outside [1,∞)/[1,1000].
func NewInvalidPagination(message string) *ValidationError {
	return &ValidationError{&AppError{Code: "INVALID_PAGINATION", Message: message}}
}

// AuthenticationError — missing/invalid credential. 401.
type AuthenticationError struct{ *AppError }

func NewAuthenticationError(message string) *AuthenticationError {
	return &AuthenticationError{newErr("AUTHENTICATION_ERROR", message)}
}

// AuthorizationError — authenticated but not permitted. 403.
type AuthorizationError struct{ *AppError }

func NewAuthorizationError(message string) *AuthorizationError {
	return &AuthorizationError{newErr("AUTHORIZATION_ERROR", message)}
}

// NotFoundError — resource absent. 404.
type NotFoundError struct{ *AppError }

func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{newErr("NOT_FOUND", fmt.Sprintf("%s not found", resource))}
}

// ConflictError — unique violation, already-initialized setup. 409.
type ConflictError struct{ *AppError }

func NewConflictError(message string) *ConflictError {
	return &ConflictError{newErr("CONFLICT", message)}
}

// ResourceBusyError — pool exhausted, queue backpressure. 503.
type ResourceBusyError struct{ *AppError }

func NewResourceBusyError(message string) *ResourceBusyError {
	return &ResourceBusyError{newErr("RESOURCE_BUSY", message)}
}

// ComplianceViolationError — retention policy rejects configuration. 422.
type ComplianceViolationError struct{ *AppError }

func NewComplianceViolationError(message string) *ComplianceViolationError {
	return &ComplianceViolationError{newErr("COMPLIANCE_VIOLATION", message)}
}

// StorageError family.
type StorageError struct{ *AppError }

func NewStorageConnectionError(err error) *StorageError {
	return &StorageError{&AppError{Code: "STORAGE_CONNECTION_ERROR", Message: "storage backend unreachable", Err: err}}
}

func NewStorageUploadError(err error) *StorageError {
	return &StorageError{&AppError{Code: "STORAGE_UPLOAD_ERROR", Message: "storage upload failed", Err: err}}
}

func NewStorageNotFoundError(key string) *StorageError {
	return &StorageError{&AppError{Code: "STORAGE_NOT_FOUND", Message: fmt.Sprintf("object %q not found", key)}}
}

func NewStorageValidationError(message string) *StorageError {
	return &StorageError{&AppError{Code: "STORAGE_VALIDATION_ERROR", Message: message}}
}

// QueryTimeoutError — DB query exceeded its deadline. Non-retryable. 503.
type QueryTimeoutError struct{ *AppError }

func NewQueryTimeoutError(err error) *QueryTimeoutError {
	return &QueryTimeoutError{&AppError{Code: "QUERY_TIMEOUT", Message: "database query timed out", Err: err}}
}

// QueueUnavailableError — queue backend unreachable. 503.
type QueueUnavailableError struct{ *AppError }

func NewQueueUnavailableError(err error) *QueueUnavailableError {
	return &QueueUnavailableError{&AppError{Code: "QUEUE_UNAVAILABLE", Message: "queue backend unavailable", Err: err}}
}

// UnknownQueueError is raised by addJob/pause/resume for an unregistered
// queue name.
type UnknownQueueError struct{ *AppError }

func NewUnknownQueueError(name string) *UnknownQueueError {
	return &UnknownQueueError{&AppError{Code: "UNKNOWN_QUEUE", Message: fmt.Sprintf("unknown queue %q", name)}}
}

// ConfirmationRequiredError — a mutating apply was requested without confirm=true.
type ConfirmationRequiredError struct{ *AppError }

func NewConfirmationRequiredError() *ConfirmationRequiredError {
	return &ConfirmationRequiredError{newErr("CONFIRMATION_REQUIRED", "confirm=true is required to apply a non-dry-run retention pass")}
}

// AlreadyInitializedError — setup was already completed. 409.
type AlreadyInitializedError struct{ *AppError }

func NewAlreadyInitializedError() *AlreadyInitializedError {
	return &AlreadyInitializedError{newErr("ALREADY_INITIALIZED", "instance has already completed setup")}
}

// QueueBackpressureError — ingestion queue depth exceeds the configured threshold. 503.
type QueueBackpressureError struct{ *AppError }

func NewQueueBackpressureError(queue string) *QueueBackpressureError {
	return &QueueBackpressureError{&AppError{Code: "QUEUE_BACKPRESSURE", Message: fmt.Sprintf("queue %q is over its backpressure threshold", queue)}}
}

// PermanentError marks a worker failure that must not be retried
// (e.g., malformed image). Transient errors are returned unwrapped and
// retried per the queue's backoff policy.
type PermanentError struct{ *AppError }

func NewPermanentError(message string, err error) *PermanentError {
	return &PermanentError{&AppError{Code: "PERMANENT_ERROR", Message: message, Err: err}}
}

// InternalError — unexpected. 500, opaque to the client.
type InternalError struct {
	*AppError
	ErrorID string
}

func NewInternalError(errorID string, err error) *InternalError {
	return &InternalError{AppError: &AppError{Code: "INTERNAL_ERROR", Message: "an unexpected error occurred", Err: err}, ErrorID: errorID}
}

// --- strategy table ---

// matcher pairs a predicate over an error with the HTTP status it maps to.
// The error mapping middleware walks entries in order and uses the first
// match; the message/code shown to the client come from the error itself.
type matcher struct {
	matches func(error) bool
	status  int
}

var strategyTable = []matcher{
	{func(e error) bool { var t *ValidationError; return errors.As(e, &t) }, http.StatusBadRequest},
	{func(e error) bool { var t *AuthenticationError; return errors.As(e, &t) }, http.StatusUnauthorized},
	{func(e error) bool { var t *AuthorizationError; return errors.As(e, &t) }, http.StatusForbidden},
	{func(e error) bool { var t *NotFoundError; return errors.As(e, &t) }, http.StatusNotFound},
	{func(e error) bool { var t *ConflictError; return errors.As(e, &t) }, http.StatusConflict},
	{func(e error) bool { var t *AlreadyInitializedError; return errors.As(e, &t) }, http.StatusConflict},
	{func(e error) bool { var t *ComplianceViolationError; return errors.As(e, &t) }, http.StatusUnprocessableEntity},
	{func(e error) bool { var t *ResourceBusyError; return errors.As(e, &t) }, http.StatusServiceUnavailable},
	{func(e error) bool { var t *QueryTimeoutError; return errors.As(e, &t) }, http.StatusServiceUnavailable},
	{func(e error) bool { var t *QueueUnavailableError; return errors.As(e, &t) }, http.StatusServiceUnavailable},
	{func(e error) bool { var t *QueueBackpressureError; return errors.As(e, &t) }, http.StatusServiceUnavailable},
	{func(e error) bool { var t *UnknownQueueError; return errors.As(e, &t) }, http.StatusBadRequest},
	{func(e error) bool { var t *ConfirmationRequiredError; return errors.As(e, &t) }, http.StatusBadRequest},
	{func(e error) bool { var t *PermanentError; return errors.As(e, &t) }, http.StatusUnprocessableEntity},
	{func(e error) bool { var t *StorageError; return errors.As(e, &t) }, http.StatusBadGateway},
	{func(e error) bool { var t *InternalError; return errors.As(e, &t) }, http.StatusInternalServerError},
}

// StatusAndCode returns the HTTP status and machine-readable code for err,
// consulting the strategy table in order. Unrecognized errors map to 500
// with the opaque "INTERNAL_ERROR" code.
func StatusAndCode(err error) (status int, code string, message string) {
	for _, m := range strategyTable {
		if m.matches(err) {
			var ae *AppError
			if errors.As(err, &ae) {
				return m.status, ae.Code, ae.Message
			}
			return m.status, "UNKNOWN", err.Error()
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred"
}
