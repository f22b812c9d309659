// Package shared contains common domain errors and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Catalogue errors
	ErrAmbiguousSynonym = errors.New("ambiguous synonym")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "directory", "resolution", "access"
	Op      string // Operation that failed, e.g., "Create", "Update"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Directory domain errors
var (
	ErrStudentNotFound      = NewDomainError("directory", "Find", ErrNotFound, "student not found")
	ErrStudentAlreadyExists = NewDomainError("directory", "Create", ErrAlreadyExists, "student already exists")
	ErrTelegramHandleTaken  = NewDomainError("directory", "Save", ErrAlreadyExists, "telegram handle already belongs to another student")
	ErrMissingGivenName     = NewDomainError("directory", "Create", ErrEmptyValue, "student requires at least one given name")
	ErrInvalidTelegramID    = NewDomainError("directory", "Validate", ErrInvalidID, "invalid Telegram ID")
	ErrInvalidGrade         = NewDomainError("directory", "Validate", ErrValueOutOfRange, "grade must be between 0 and 100")
	ErrInvalidYear          = NewDomainError("directory", "Validate", ErrValueOutOfRange, "admission year out of range")
	ErrInvalidBool          = NewDomainError("directory", "Validate", ErrInvalidFormat, "value is not a recognizable yes/no")
)

// Field catalogue errors
var (
	ErrFieldNotFound     = NewDomainError("catalog", "Find", ErrNotFound, "field definition not found")
	ErrDuplicateField    = NewDomainError("catalog", "Register", ErrAmbiguousSynonym, "field declared more than once")
	ErrInvalidFieldClass = NewDomainError("catalog", "Validate", ErrInvalidInput, "unknown field classification")
)

// Import errors
var (
	ErrImportInProgress = NewDomainError("import", "Run", ErrServiceUnavailable, "another import is running")
	ErrNoImportRows     = NewDomainError("import", "Run", ErrEmptyValue, "the file has no data rows")
)

// Access errors
var (
	ErrAccessDenied  = NewDomainError("access", "Check", ErrForbidden, "user is not allowed to use the directory")
	ErrAdminRequired = NewDomainError("access", "Check", ErrForbidden, "operation requires admin role")
	ErrInvalidInvite = NewDomainError("access", "Redeem", ErrUnauthorized, "invite code is not valid")
)

// External service errors
var (
	ErrTelegramAPIFailed = NewDomainError("telegram", "Send", ErrExternalService, "Telegram API request failed")
	ErrFileTooLarge      = NewDomainError("telegram", "Download", ErrValueOutOfRange, "file exceeds size limit")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsAmbiguousSynonym checks if the field catalogue has colliding labels.
func IsAmbiguousSynonym(err error) bool {
	return errors.Is(err, ErrAmbiguousSynonym)
}

// IsForbidden checks if the error is an access error.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden) || errors.Is(err, ErrUnauthorized)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
