package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError with the same code and message, so wrapped
// causes still compare equal to the sentinels below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrMalformedRecord    = NewDomainError(ErrCodeValidation, "malformed log record")
	ErrInvalidOutcomeKind = NewDomainError(ErrCodeValidation, "invalid outcome kind")
	ErrInvalidDate        = NewDomainError(ErrCodeValidation, "invalid date, expected dd-mm-yyyy")
	ErrInvalidDateRange   = NewDomainError(ErrCodeValidation, "invalid date range: from is after to")
)

// Not found errors
var (
	ErrEntryNotFound     = NewDomainError(ErrCodeNotFound, "entry not found")
	ErrWatermarkNotFound = NewDomainError(ErrCodeNotFound, "watermark not found")
)

// Authorization errors
var (
	ErrInvalidAPIToken = NewDomainError(ErrCodeUnauthorized, "invalid api token")
)

// Operation errors
var (
	ErrScrollSlotBusy     = NewDomainError(ErrCodeConflict, "an extraction run already holds the scroll slot")
	ErrFakeDataProduction = NewDomainError(ErrCodeInvalidOperation, "fake data cannot be seeded in production")
)
