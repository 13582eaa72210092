package stashbase

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error surfaced by the store.
type ErrorType string

const (
	ErrorTypeInput       ErrorType = "input"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeUnsafeQuery ErrorType = "unsafe_query"
	ErrorTypeStorage     ErrorType = "storage"
	ErrorTypeInternal    ErrorType = "internal"
)

// Error codes used across the handler surface.
const (
	ErrCodeInvalidCollectionName = "INVALID_COLLECTION_NAME"
	ErrCodeReservedName          = "RESERVED_NAME"
	ErrCodeCollectionExists      = "COLLECTION_ALREADY_EXISTS"
	ErrCodeCollectionNotFound    = "COLLECTION_NOT_FOUND"
	ErrCodeDocumentNotFound      = "DOCUMENT_NOT_FOUND"
	ErrCodeInvalidFieldDef       = "INVALID_FIELD_DEFINITION"
	ErrCodeDuplicateField        = "DUPLICATE_FIELD"
	ErrCodeRequiredNewField      = "REQUIRED_NEW_FIELD"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeUnsafeFieldName       = "UNSAFE_FIELD_NAME"
	ErrCodeQueryFailed           = "QUERY_FAILED"
	ErrCodeStorageFailed         = "STORAGE_FAILED"
	ErrCodeConnectionFailed      = "CONNECTION_FAILED"
)

// StoreError is the structured error type surfaced by the metadata store,
// the query builder, and the document handlers. Validation failures carry
// the per-field messages in Details.
type StoreError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Details []string  `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// WithCause attaches an underlying cause.
func (e *StoreError) WithCause(cause error) *StoreError {
	e.Cause = cause
	return e
}

// NewInputError creates an input error detected before any storage mutation.
func NewInputError(code, message string) *StoreError {
	return &StoreError{Type: ErrorTypeInput, Code: code, Message: message}
}

// NewValidationError creates a schema-validation error carrying one message
// per violated field.
func NewValidationError(details []string) *StoreError {
	return &StoreError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeValidationFailed,
		Message: "Validation failed",
		Details: details,
	}
}

// NewCollectionNotFoundError creates a not-found error for a collection.
func NewCollectionNotFoundError(name string) *StoreError {
	return &StoreError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeCollectionNotFound,
		Message: fmt.Sprintf("collection '%s' does not exist", name),
	}
}

// NewDocumentNotFoundError creates a not-found error for a document.
func NewDocumentNotFoundError(collection, id string) *StoreError {
	return &StoreError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeDocumentNotFound,
		Message: fmt.Sprintf("document '%s' not found in collection '%s'", id, collection),
	}
}

// NewUnsafeFieldError creates the error raised when a filter or sort field
// name fails the identifier-safety check. Raised before any query text is
// constructed.
func NewUnsafeFieldError(field string) *StoreError {
	return &StoreError{
		Type:    ErrorTypeUnsafeQuery,
		Code:    ErrCodeUnsafeFieldName,
		Message: fmt.Sprintf("unsafe field name '%s'", field),
	}
}

// NewStorageError wraps an underlying storage/transport failure.
func NewStorageError(message string, cause error) *StoreError {
	return &StoreError{
		Type:    ErrorTypeStorage,
		Code:    ErrCodeStorageFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewConnectionError wraps a connection failure.
func NewConnectionError(message string, cause error) *StoreError {
	return &StoreError{
		Type:    ErrorTypeStorage,
		Code:    ErrCodeConnectionFailed,
		Message: message,
		Cause:   cause,
	}
}

// IsNotFound reports whether err is a not-found StoreError.
func IsNotFound(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Type == ErrorTypeNotFound
}

// IsValidation reports whether err is a validation StoreError.
func IsValidation(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Type == ErrorTypeValidation
}

// IsUnsafeQuery reports whether err is an unsafe-query StoreError.
func IsUnsafeQuery(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Type == ErrorTypeUnsafeQuery
}

// ToToolResult converts any handler error into the uniform result envelope.
// Validation errors keep their per-field detail list; everything else is
// surfaced as a plain error string.
func ToToolResult(err error) ToolResult {
	var se *StoreError
	if errors.As(err, &se) && se.Type == ErrorTypeValidation {
		return ValidationErrorResult(se.Details)
	}
	return ErrorResult(err.Error())
}
