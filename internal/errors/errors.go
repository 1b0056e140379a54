package errors

import (
	"fmt"
)

// HindexError is the structured error type for hindex.
// It carries enough context for logging, the end-of-run report, and user
// presentation without callers re-parsing message strings.
type HindexError struct {
	// Code is the unique error code (e.g. "ERR_201_SOURCE_READ").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *HindexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *HindexError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works across wrap layers.
func (e *HindexError) Is(target error) bool {
	if t, ok := target.(*HindexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *HindexError) WithDetail(key, value string) *HindexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
func (e *HindexError) WithSuggestion(suggestion string) *HindexError {
	e.Suggestion = suggestion
	return e
}

// New creates a new HindexError with the given code and message.
// Category, severity, and the retryable flag are derived from the code.
func New(code string, message string, cause error) *HindexError {
	return &HindexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a HindexError from an existing error.
// Returns nil if err is nil.
func Wrap(code string, err error) *HindexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a fatal configuration error.
func ConfigError(message string, cause error) *HindexError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// SourceError creates a per-file source read error (skip, warn, continue).
func SourceError(message string, cause error) *HindexError {
	return New(ErrCodeSourceRead, message, cause)
}

// EmbeddingError creates a retryable embedding-service error.
func EmbeddingError(message string, cause error) *HindexError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// StoreError creates a retryable per-upsert vector-store error.
func StoreError(message string, cause error) *HindexError {
	return New(ErrCodeStoreUpsert, message, cause)
}

// DimensionError creates the fatal model/collection dimension mismatch error.
func DimensionError(message string) *HindexError {
	return New(ErrCodeDimensionMismatch, message, nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *HindexError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true only for HindexError values with the Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if he, ok := err.(*HindexError); ok {
		return he.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the whole run instead of skipping one file.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if he, ok := err.(*HindexError); ok {
		return he.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a HindexError.
// Returns empty string for foreign errors.
func GetCode(err error) string {
	if he, ok := err.(*HindexError); ok {
		return he.Code
	}
	return ""
}

// GetCategory extracts the category from a HindexError.
func GetCategory(err error) Category {
	if he, ok := err.(*HindexError); ok {
		return he.Category
	}
	return ""
}
