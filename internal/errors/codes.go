// Package errors provides structured error handling for hindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Source/IO errors
//   - 3XX: Network errors (embedding service, vector store)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates source file and local state errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates embedding-service and vector-store errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates an unrecoverable error, the run must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the run can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199). All fatal: a bad configuration means the
	// whole run would misbehave, not just one file.
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"
	ErrCodeModelUnknown  = "ERR_102_MODEL_UNKNOWN"

	// Source/IO errors (200-299). Per-file: skip, warn, continue.
	ErrCodeSourceRead   = "ERR_201_SOURCE_READ"
	ErrCodeSourceParse  = "ERR_202_SOURCE_PARSE"
	ErrCodeTokenization = "ERR_203_TOKENIZATION"
	ErrCodeIndexLocked  = "ERR_204_INDEX_LOCKED"
	ErrCodeManifest     = "ERR_205_MANIFEST"

	// Network errors (300-399).
	ErrCodeEmbeddingFailed  = "ERR_301_EMBEDDING_FAILED"
	ErrCodeStoreUnavailable = "ERR_302_STORE_UNAVAILABLE"
	ErrCodeStoreUpsert      = "ERR_303_STORE_UPSERT"
	ErrCodeStoreQuery       = "ERR_304_STORE_QUERY"

	// Validation errors (400-499).
	ErrCodeDimensionMismatch = "ERR_401_DIMENSION_MISMATCH"
	ErrCodeInvalidInput      = "ERR_402_INVALID_INPUT"
	ErrCodeInvalidQuery      = "ERR_403_INVALID_QUERY"

	// Internal errors (500-599).
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "201" from "ERR_201_SOURCE_READ".
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeModelUnknown,
		ErrCodeStoreUnavailable, ErrCodeDimensionMismatch,
		ErrCodeIndexLocked:
		// Systemic misconfiguration or unreachable store: aborting beats
		// writing a half-wrong index.
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Retryable codes cover transient service failures (rate limits, timeouts,
// connection resets); everything else fails the operation on first error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbeddingFailed, ErrCodeStoreUpsert, ErrCodeStoreQuery:
		return true
	default:
		return false
	}
}
