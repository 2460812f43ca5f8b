package errors

import (
	stderrors "errors"
	"fmt"
)

// HybridError is the structured error type for hybridindex.
// It carries enough context for logging, CLI output and tool responses.
type HybridError struct {
	// Code is the unique error code (e.g., "ERR_301_INVALID_ALPHA").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category derived from the code.
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *HybridError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *HybridError) Unwrap() error {
	return e.Cause
}

// Is matches by code so sentinel values work with errors.Is.
func (e *HybridError) Is(target error) bool {
	if t, ok := target.(*HybridError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *HybridError) WithDetail(key, value string) *HybridError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *HybridError) WithSuggestion(suggestion string) *HybridError {
	e.Suggestion = suggestion
	return e
}

// New creates a new HybridError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *HybridError {
	return &HybridError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a HybridError from an existing error.
func Wrap(code string, err error) *HybridError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *HybridError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *HybridError {
	return New(ErrCodeInvalidInput, message, cause)
}

// StorageError creates a storage-related error.
func StorageError(message string, cause error) *HybridError {
	return New(ErrCodeStorageFailed, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *HybridError {
	return New(ErrCodeInternal, message, cause)
}

// as finds the first HybridError in err's chain.
func as(err error) (*HybridError, bool) {
	var he *HybridError
	if stderrors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if he, ok := as(err); ok {
		return he.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if he, ok := as(err); ok {
		return he.Severity == SeverityFatal
	}
	return false
}

// IsValidation reports whether err is a caller input error.
func IsValidation(err error) bool {
	if he, ok := as(err); ok {
		return he.Category == CategoryValidation
	}
	return false
}

// GetCode extracts the error code, or "" when err carries none.
func GetCode(err error) string {
	if he, ok := as(err); ok {
		return he.Code
	}
	return ""
}

// GetCategory extracts the category, or "" when err carries none.
func GetCategory(err error) Category {
	if he, ok := as(err); ok {
		return he.Category
	}
	return ""
}
