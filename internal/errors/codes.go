// Package errors provides structured error handling for hybridindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (files, scanning)
//   - 3XX: Validation errors
//   - 4XX: Storage errors (lexical index, vector store, file map)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryValidation indicates invalid caller input.
	CategoryValidation Category = "VALIDATION"
	// CategoryStorage indicates index or store failures.
	CategoryStorage Category = "STORAGE"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound        = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission      = "ERR_202_FILE_PERMISSION"
	ErrCodeFileTooLarge        = "ERR_203_FILE_TOO_LARGE"
	ErrCodeScanFailed          = "ERR_204_SCAN_FAILED"
	ErrCodeUnsupportedFileType = "ERR_205_UNSUPPORTED_FILE_TYPE"
	ErrCodeDataDirLocked       = "ERR_206_DATA_DIR_LOCKED"

	// Validation errors (300-399)
	ErrCodeInvalidAlpha      = "ERR_301_INVALID_ALPHA"
	ErrCodeInvalidQuery      = "ERR_302_INVALID_QUERY"
	ErrCodeInvalidInput      = "ERR_303_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_304_DIMENSION_MISMATCH"

	// Storage errors (400-499)
	ErrCodeStorageFailed      = "ERR_401_STORAGE_FAILED"
	ErrCodeStorageNotReady    = "ERR_402_STORAGE_NOT_READY"
	ErrCodeCollectionExists   = "ERR_403_COLLECTION_EXISTS"
	ErrCodeCollectionNotFound = "ERR_404_COLLECTION_NOT_FOUND"
	ErrCodeCorruptIndex       = "ERR_405_CORRUPT_INDEX"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeExtractFailed   = "ERR_503_EXTRACT_FAILED"
	ErrCodeIndexFailed     = "ERR_504_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "101" from "ERR_101_CONFIG_NOT_FOUND"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryValidation
	case '4':
		return CategoryStorage
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeStorageNotReady:
		return SeverityFatal
	case ErrCodeUnsupportedFileType, ErrCodeCollectionExists:
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode reports codes where repeating the same call may succeed.
// Nothing in the core retries automatically; callers decide.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeDataDirLocked, ErrCodeEmbeddingFailed:
		return true
	default:
		return false
	}
}
