// Package mcp exposes search, project indexing and queue status as Model
// Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeIndexNotFound indicates no index exists for the project.
	ErrCodeIndexNotFound = -32001

	// ErrCodeEmbeddingFailed indicates embedding generation failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a file no longer exists on disk.
	ErrCodeFileNotFound = -32004

	// ErrCodeFileTooLarge indicates a file is too large to process.
	ErrCodeFileTooLarge = -32005

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrResourceNotFound indicates the requested resource does not exist.
var ErrResourceNotFound = errors.New("resource not found")

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var he *herrors.HybridError
	if errors.As(err, &he) {
		return mapHybridError(he)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Resource not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

func mapHybridError(he *herrors.HybridError) *MCPError {
	message := he.Message
	if he.Suggestion != "" {
		message = fmt.Sprintf("%s %s", he.Message, he.Suggestion)
	}

	code := ErrCodeInternalError
	switch he.Category {
	case herrors.CategoryValidation:
		code = ErrCodeInvalidParams
	case herrors.CategoryIO:
		switch he.Code {
		case herrors.ErrCodeFileNotFound:
			code = ErrCodeFileNotFound
		case herrors.ErrCodeFileTooLarge:
			code = ErrCodeFileTooLarge
		}
	case herrors.CategoryStorage:
		switch he.Code {
		case herrors.ErrCodeCollectionNotFound, herrors.ErrCodeStorageNotReady, herrors.ErrCodeCorruptIndex:
			code = ErrCodeIndexNotFound
		}
	case herrors.CategoryInternal:
		if he.Code == herrors.ErrCodeEmbeddingFailed {
			code = ErrCodeEmbeddingFailed
		}
	}
	return &MCPError{Code: code, Message: message}
}
