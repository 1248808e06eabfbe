// Package mcp implements the Model Context Protocol tool dispatch surface
// for codewitness.
package mcp

import (
	"context"
	"errors"
	"fmt"

	cwerrors "github.com/codewitness/codewitness/internal/errors"
)

// MCP error codes for codewitness, alongside the standard JSON-RPC ones.
const (
	ErrCodeNotFound        = -32001
	ErrCodeEmbeddingFailed = -32002
	ErrCodeTimeout         = -32003

	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for tool-dispatch-layer use.
var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidParams    = errors.New("invalid parameters")
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts an internal error into an MCPError, preferring the
// five-kind WitnessError taxonomy when present.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var cwErr *cwerrors.WitnessError
	if errors.As(err, &cwErr) {
		return mapWitnessError(cwErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{Code: ErrCodeInvalidParams, Message: "Invalid parameters."}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Resource not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
	}
}

func mapWitnessError(ae *cwerrors.WitnessError) *MCPError {
	message := ae.Message
	if ae.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ae.Message, ae.Suggestion)
	}

	switch ae.Category {
	case cwerrors.CategoryConfig:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	case cwerrors.CategoryStorage:
		if ae.Code == cwerrors.ErrCodeStorageNotFound {
			return &MCPError{Code: ErrCodeNotFound, Message: message}
		}
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	case cwerrors.CategoryEmbedding:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case cwerrors.CategoryWatcher:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	default:
		if ae.Code == cwerrors.ErrCodeInvalidInput {
			return &MCPError{Code: ErrCodeInvalidParams, Message: message}
		}
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}

// NewInvalidParamsError creates an error for invalid tool parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for an unknown tool name.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}
