package server

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Error types for structured error handling
type ErrorType string

const (
	ErrorTypeDocumentLoad       ErrorType = "document_load"
	ErrorTypeDocumentValidation ErrorType = "document_validation"
	ErrorTypeCatalogBuild       ErrorType = "catalog_build"
	ErrorTypeTokenFetch         ErrorType = "token_fetch"
	ErrorTypeProxyCall          ErrorType = "proxy_call"
	ErrorTypeUnknownTool        ErrorType = "unknown_tool"
	ErrorTypeDatabase           ErrorType = "database"
	ErrorTypeConfiguration      ErrorType = "configuration"
	ErrorTypeInternal           ErrorType = "internal"
)

// ServerError represents a structured error with context
type ServerError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp int64     `json:"timestamp"`

	cause error
}

// Error returns the message alone for the per-call types, since it is shown
// verbatim to the calling agent.
func (e *ServerError) Error() string {
	switch e.Type {
	case ErrorTypeTokenFetch, ErrorTypeProxyCall, ErrorTypeUnknownTool:
		return e.Message
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is and errors.As.
func (e *ServerError) Unwrap() error {
	return e.cause
}

// NewError creates a new ServerError
func NewError(errType ErrorType, message string, details string) *ServerError {
	return &ServerError{
		Type:      errType,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Unix(),
	}
}

// Wrap wraps a standard error as a ServerError
func Wrap(err error, errType ErrorType, message string) *ServerError {
	if err == nil {
		return nil
	}

	serr := NewError(errType, message, err.Error())
	serr.cause = err
	return serr
}

// LogError logs the error with a level matching its type.
func (e *ServerError) LogError(logger *zap.Logger) {
	fields := []zap.Field{zap.String("type", string(e.Type))}
	if e.Details != "" {
		fields = append(fields, zap.String("details", e.Details))
	}

	switch e.Type {
	case ErrorTypeCatalogBuild, ErrorTypeDocumentValidation:
		logger.Warn(e.Message, fields...)
	case ErrorTypeUnknownTool:
		logger.Info(e.Message, fields...)
	default:
		logger.Error(e.Message, fields...)
	}
}

// IsType checks if the error, or one it wraps, is a ServerError of the given type
func IsType(err error, errType ErrorType) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Type == errType
	}
	return false
}

// GetType returns the error type if it's a ServerError, otherwise returns ErrorTypeInternal
func GetType(err error) ErrorType {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Type
	}
	return ErrorTypeInternal
}
