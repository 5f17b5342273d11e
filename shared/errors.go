package shared

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryParsing       ErrorCategory = "parsing"
	ErrorCategoryProcessing    ErrorCategory = "processing"
	ErrorCategoryResource      ErrorCategory = "resource"
	ErrorCategoryTimeout       ErrorCategory = "timeout"
)

// ServiceError represents a standardized error with additional context.
// Adapters wrap transport and parse failures in ServiceError; the calendar
// service converts them into advisory strings at its error boundary.
type ServiceError struct {
	Category    ErrorCategory `json:"category"`
	Message     string        `json:"message"`
	Timestamp   time.Time     `json:"timestamp"`
	ServiceName string        `json:"service_name"`
	Operation   string        `json:"operation"`
	Retryable   bool          `json:"retryable"`
	Cause       error         `json:"-"` // Original error, not serialized
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Category, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error
func NewServiceError(category ErrorCategory, message, serviceName, operation string, retryable bool, cause error) *ServiceError {
	return &ServiceError{
		Category:    category,
		Message:     message,
		Timestamp:   time.Now(),
		ServiceName: serviceName,
		Operation:   operation,
		Retryable:   retryable,
		Cause:       cause,
	}
}

// NewNetworkError creates a network-category error for a failed fetch
func NewNetworkError(serviceName, operation string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryNetwork, "request failed", serviceName, operation, true, cause)
}

// NewParsingError creates a parsing-category error for malformed upstream data
func NewParsingError(serviceName, operation string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryParsing, "malformed upstream data", serviceName, operation, false, cause)
}

// LogError logs the error with structured fields
func (e *ServiceError) LogError() {
	logrus.WithFields(logrus.Fields{
		"error_category":   e.Category,
		"error_message":    e.Message,
		"service_name":     e.ServiceName,
		"operation":        e.Operation,
		"retryable":        e.Retryable,
		"underlying_error": e.Cause,
	}).Error("Service error occurred")
}

// AdvisoryString renders the error in the short form accumulated in
// calendar fetch metadata.
func (e *ServiceError) AdvisoryString() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s failed: %v", e.ServiceName, e.Operation, e.Cause)
	}
	return fmt.Sprintf("%s %s failed: %s", e.ServiceName, e.Operation, e.Message)
}
