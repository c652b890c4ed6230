package errors

import (
	"errors"
	"fmt"
)

// Domain error types for business logic

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Pipeline-specific errors

var (
	// ErrExtractionFailed indicates PDF extraction failed after all fallbacks
	ErrExtractionFailed = errors.New("document extraction failed")

	// ErrAgentInit indicates an agent could not be initialized
	ErrAgentInit = errors.New("agent initialization failed")

	// ErrEmptyOutput indicates an agent produced no usable output
	ErrEmptyOutput = errors.New("agent output empty")

	// ErrOutputInvalid indicates an agent's output failed its own validation
	ErrOutputInvalid = errors.New("agent output invalid")

	// ErrMaxAttempts indicates the retry budget for a node was exhausted
	ErrMaxAttempts = errors.New("max attempts exhausted")

	// ErrDocumentFatal indicates a single document cannot be processed
	ErrDocumentFatal = errors.New("document processing failed")

	// ErrStateCorrupt indicates unrecoverable workflow state corruption
	ErrStateCorrupt = errors.New("workflow state corrupt")
)

// Retrieval-specific errors

var (
	// ErrVectorStoreUnavailable indicates the persistent vector backend is unreachable
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")

	// ErrRerankerUnavailable indicates the cross-encoder model could not be loaded
	ErrRerankerUnavailable = errors.New("reranker unavailable")

	// ErrEmbeddingFailed indicates the embedding provider call failed
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrRateLimitExceeded indicates an LLM API rate limit was hit
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error with section-specific details
type ValidationError struct {
	Section string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: section '%s': %s (value: %v)", e.Section, e.Message, e.Value)
}

// NewValidationError creates a new validation error
func NewValidationError(section, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Section: section,
		Message: message,
		Value:   value,
	}
}

// MultiError wraps multiple errors
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors (%d): %v", len(m.Errors), m.Errors[0])
}

// Add adds an error to the list
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ToError returns the MultiError as an error, or nil if no errors
func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
