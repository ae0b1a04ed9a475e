// Package errors defines the structured error taxonomy used across the
// conversion pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and reporting.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryTransform  Category = "transform"
	CategoryStorage    Category = "storage"
	CategoryBackup     Category = "backup"
	CategoryRecord     Category = "record"
	CategoryConfig     Category = "config"
	CategoryTransient  Category = "transient"
)

// PipelineError is the structured error type used throughout the module.
// Validation errors are never retryable; transient storage failures are.
type PipelineError struct {
	Category  Category
	Op        string // operation name
	Err       error
	Retryable bool
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// New creates a non-retryable PipelineError.
func New(category Category, op string, err error) *PipelineError {
	return &PipelineError{Category: category, Op: op, Err: err}
}

// Transient creates a retryable PipelineError for network/storage failures.
func Transient(op string, err error) *PipelineError {
	return &PipelineError{Category: CategoryTransient, Op: op, Err: err, Retryable: true}
}

// Validation creates a validation error naming the violated constraint.
func Validation(op string, err error) *PipelineError {
	return &PipelineError{Category: CategoryValidation, Op: op, Err: err}
}

// Wrap wraps an existing error with context.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, err)
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// IsValidation reports whether err is a validation failure (never retried).
func IsValidation(err error) bool { return IsCategory(err, CategoryValidation) }

// Sentinel errors for common failure modes.
var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrFileTooLarge      = errors.New("file exceeds maximum size")
	ErrInvalidDimensions = errors.New("invalid dimensions")
	ErrEmptyInput        = errors.New("empty input")
	ErrNotFound          = errors.New("object not found")
	ErrBackupNotFound    = errors.New("backup not found")
	ErrMissingSettings   = errors.New("missing required settings")
)
