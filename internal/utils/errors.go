package utils

import (
	"errors"
	"fmt"
)

// DataValidationError describes market data that failed validation.
// Index is the offending bar, or -1 when the problem is not tied to one bar.
type DataValidationError struct {
	Field   string
	Index   int
	Message string
}

// Error returns the error message string.
func (e *DataValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid %s at index %d: %s", e.Field, e.Index, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// NewDataValidationError creates a validation error for a single bar.
//
// Parameters:
//   - field: The offending field name.
//   - index: The bar index, or -1.
//   - message: The validation error message.
//
// Returns:
//   - An error interface wrapping the DataValidationError.
func NewDataValidationError(field string, index int, message string) error {
	return &DataValidationError{
		Field:   field,
		Index:   index,
		Message: message,
	}
}

// NewDataValidationErrorf creates a validation error with a formatted message.
func NewDataValidationErrorf(field string, index int, format string, args ...interface{}) error {
	return &DataValidationError{
		Field:   field,
		Index:   index,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsDataValidationError reports whether err wraps a DataValidationError.
func IsDataValidationError(err error) bool {
	var target *DataValidationError
	return errors.As(err, &target)
}
