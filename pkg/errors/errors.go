package errors

import (
	"errors"
	"fmt"
)

// ErrorType defines different categories of errors
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "VALIDATION"
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeConflict        ErrorType = "CONFLICT"
	ErrorTypeInternal        ErrorType = "INTERNAL"
	ErrorTypeInvalidField    ErrorType = "INVALID_FIELD"
	ErrorTypeTypeMismatch    ErrorType = "TYPE_MISMATCH"
	ErrorTypeDivisionByZero  ErrorType = "DIVISION_BY_ZERO"
	ErrorTypeOutOfRange      ErrorType = "OUT_OF_RANGE"
	ErrorTypePartialDelivery ErrorType = "PARTIAL_DELIVERY"
)

// AppError is the custom error type for the application
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *AppError) Unwrap() error {
	return e.Err
}

// Constructor functions for different error types

// NewValidation creates a validation error
func NewValidation(message string) error {
	return &AppError{Type: ErrorTypeValidation, Message: message}
}

// NewNotFound creates a not found error
func NewNotFound(message string) error {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

// NewConflict creates a conflict error
func NewConflict(message string) error {
	return &AppError{Type: ErrorTypeConflict, Message: message}
}

// NewInternal creates an internal error
func NewInternal(message string, err error) error {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// NewInvalidField creates an error for an unknown variable, field or function
func NewInvalidField(message string) error {
	return &AppError{Type: ErrorTypeInvalidField, Message: message}
}

// NewTypeMismatch creates an error for an operation applied to the wrong value types
func NewTypeMismatch(message string) error {
	return &AppError{Type: ErrorTypeTypeMismatch, Message: message}
}

// NewDivisionByZero creates a division-by-zero error
func NewDivisionByZero(message string) error {
	return &AppError{Type: ErrorTypeDivisionByZero, Message: message}
}

// NewOutOfRange creates an error for an index outside a collection's bounds
func NewOutOfRange(message string) error {
	return &AppError{Type: ErrorTypeOutOfRange, Message: message}
}

// NewPartialDelivery creates an error reporting that some but not all
// subscribers received an event
func NewPartialDelivery(message string) error {
	return &AppError{Type: ErrorTypePartialDelivery, Message: message}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, preserve the type
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Type:    appErr.Type,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     appErr.Err,
		}
	}

	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// Type checking functions

func isType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool { return isType(err, ErrorTypeValidation) }

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool { return isType(err, ErrorTypeConflict) }

// IsInternal checks if an error is an internal error
func IsInternal(err error) bool { return isType(err, ErrorTypeInternal) }

// IsInvalidField checks if an error is an invalid field error
func IsInvalidField(err error) bool { return isType(err, ErrorTypeInvalidField) }

// IsTypeMismatch checks if an error is a type mismatch error
func IsTypeMismatch(err error) bool { return isType(err, ErrorTypeTypeMismatch) }

// IsDivisionByZero checks if an error is a division-by-zero error
func IsDivisionByZero(err error) bool { return isType(err, ErrorTypeDivisionByZero) }

// IsOutOfRange checks if an error is an out-of-range error
func IsOutOfRange(err error) bool { return isType(err, ErrorTypeOutOfRange) }

// IsPartialDelivery checks if an error is a partial delivery error
func IsPartialDelivery(err error) bool { return isType(err, ErrorTypePartialDelivery) }
