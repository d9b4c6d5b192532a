package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ExtractionError indicates a catalog query against a registered instance
// failed. It is fatal for that instance's sync: no partial writes happen,
// other instances are unaffected.
type ExtractionError struct {
	InstanceID string
	Engine     Engine
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for instance %s (%s): %v", e.InstanceID, e.Engine, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NormalizationError indicates one raw account payload could not be mapped
// into PermissionFacts. The account is skipped; the instance sync continues.
type NormalizationError struct {
	InstanceID string
	Engine     Engine
	AccountKey string
	Err        error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization failed for account %s on instance %s (%s): %v",
		e.AccountKey, e.InstanceID, e.Engine, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// RuleExpressionError indicates a stored rule expression failed to parse
// or validate. The rule is skipped for the run; it never defaults to
// always-true or always-false.
type RuleExpressionError struct {
	RuleID string
	Err    error
}

func (e *RuleExpressionError) Error() string {
	return fmt.Sprintf("invalid expression on rule %s: %v", e.RuleID, e.Err)
}

func (e *RuleExpressionError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}
