package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every input validation error.
	ErrValidation = errors.New("validation failed")

	// ErrModelUnavailable means no model could be loaded for this process.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrCapabilityMissing means the loaded model does not offer the requested capability.
	ErrCapabilityMissing = errors.New("model capability missing")
)

// InvalidNumericInputError reports a numeric field that is not a non-negative number.
type InvalidNumericInputError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidNumericInputError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid numeric input for %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid numeric input for %s", e.Field)
}

// Is makes the error match ErrValidation.
func (e *InvalidNumericInputError) Is(target error) bool {
	return target == ErrValidation
}

// InvalidTransactionTypeError reports a type outside the closed enumeration.
type InvalidTransactionTypeError struct {
	Value string
}

func (e *InvalidTransactionTypeError) Error() string {
	return fmt.Sprintf("invalid transaction type %q", e.Value)
}

// Is makes the error match ErrValidation.
func (e *InvalidTransactionTypeError) Is(target error) bool {
	return target == ErrValidation
}

// ModelInferenceError wraps a failure raised by the model during one call.
type ModelInferenceError struct {
	Capability string // "probability" or "decision"
	Err        error
}

func (e *ModelInferenceError) Error() string {
	return fmt.Sprintf("model %s inference failed: %v", e.Capability, e.Err)
}

func (e *ModelInferenceError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is an input validation error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// ValidationField returns the offending field of a validation error, or "".
func ValidationField(err error) string {
	var numErr *InvalidNumericInputError
	if errors.As(err, &numErr) {
		return numErr.Field
	}
	var typeErr *InvalidTransactionTypeError
	if errors.As(err, &typeErr) {
		return FieldType
	}
	return ""
}
