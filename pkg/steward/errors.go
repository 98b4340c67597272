package steward

import (
	"errors"
	"fmt"
)

type (

	// StewardError represents a base error type for steward operations
	StewardError struct {
		Op  string // Operation that failed
		Err error  // The underlying error
	}

	// InvalidTimeError reports an operation that refers to a time earlier
	// than the steward's ValidSince bound
	InvalidTimeError struct {
		StewardError
		Time       any // The requested time
		ValidSince any // The current lower bound
	}

	// InvalidInputError reports a structurally invalid request: a duplicate
	// fiat event, removal of a non-existent fiat event, destruction of a
	// non-prediction, or a double-destroy from an earlier event
	InvalidInputError struct {
		StewardError
		Detail string
	}

	// TooManyIterationsError reports a prediction loop at a single base time
	// that exceeded the configured MaxIteration ceiling
	TooManyIterationsError struct {
		StewardError
		Base      any    // The base time the loop is stuck at
		Iteration uint32 // The iteration ceiling that was hit
	}

	// DeserializationMismatchError reports an unknown type id, a
	// truncated stream or a duplicate cell serial during DeserializeFrom,
	// and a missing or unregistered type id during SerializeInto
	DeserializationMismatchError struct {
		StewardError
		TypeID PersistentTypeID
	}
)

// Error implements the error interface
func (e StewardError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

// Unwrap returns the underlying error
func (e StewardError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Error Detection Helpers
// =============================================================================

// IsInvalidTimeError checks if the error is an InvalidTimeError
func IsInvalidTimeError(err error) bool {
	var invalidTimeErr *InvalidTimeError
	return errors.As(err, &invalidTimeErr)
}

// IsInvalidInputError checks if the error is an InvalidInputError
func IsInvalidInputError(err error) bool {
	var invalidInputErr *InvalidInputError
	return errors.As(err, &invalidInputErr)
}

// IsTooManyIterationsError checks if the error is a TooManyIterationsError
func IsTooManyIterationsError(err error) bool {
	var tooManyErr *TooManyIterationsError
	return errors.As(err, &tooManyErr)
}

// IsDeserializationMismatchError checks if the error is a DeserializationMismatchError
func IsDeserializationMismatchError(err error) bool {
	var mismatchErr *DeserializationMismatchError
	return errors.As(err, &mismatchErr)
}

// =============================================================================
// Error Extraction Helpers
// =============================================================================

// GetInvalidTimeError extracts an InvalidTimeError from the error chain
func GetInvalidTimeError(err error) (*InvalidTimeError, bool) {
	var invalidTimeErr *InvalidTimeError
	if errors.As(err, &invalidTimeErr) {
		return invalidTimeErr, true
	}
	return nil, false
}

// GetInvalidInputError extracts an InvalidInputError from the error chain
func GetInvalidInputError(err error) (*InvalidInputError, bool) {
	var invalidInputErr *InvalidInputError
	if errors.As(err, &invalidInputErr) {
		return invalidInputErr, true
	}
	return nil, false
}

// GetTooManyIterationsError extracts a TooManyIterationsError from the error chain
func GetTooManyIterationsError(err error) (*TooManyIterationsError, bool) {
	var tooManyErr *TooManyIterationsError
	if errors.As(err, &tooManyErr) {
		return tooManyErr, true
	}
	return nil, false
}

// GetDeserializationMismatchError extracts a DeserializationMismatchError from the error chain
func GetDeserializationMismatchError(err error) (*DeserializationMismatchError, bool) {
	var mismatchErr *DeserializationMismatchError
	if errors.As(err, &mismatchErr) {
		return mismatchErr, true
	}
	return nil, false
}
