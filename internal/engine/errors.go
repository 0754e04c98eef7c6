package engine

import (
	"errors"
	"fmt"
)

// Error represents an error raised while building or advancing an
// automaton.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Step is the step being computed when the error occurred, if any.
	Step int64

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInitialOutOfRange indicates the initial value cannot be
	// represented by the chosen arithmetic.
	ErrCodeInitialOutOfRange ErrorCode = "INITIAL_OUT_OF_RANGE"

	// ErrCodeStorage indicates a backend read, write or release failed.
	ErrCodeStorage ErrorCode = "STORAGE"

	// ErrCodeClosed indicates the automaton was used after Close.
	ErrCodeClosed ErrorCode = "CLOSED"

	// ErrCodeDimension indicates an unusable lattice dimension or a position
	// of the wrong dimension.
	ErrCodeDimension ErrorCode = "DIMENSION"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Step > 0 {
		msg = fmt.Sprintf("%s (step=%d)", msg, e.Step)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsStorageError returns true if err is a backend failure.
// Uses errors.As to handle wrapped errors.
func IsStorageError(err error) bool {
	return hasCode(err, ErrCodeStorage)
}

// IsOutOfRange returns true if err rejected an initial value.
func IsOutOfRange(err error) bool {
	return hasCode(err, ErrCodeInitialOutOfRange)
}

// IsClosed returns true if err reports use after Close.
func IsClosed(err error) bool {
	return hasCode(err, ErrCodeClosed)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func newStorageError(step int64, err error) *Error {
	return &Error{
		Code:    ErrCodeStorage,
		Message: "generation storage failed",
		Step:    step,
		Err:     err,
	}
}

func newDimensionError(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeDimension,
		Message: fmt.Sprintf(format, args...),
	}
}
