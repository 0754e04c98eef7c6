package snapshot

import (
	"errors"
	"fmt"
)

// Error reports a snapshot that cannot be restored.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Tag is the offending entry.
	Tag string

	// Expected and Actual describe a mismatch, when there is one.
	Expected string
	Actual   string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes snapshot errors.
type ErrorCode string

const (
	// ErrCodeIncompatible indicates a tag that does not match the variant
	// being restored.
	ErrCodeIncompatible ErrorCode = "INCOMPATIBLE"

	// ErrCodeMissingTag indicates a required entry is absent.
	ErrCodeMissingTag ErrorCode = "MISSING_TAG"

	// ErrCodeCorrupt indicates an entry that cannot be decoded or whose
	// digest does not match.
	ErrCodeCorrupt ErrorCode = "CORRUPT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Expected != "" || e.Actual != "":
		return fmt.Sprintf("%s: tag %q is %q, expected %q", e.Code, e.Tag, e.Actual, e.Expected)
	case e.Err != nil:
		return fmt.Sprintf("%s: tag %q: %v", e.Code, e.Tag, e.Err)
	default:
		return fmt.Sprintf("%s: tag %q", e.Code, e.Tag)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsIncompatible returns true if err rejected a snapshot written for a
// different variant or model. Uses errors.As to handle wrapped errors.
func IsIncompatible(err error) bool {
	return hasCode(err, ErrCodeIncompatible) || hasCode(err, ErrCodeMissingTag)
}

// IsCorrupt returns true if err reports an undecodable or tampered entry.
func IsCorrupt(err error) bool {
	return hasCode(err, ErrCodeCorrupt)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func corrupt(tag string, err error) *Error {
	return &Error{Code: ErrCodeCorrupt, Tag: tag, Err: err}
}
