package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for broad classification.
var (
	ErrEmptyInput        = errors.New("empty or null polygon list")
	ErrInvalidPolygon    = errors.New("invalid polygon")
	ErrOverlapValidation = errors.New("polygon overlap validation failed")
	ErrOverlapDetected   = errors.New("overlapping polygons")
	ErrMissingAttribute  = errors.New("missing attribute")
)

// ErrorKind is a coarse-grained categorization for errors.
type ErrorKind string

const (
	KindEmptyInput        ErrorKind = "empty_input"
	KindInvalidPolygon    ErrorKind = "invalid_polygon"
	KindOverlapValidation ErrorKind = "overlap_validation"
	KindOverlapDetected   ErrorKind = "overlap_detected"
	KindMissingAttribute  ErrorKind = "missing_attribute"
)

var sentinels = map[ErrorKind]error{
	KindEmptyInput:        ErrEmptyInput,
	KindInvalidPolygon:    ErrInvalidPolygon,
	KindOverlapValidation: ErrOverlapValidation,
	KindOverlapDetected:   ErrOverlapDetected,
	KindMissingAttribute:  ErrMissingAttribute,
}

// Error wraps an underlying cause with the operation and the offending
// feature index (-1 when not tied to a single feature).
type Error struct {
	Op    string
	Kind  ErrorKind
	Index int
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	base := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Index >= 0 {
		base += fmt.Sprintf(" (index=%d)", e.Index)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is match the sentinel that belongs to the error's kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// IsKind helps callers classify errors without depending on the packages
// that produced them.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
