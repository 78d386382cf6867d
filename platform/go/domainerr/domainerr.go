// Package domainerr classifies service errors so transports can map them without
// knowing each domain's sentinels.
package domainerr

import (
	"errors"
	"sort"
	"strings"
)

// Kind is the error category surfaced to callers.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// Add records a message for field.
func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

// Empty reports whether no field carries an issue.
func (f FieldErrors) Empty() bool {
	return len(f) == 0
}

// Err returns a validation error for the collected fields, or nil when there are none.
func (f FieldErrors) Err() error {
	if f.Empty() {
		return nil
	}
	return Validation(f)
}

// Error is a classified domain error.
type Error struct {
	Kind    Kind
	Message string
	Fields  FieldErrors
}

func (e *Error) Error() string {
	if e.Kind != KindValidation || len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return e.Message + ": " + strings.Join(parts, ", ")
}

// NotFound builds a not-found error. Also used when the entity exists but belongs to another tenant.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict builds a uniqueness/state conflict error.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Forbidden builds an authorization error that is not tied to a role set.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// Validation builds a validation error from field issues.
func Validation(fields FieldErrors) *Error {
	return &Error{Kind: KindValidation, Message: "validation error", Fields: fields}
}

// Invalid builds a validation error for a single field.
func Invalid(field, message string) *Error {
	return Validation(FieldErrors{field: {message}})
}

// KindOf extracts the Kind of err, if it is (or wraps) a domain error.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// Is reports whether err is a domain error of kind k.
func Is(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}
