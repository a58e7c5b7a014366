package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies structured domain errors so callers can map them onto
// user-visible responses without string matching.
type ErrorKind string

// Error kinds covering every enumerated failure of the core operations.
const (
	// ErrKindNotFound reports an absent asset, location, or holder.
	ErrKindNotFound ErrorKind = "not_found"
	// ErrKindInvalidState reports a transition attempted from a state that forbids it.
	ErrKindInvalidState ErrorKind = "invalid_state"
	// ErrKindAlreadyExists reports duplicate custody or a duplicate pending maintenance cycle.
	ErrKindAlreadyExists ErrorKind = "already_exists"
	// ErrKindInvalidInput reports missing or malformed request data.
	ErrKindInvalidInput ErrorKind = "invalid_input"
	// ErrKindConflict reports a concurrent modification detected via version check.
	ErrKindConflict ErrorKind = "conflict"
)

// Error is the structured error returned by all core operations.
type Error struct {
	Kind    ErrorKind
	Entity  EntityType
	Ref     string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Ref != "" {
		return fmt.Sprintf("%s %s: %s", e.Entity, e.Ref, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Entity, e.Kind)
}

// NotFoundError reports an absent record.
func NotFoundError(entity EntityType, ref string) *Error {
	return &Error{Kind: ErrKindNotFound, Entity: entity, Ref: ref, Message: fmt.Sprintf("%s %q not found", entity, ref)}
}

// InvalidStateError reports a forbidden transition.
func InvalidStateError(entity EntityType, ref, message string) *Error {
	return &Error{Kind: ErrKindInvalidState, Entity: entity, Ref: ref, Message: message}
}

// AlreadyExistsError reports a uniqueness violation.
func AlreadyExistsError(entity EntityType, ref, message string) *Error {
	return &Error{Kind: ErrKindAlreadyExists, Entity: entity, Ref: ref, Message: message}
}

// MissingFieldError reports absent required input, naming the field.
func MissingFieldError(field string) *Error {
	return &Error{Kind: ErrKindInvalidInput, Message: fmt.Sprintf("missing required field %q", field)}
}

// InvalidInputError reports malformed input. Bad values are rejected, never
// silently defaulted.
func InvalidInputError(message string) *Error {
	return &Error{Kind: ErrKindInvalidInput, Message: message}
}

// ConflictError reports a lost concurrent update.
func ConflictError(entity EntityType, ref, message string) *Error {
	return &Error{Kind: ErrKindConflict, Entity: entity, Ref: ref, Message: message}
}

// KindOf extracts the error kind from err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
