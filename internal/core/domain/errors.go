package domain

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed input. The message is always safe to
// return verbatim to the caller. Reasons carries the full set of problems
// when validation is performed exhaustively (CSV ingestion).
type ValidationError struct {
	Reasons []string
}

func NewValidationError(reasons ...string) *ValidationError {
	return &ValidationError{Reasons: reasons}
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Reasons, "; ")
}

// AuthorizationError means the requester lacks the admin or roster
// capability for the target round.
type AuthorizationError struct {
	Msg string
}

func NewAuthorizationError(format string, args ...interface{}) *AuthorizationError {
	return &AuthorizationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *AuthorizationError) Error() string {
	return e.Msg
}

// NotFoundError means the referenced round, dataset or application does
// not exist.
type NotFoundError struct {
	Msg string
}

func NewNotFoundError(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

func (e *NotFoundError) Error() string {
	return e.Msg
}

// ConflictError means the operation would violate an invariant given the
// round's current state.
type ConflictError struct {
	Msg string
}

func NewConflictError(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string {
	return e.Msg
}
