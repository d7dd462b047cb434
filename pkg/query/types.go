package query

import (
	"fmt"
	"strings"
)

// ErrorKind is the closed error taxonomy of the query plane.
type ErrorKind string

const (
	KindInvalidQuery    ErrorKind = "InvalidQuery"
	KindUnknownColumn   ErrorKind = "UnknownColumn"
	KindUnknownTable    ErrorKind = "UnknownTable"
	KindSyntaxError     ErrorKind = "SyntaxError"
	KindAccessDenied    ErrorKind = "AccessDenied"
	KindNotFound        ErrorKind = "NotFound"
	KindTransient       ErrorKind = "Transient"
	KindConflict        ErrorKind = "Conflict"
	KindCancelled       ErrorKind = "Cancelled"
	KindInvalidManifest ErrorKind = "InvalidManifest"
	KindInternal        ErrorKind = "Internal"
)

// Error is a classified query-plane failure. Message is the caller-facing
// text; Original carries the raw engine or transport error and is exposed
// only when diagnostics are on.
type Error struct {
	Kind        ErrorKind
	Message     string
	Suggestions []string
	Original    string
	// CorrelationID identifies Internal errors in logs.
	CorrelationID string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (suggestions: %s)", e.Kind, e.Message, strings.Join(e.Suggestions, "; "))
}

// NewError builds a classified error.
func NewError(kind ErrorKind, message string, suggestions ...string) *Error {
	return &Error{Kind: kind, Message: message, Suggestions: suggestions}
}
