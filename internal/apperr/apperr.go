// Package apperr defines the error taxonomy shared by the negotiation and
// contract packages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindUnauthorized        Kind = "unauthorized"
	KindInvalidTransition   Kind = "invalid_transition"
	KindDuplicateAcceptance Kind = "duplicate_acceptance"
)

// Sentinels for errors.Is matching. An *Error matches the sentinel of its Kind.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrDuplicateAcceptance = &Error{Kind: KindDuplicateAcceptance}
)

// Error is a local, non-retryable domain failure. Persistence failures are
// never converted into an Error; they are wrapped with fmt.Errorf instead.
type Error struct {
	Kind Kind
	Op   string // e.g. "offer: accept"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel (or any *Error) of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Validation reports missing or malformed input, detected before any mutation.
func Validation(op, format string, args ...any) *Error {
	return newf(KindValidation, op, format, args...)
}

// NotFound reports a referenced entity that does not exist.
func NotFound(op, entity, id string) *Error {
	return newf(KindNotFound, op, "%s not found: %s", entity, id)
}

// Unauthorized reports an actor without standing on the entity.
func Unauthorized(op, format string, args ...any) *Error {
	return newf(KindUnauthorized, op, format, args...)
}

// InvalidTransition reports an illegal status change.
func InvalidTransition(op, format string, args ...any) *Error {
	return newf(KindInvalidTransition, op, format, args...)
}

// DuplicateAcceptance reports a second acceptance in an already resolved thread.
func DuplicateAcceptance(op, format string, args ...any) *Error {
	return newf(KindDuplicateAcceptance, op, format, args...)
}

// KindOf returns the Kind of err, or "" if err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusForbidden
	case KindInvalidTransition, KindDuplicateAcceptance:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
