// Package apperr defines the error kinds surfaced to callers of the bidding engine.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
)

// Kind classifies an error so transports can map it without string matching.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindState
	KindAuth
	KindForbidden
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Error is a classified error with a human readable reason.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: KindConflict}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }
func Conflict(format string, args ...any) *Error   { return newf(KindConflict, format, args...) }
func NotFound(format string, args ...any) *Error   { return newf(KindNotFound, format, args...) }
func State(format string, args ...any) *Error      { return newf(KindState, format, args...) }
func Auth(format string, args ...any) *Error       { return newf(KindAuth, format, args...) }
func Forbidden(format string, args ...any) *Error  { return newf(KindForbidden, format, args...) }

// Transient wraps an infrastructure failure that may succeed on retry.
func Transient(err error, format string, args ...any) *Error {
	e := newf(KindTransient, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ConnectCode maps an error onto a Connect status code.
func ConnectCode(err error) connect.Code {
	switch KindOf(err) {
	case KindValidation:
		return connect.CodeInvalidArgument
	case KindConflict:
		return connect.CodeAborted
	case KindNotFound:
		return connect.CodeNotFound
	case KindState:
		return connect.CodeFailedPrecondition
	case KindAuth:
		return connect.CodeUnauthenticated
	case KindForbidden:
		return connect.CodePermissionDenied
	case KindTransient:
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}

// ToConnect wraps err for return from a Connect handler.
func ToConnect(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}
	return connect.NewError(ConnectCode(err), err)
}

// HTTPStatus maps an error onto an HTTP status for the plain REST read endpoints.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindState:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to show a client: the reason of a classified
// error, or a generic message for anything else.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Reason
	}
	return "internal error"
}
