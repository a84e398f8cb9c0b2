// Package apperr is the error taxonomy shared by the chat services and the
// transports that surface their failures.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound       Kind = "NotFound"
	KindUnauthorized   Kind = "Unauthorized"
	KindAlreadyExists  Kind = "AlreadyExists"
	KindInvalidPayload Kind = "InvalidPayload"
	KindNotAMember     Kind = "NotAMember"
	KindInternal       Kind = "Internal"
)

// Error carries a Kind so callers can branch without string matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func NotFound(msg string) *Error       { return New(KindNotFound, msg) }
func Unauthorized(msg string) *Error   { return New(KindUnauthorized, msg) }
func AlreadyExists(msg string) *Error  { return New(KindAlreadyExists, msg) }
func InvalidPayload(msg string) *Error { return New(KindInvalidPayload, msg) }
func NotAMember(msg string) *Error     { return New(KindNotAMember, msg) }

// Internal wraps an infrastructure failure (database, encoding) so it keeps
// its cause for logs but shows a generic message to clients.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message is the client-safe text for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Msg
	}
	return "internal error"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound, KindNotAMember:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusForbidden
	case KindAlreadyExists:
		return http.StatusConflict
	case KindInvalidPayload:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
