// Package apperr defines the error taxonomy shared by the engine and the
// transport layer. Every failure that reaches a client is an *Error with a
// Kind; the client only ever sees the Kind, a fixed message and the Details
// string chosen by the code that raised it.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes an application error.
type Kind string

const (
	KindInvalidArgument    Kind = "invalid-argument"
	KindUnauthenticated    Kind = "unauthenticated"
	KindNotFound           Kind = "not-found"
	KindResourceExhausted  Kind = "resource-exhausted"
	KindFailedPrecondition Kind = "failed-precondition"
	KindPermissionDenied   Kind = "permission-denied"
	KindOutOfRange         Kind = "out-of-range"
	KindDataLoss           Kind = "data-loss"
	KindUnavailable        Kind = "unavailable"
	KindInternal           Kind = "internal"
)

// GenericDetails is returned for every validation failure.
const GenericDetails = "Some went wrong, try again"

type kindInfo struct {
	status  int
	message string
}

var kinds = map[Kind]kindInfo{
	KindInvalidArgument:    {http.StatusBadRequest, "Bad Request"},
	KindUnauthenticated:    {http.StatusUnauthorized, "Unauthenticated"},
	KindNotFound:           {http.StatusNotFound, "Not Found"},
	KindResourceExhausted:  {http.StatusTooManyRequests, "Quota Exceeded"},
	KindFailedPrecondition: {http.StatusPreconditionFailed, "Nothing Changed"},
	KindPermissionDenied:   {http.StatusForbidden, "Permission Denied"},
	KindOutOfRange:         {http.StatusBadRequest, "Out Of Range"},
	KindDataLoss:           {http.StatusInternalServerError, "Internal"},
	KindUnavailable:        {http.StatusServiceUnavailable, "Unavailable"},
	KindInternal:           {http.StatusInternalServerError, "Internal"},
}

// Error is an application error. Details is safe to show to clients, Err is
// not.
type Error struct {
	Kind    Kind
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Details)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so sentinel comparisons like
// errors.Is(err, apperr.New(apperr.KindNotFound, "")) work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Status returns the HTTP status code for the error kind.
func (e *Error) Status() int {
	if info, ok := kinds[e.Kind]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Message returns the fixed client-facing message for the error kind.
func (e *Error) Message() string {
	if info, ok := kinds[e.Kind]; ok {
		return info.message
	}
	return "Internal"
}

func New(kind Kind, details string) *Error {
	return &Error{Kind: kind, Details: details}
}

func Wrap(kind Kind, details string, err error) *Error {
	return &Error{Kind: kind, Details: details, Err: err}
}

// Invalid reports a malformed request. The rule that failed is kept in Err
// for server-side logs only.
func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Details: GenericDetails, Err: fmt.Errorf(format, args...)}
}

func NotFound(details string) *Error { return New(KindNotFound, details) }

func Quota(details string) *Error { return New(KindResourceExhausted, details) }

func NoChange(details string) *Error { return New(KindFailedPrecondition, details) }

func Unauthenticated() *Error { return New(KindUnauthenticated, "The function must be called while authenticated.") }

func PermissionDenied(details string) *Error { return New(KindPermissionDenied, details) }

func OutOfRange(details string) *Error { return New(KindOutOfRange, details) }

func Integrity(err error) *Error { return Wrap(KindDataLoss, "Request corrupted in transit.", err) }

func Unavailable(err error) *Error { return Wrap(KindUnavailable, "Try again later.", err) }

func Internal(err error) *Error { return Wrap(KindInternal, "Something went wrong.", err) }

// As returns err as an *Error, converting unknown errors to KindInternal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// KindOf returns the Kind of err, or KindInternal for non-application errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return As(err).Kind
}

// IsKind reports whether err carries the given Kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}
