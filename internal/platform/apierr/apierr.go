package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
)

// Error carries the HTTP status and machine-readable code a handler should
// render for a failure raised deep inside a service.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Newf(status int, code string, format string, args ...any) *Error {
	return &Error{Status: status, Code: code, Err: fmt.Errorf(format, args...)}
}

func NotFound(what string) *Error {
	return &Error{Status: http.StatusNotFound, Code: "not_found", Err: fmt.Errorf("%s %w", what, ErrNotFound)}
}

func Forbidden(msg string) *Error {
	return &Error{Status: http.StatusForbidden, Code: "forbidden", Err: fmt.Errorf("%s: %w", msg, ErrForbidden)}
}

func Invalid(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "invalid_argument", Err: fmt.Errorf("%s: %w", msg, ErrInvalidArgument)}
}

func Unauthorized(msg string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "unauthorized", Err: fmt.Errorf("%s: %w", msg, ErrUnauthorized)}
}

func Conflict(code, msg string) *Error {
	return &Error{Status: http.StatusConflict, Code: code, Err: fmt.Errorf("%s: %w", msg, ErrConflict)}
}

// Resolve maps err to a status and code. Wrapped *Error values win, then the
// package sentinels; everything else is an internal error.
func Resolve(err error) (int, string) {
	if err == nil {
		return http.StatusOK, ""
	}
	var ae *Error
	if errors.As(err, &ae) && ae != nil && ae.Status != 0 {
		code := ae.Code
		if code == "" {
			code = http.StatusText(ae.Status)
		}
		return ae.Status, code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

// Code returns the code carried by err, or "" when err is not an *Error.
func Code(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae.Code
	}
	return ""
}
