// Package errors defines the typed domain errors surfaced across the
// session distribution core, and the HTTP status codes they map to.
//
// The teacher (stacklok/toolhive) expresses this same shape through its
// own private github.com/stacklok/toolhive-core/httperr module, which is
// not resolvable outside that organization. This package reproduces the
// observed API — a typed Error with a Code() mapping, plus a WithCode
// escape hatch for ad-hoc status codes — directly, rather than depending
// on an unfetchable module.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Type identifies the kind of domain error without exposing a Go type
// name to callers (see spec §7: "Error kinds surfaced to callers, not
// type names").
type Type string

// Error kinds from spec.md §7.
const (
	ErrSessionNotCreated Type = "session_not_created"
	ErrRetryableRequest  Type = "retryable_request"
	ErrNoSuchSession      Type = "no_such_session"
	ErrSessionExists      Type = "session_exists"
	ErrUnauthorizedSecret Type = "unauthorized_secret"
	ErrTimeout            Type = "timeout"
	ErrConfig             Type = "config_error"
	ErrTransport          Type = "transport"
	ErrInvalidArgument    Type = "invalid_argument"
	ErrNotFound           Type = "not_found"
	ErrInternal           Type = "internal"
)

// statusByType is consulted by Code when err is an *Error.
var statusByType = map[Type]int{
	ErrSessionNotCreated:  http.StatusInternalServerError,
	ErrRetryableRequest:   http.StatusServiceUnavailable,
	ErrNoSuchSession:      http.StatusNotFound,
	ErrSessionExists:      http.StatusConflict,
	ErrUnauthorizedSecret: http.StatusUnauthorized,
	ErrTimeout:            http.StatusGatewayTimeout,
	ErrConfig:             http.StatusInternalServerError,
	ErrTransport:          http.StatusBadGateway,
	ErrInvalidArgument:    http.StatusBadRequest,
	ErrNotFound:           http.StatusNotFound,
	ErrInternal:           http.StatusInternalServerError,
}

// Error is a typed domain error: a kind, a human-readable message, and
// an optional wrapped cause.
type Error struct {
	Type    Type
	Message string
	Cause   error
}

// Error implements the error interface. Format: "<type>: <message>[: <cause>]".
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError constructs an *Error of the given type.
func NewError(t Type, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// NewSessionNotCreatedError builds a terminal SessionNotCreated error.
func NewSessionNotCreatedError(message string, cause error) *Error {
	return NewError(ErrSessionNotCreated, message, cause)
}

// NewRetryableRequestError builds a RetryableRequest error — a subtype
// of SessionNotCreated that tells the scheduler to retry-to-head rather
// than reject outright.
func NewRetryableRequestError(message string, cause error) *Error {
	return NewError(ErrRetryableRequest, message, cause)
}

// NewNoSuchSessionError builds a NoSuchSession lookup-miss error.
func NewNoSuchSessionError(message string, cause error) *Error {
	return NewError(ErrNoSuchSession, message, cause)
}

// NewSessionExistsError builds a duplicate-binding error.
func NewSessionExistsError(message string, cause error) *Error {
	return NewError(ErrSessionExists, message, cause)
}

// NewUnauthorizedSecretError builds an UnauthorizedSecret error.
func NewUnauthorizedSecretError(message string, cause error) *Error {
	return NewError(ErrUnauthorizedSecret, message, cause)
}

// NewTimeoutError builds a request-expired-in-queue error.
func NewTimeoutError(message string, cause error) *Error {
	return NewError(ErrTimeout, message, cause)
}

// NewConfigError builds a bad-configuration-at-startup error.
func NewConfigError(message string, cause error) *Error {
	return NewError(ErrConfig, message, cause)
}

// NewTransportError wraps an I/O failure at an intra-cluster boundary.
func NewTransportError(message string, cause error) *Error {
	return NewError(ErrTransport, message, cause)
}

// NewInvalidArgumentError builds a client-input validation error.
func NewInvalidArgumentError(message string, cause error) *Error {
	return NewError(ErrInvalidArgument, message, cause)
}

// NewNotFoundError builds a generic not-found error.
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewInternalError builds a generic internal error.
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

func isType(err error, t Type) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == t
}

// IsSessionNotCreated reports whether err is (or wraps) a SessionNotCreated
// error, including its RetryableRequest subtype.
func IsSessionNotCreated(err error) bool {
	return isType(err, ErrSessionNotCreated) || isType(err, ErrRetryableRequest)
}

// IsRetryableRequest reports whether err is (or wraps) a RetryableRequest error.
func IsRetryableRequest(err error) bool { return isType(err, ErrRetryableRequest) }

// IsNoSuchSession reports whether err is (or wraps) a NoSuchSession error.
func IsNoSuchSession(err error) bool { return isType(err, ErrNoSuchSession) }

// IsSessionExists reports whether err is (or wraps) a SessionExists error.
func IsSessionExists(err error) bool { return isType(err, ErrSessionExists) }

// IsUnauthorizedSecret reports whether err is (or wraps) an UnauthorizedSecret error.
func IsUnauthorizedSecret(err error) bool { return isType(err, ErrUnauthorizedSecret) }

// IsTimeout reports whether err is (or wraps) a Timeout error.
func IsTimeout(err error) bool { return isType(err, ErrTimeout) }

// IsConfig reports whether err is (or wraps) a ConfigError.
func IsConfig(err error) bool { return isType(err, ErrConfig) }

// IsTransport reports whether err is (or wraps) a Transport error.
func IsTransport(err error) bool { return isType(err, ErrTransport) }

// codedError lets WithCode attach an explicit HTTP status to an
// arbitrary error without requiring it be an *Error.
type codedError struct {
	err  error
	code int
}

func (c *codedError) Error() string { return c.err.Error() }
func (c *codedError) Unwrap() error { return c.err }

// WithCode wraps err so that Code(err) returns code, regardless of err's
// underlying type. Used at HTTP transport boundaries that need a
// specific status without minting a new domain error Type.
func WithCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &codedError{err: err, code: code}
}

// Code returns the HTTP status code associated with err: the code
// attached by WithCode, the status mapped from an *Error's Type, or 500
// if err is an unrecognized error.
func Code(err error) int {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	var e *Error
	if errors.As(err, &e) {
		if code, ok := statusByType[e.Type]; ok {
			return code
		}
	}
	return http.StatusInternalServerError
}
