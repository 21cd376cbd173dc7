// ABOUTME: Error taxonomy for token verification, identity resolution and authorization
// ABOUTME: Each Error carries a Kind that maps to an HTTP status and a client-safe message

package auth

import (
	"errors"
	"net/http"
)

// ErrorKind classifies an authentication or authorization failure.
type ErrorKind string

const (
	KindMalformedToken        ErrorKind = "malformed_token"
	KindInvalidOrExpiredToken ErrorKind = "invalid_or_expired_token"
	KindAuthorizationRequired ErrorKind = "authorization_required"
	KindUserNotFound          ErrorKind = "user_not_found"
	KindServerMisconfigured   ErrorKind = "server_misconfigured"
	KindUpstreamUnavailable   ErrorKind = "upstream_unavailable"
	KindForbidden             ErrorKind = "forbidden"
)

// Sentinels for use with errors.Is. Two *Error values match when their kinds match.
var (
	ErrMalformedToken        = &Error{Kind: KindMalformedToken}
	ErrInvalidOrExpiredToken = &Error{Kind: KindInvalidOrExpiredToken}
	ErrAuthorizationRequired = &Error{Kind: KindAuthorizationRequired}
	ErrUserNotFound          = &Error{Kind: KindUserNotFound}
	ErrServerMisconfigured   = &Error{Kind: KindServerMisconfigured}
	ErrUpstreamUnavailable   = &Error{Kind: KindUpstreamUnavailable}
	ErrForbidden             = &Error{Kind: KindForbidden}
)

// Error is the error type returned by every stage of the auth core.
// Message is safe to show to clients; Err holds the internal cause for logging.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func newError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Message: kind.defaultMessage(), Err: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.defaultMessage()
	}
	if e.Err != nil {
		return string(e.Kind) + ": " + msg + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// StatusCode returns the HTTP status for this failure.
func (e *Error) StatusCode() int {
	return e.Kind.StatusCode()
}

// StatusCode maps a kind to its HTTP status. Server-caused kinds are 5xx.
func (k ErrorKind) StatusCode() int {
	switch k {
	case KindServerMisconfigured, KindUpstreamUnavailable:
		return http.StatusInternalServerError
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

// ServerCaused reports whether the failure is the server's fault rather than the client's.
func (k ErrorKind) ServerCaused() bool {
	return k.StatusCode() >= http.StatusInternalServerError
}

func (k ErrorKind) defaultMessage() string {
	switch k {
	case KindMalformedToken:
		return "Malformed token"
	case KindInvalidOrExpiredToken:
		return "Invalid or expired token"
	case KindAuthorizationRequired:
		return "Authorization required"
	case KindUserNotFound:
		return "User not found"
	case KindServerMisconfigured:
		return "Server configuration error"
	case KindUpstreamUnavailable:
		return "User store unavailable"
	case KindForbidden:
		return "Forbidden"
	default:
		return "Authentication failed"
	}
}

// KindOf extracts the kind of an auth error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
