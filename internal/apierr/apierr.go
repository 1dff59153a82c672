// Package apierr defines the router's error taxonomy and the mapping from
// internal error kinds to RPC error codes and HTTP statuses.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the fixed error categories the router can raise.
type Kind string

const (
	ConfigInvalid      Kind = "ConfigInvalid"
	Unauthenticated    Kind = "Unauthenticated"
	Forbidden          Kind = "Forbidden"
	BadRequest         Kind = "BadRequest"
	NoProvidersMatch   Kind = "NoProvidersMatch"
	UpstreamUnavailable Kind = "UpstreamUnavailable"
	ProtocolError      Kind = "ProtocolError"
	RateLimited        Kind = "RateLimited"
	Internal           Kind = "Internal"
	CircuitOpen        Kind = "CircuitOpen"
	CircuitHalfOpenBusy Kind = "CircuitHalfOpenBusy"
)

// Error is the router's single structured error type. All taxonomy kinds
// from spec §7 are represented by this type rather than one Go type per
// kind, carrying the extra fields (RetryAfterSeconds) only some kinds need.
type Error struct {
	Kind              Kind
	Message           string
	RetryAfterSeconds int
	cause             error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, apierr.New(apierr.Forbidden, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func RateLimitedf(retryAfterSeconds int) *Error {
	return &Error{
		Kind:              RateLimited,
		Message:           fmt.Sprintf("rate limit exceeded, retry after %ds", retryAfterSeconds),
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// KindOf extracts the Kind from err, defaulting to Internal when err is
// not an *Error (or is nil, in which case ok is false).
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return Internal, false
}

// RPCCode maps a Kind to a JSON-RPC error code. BadRequest and Internal
// use the standard JSON-RPC invalid-params (-32602) and internal-error
// (-32603) codes; every other kind shares the application-error code
// -32000 and is told apart by its message.
func RPCCode(k Kind) int {
	switch k {
	case BadRequest:
		return -32602
	case Internal:
		return -32603
	default:
		return -32000
	}
}

// HTTPStatus maps a Kind to the HTTP status the front-end should return.
func HTTPStatus(k Kind) int {
	switch k {
	case Unauthenticated:
		return 401
	case Forbidden:
		return 403
	case BadRequest, NoProvidersMatch:
		return 400
	case RateLimited:
		return 429
	case UpstreamUnavailable, CircuitOpen, CircuitHalfOpenBusy:
		return 503
	case ConfigInvalid, Internal, ProtocolError:
		return 500
	default:
		return 500
	}
}
