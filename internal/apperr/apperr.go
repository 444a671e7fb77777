// Package apperr defines the closed error taxonomy shared by the manager
// and worker services, plus pure mapping functions from a Kind to the
// transport-level status a caller sees.
package apperr

import "fmt"

// Kind tags the semantic category of an Error. New kinds are added here,
// never invented ad hoc at call sites.
type Kind string

const (
	AuthMissing       Kind = "auth_missing"
	AuthInvalid       Kind = "auth_invalid"
	PermissionDenied  Kind = "permission_denied"
	UserNotFound      Kind = "user_not_found"
	ChannelNotFound   Kind = "channel_not_found"
	WorkerNotAvailable Kind = "worker_not_available"
	InvalidPassword   Kind = "invalid_password"
	Validate          Kind = "validate"
	InvalidRequest    Kind = "invalid_request"
	RateLimited       Kind = "rate_limited"
	DbError           Kind = "db_error"
	BroadcastStopped  Kind = "broadcast_stopped"
)

// Error is the closed tagged-variant error type. Message is the
// human-readable detail; Cause is the wrapped underlying error, if any.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Of extracts the *Error from err, if any is present in its chain.
func Of(err error) (*Error, bool) {
	var ae *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			ae = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if ae == nil {
		return nil, false
	}
	return ae, true
}

// Code is the set of transport-agnostic status codes an Error maps to,
// deliberately named after the gRPC status vocabulary since that is the
// closest widely-understood analogue, even though the wire layer here is
// not gRPC.
type Code string

const (
	CodeUnauthenticated  Code = "unauthenticated"
	CodePermissionDenied Code = "permission_denied"
	CodeNotFound         Code = "not_found"
	CodeUnavailable      Code = "unavailable"
	CodeInvalidArgument  Code = "invalid_argument"
	CodeFailedPrecondition Code = "failed_precondition"
	CodeResourceExhausted Code = "resource_exhausted"
	CodeInternal         Code = "internal"
	CodeAborted          Code = "aborted"
	CodeUnknown          Code = "unknown"
)

// Status maps an error's Kind to its transport status code. A nil or
// unrecognized error maps to CodeUnknown so callers never have to guard
// against a missing case.
func Status(err error) Code {
	ae, ok := Of(err)
	if !ok {
		return CodeUnknown
	}
	switch ae.Kind {
	case AuthMissing, AuthInvalid:
		return CodeUnauthenticated
	case PermissionDenied:
		return CodePermissionDenied
	case UserNotFound, ChannelNotFound:
		return CodeNotFound
	case WorkerNotAvailable:
		return CodeUnavailable
	case InvalidPassword, Validate:
		return CodeInvalidArgument
	case InvalidRequest:
		return CodeFailedPrecondition
	case RateLimited:
		return CodeResourceExhausted
	case DbError:
		return CodeInternal
	case BroadcastStopped:
		return CodeAborted
	default:
		return CodeUnknown
	}
}

// HTTPStatus maps an error to the HTTP status code used by the rpc
// package's error frames, for callers that want a familiar number instead
// of a Code string.
func HTTPStatus(err error) int {
	switch Status(err) {
	case CodeUnauthenticated:
		return 401
	case CodePermissionDenied:
		return 403
	case CodeNotFound:
		return 404
	case CodeUnavailable:
		return 503
	case CodeInvalidArgument:
		return 400
	case CodeFailedPrecondition:
		return 412
	case CodeResourceExhausted:
		return 429
	case CodeAborted:
		return 409
	case CodeInternal:
		return 500
	default:
		return 500
	}
}
