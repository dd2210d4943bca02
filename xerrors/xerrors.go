// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package xerrors defines the error taxonomy shared by every streaming
// subsystem in this module: the bidirectional stream runtime, the
// coordination session, and the topic writer all construct and classify
// errors through this package rather than returning bare fmt.Errorf values.
package xerrors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies an error for retry decisions and for presenting a stable
// taxonomy to callers, independent of the underlying transport.
type Kind int

const (
	// KindUnknown is the zero value; it should never be returned to a caller.
	KindUnknown Kind = iota
	// KindTransport covers channel-unavailable and deadline-exceeded transport
	// failures; a transport CANCELLED is classified KindCancelled.
	KindTransport
	// KindSessionExpired means the server invalidated the coordination/topic session.
	KindSessionExpired
	// KindBadSession means the server does not recognize the session id presented.
	KindBadSession
	// KindRetryableServer covers OVERLOADED and ABORTED server statuses.
	KindRetryableServer
	// KindNonRetryableServer covers bad request, not found, permission denied, etc.
	KindNonRetryableServer
	// KindProtocol covers missing operations and unexpected server frames.
	KindProtocol
	// KindPayloadTooLarge means a single message exceeded MAX_PAYLOAD_SIZE.
	KindPayloadTooLarge
	// KindSeqNoModeConflict means a writer mixed manual and auto seqNo usage.
	KindSeqNoModeConflict
	// KindSeqNoRegression means a manual-mode seqNo did not strictly increase.
	KindSeqNoRegression
	// KindUnsupportedCodec means a message or stream referenced an unknown codec id.
	KindUnsupportedCodec
	// KindCancelled means the caller's context/abort token fired, or the
	// transport reported CANCELLED.
	KindCancelled
	// KindClosed means the operation was issued against an already-closed
	// session, stream, or writer.
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindSessionExpired:
		return "session_expired"
	case KindBadSession:
		return "bad_session"
	case KindRetryableServer:
		return "retryable_server"
	case KindNonRetryableServer:
		return "non_retryable_server"
	case KindProtocol:
		return "protocol"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindSeqNoModeConflict:
		return "seqno_mode_conflict"
	case KindSeqNoRegression:
		return "seqno_regression"
	case KindUnsupportedCodec:
		return "unsupported_codec"
	case KindCancelled:
		return "cancelled"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every public operation in
// this module. It is always inspectable via Is/As and carries an optional
// gRPC status code when the failure originated on the wire.
type Error struct {
	Kind    Kind
	Code    codes.Code
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

// New constructs an Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithCode attaches a gRPC status code to e and returns e for chaining.
func (e *Error) WithCode(code codes.Code) *Error {
	e.Code = code
	return e
}

// Is reports whether err is, or wraps, an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// As is a convenience wrapper around errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// FromGRPCStatus classifies a raw gRPC transport error (one that did not
// travel through the YDB status/issues envelope) into our taxonomy.
func FromGRPCStatus(err error) *Error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return Wrap(KindTransport, "non-status transport error", err)
	}
	switch st.Code() {
	case codes.Canceled:
		return Wrap(KindCancelled, st.Message(), err).WithCode(st.Code())
	case codes.Unavailable:
		return Wrap(KindTransport, st.Message(), err).WithCode(st.Code())
	case codes.Aborted, codes.ResourceExhausted:
		return Wrap(KindRetryableServer, st.Message(), err).WithCode(st.Code())
	case codes.DeadlineExceeded:
		return Wrap(KindTransport, st.Message(), err).WithCode(st.Code())
	default:
		return Wrap(KindNonRetryableServer, st.Message(), err).WithCode(st.Code())
	}
}
