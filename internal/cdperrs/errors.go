// Package cdperrs defines the error taxonomy shared across the engine:
// validation, transport, protocol, element, navigation, and assertion
// failures, plus the handful of conditions that are deliberately
// reinterpreted rather than propagated (context-destroyed-as-navigation).
package cdperrs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which branch of the taxonomy an Error belongs to.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindTransport       Kind = "transport"
	KindProtocol        Kind = "protocol"
	KindContextDestroyed Kind = "context-destroyed"
	KindElement         Kind = "element"
	KindStale           Kind = "stale"
	KindNavigation      Kind = "navigation"
	KindAssertion       Kind = "assertion"
)

// Error is a structured, taxonomy-tagged error.
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

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// Sentinel transport-level errors, mirroring the teacher's errors.go style
// of a short list of package-level sentinels for conditions callers often
// need to compare against directly.
var (
	// ErrClosed is returned by every pending request when the transport
	// closes: "every pending entry fails with a WS closed error."
	ErrClosed = errors.New("cdperrs: websocket closed")

	// ErrTimeout is returned when a request's deadline elapses before a
	// reply arrives.
	ErrTimeout = errors.New("cdperrs: request timed out")

	// ErrChannelClosed indicates a pending completion was abandoned
	// without a reply, error, or timeout — a bug if ever observed.
	ErrChannelClosed = errors.New("cdperrs: completion channel closed without a result")
)

// contextDestroyedMarker is the substring CDP uses in its error message
// when the execution context backing a call has been torn down, typically
// by a navigation that raced the call.
const contextDestroyedMarker = "Cannot find context with specified id"

// IsContextDestroyed reports whether a raw CDP protocol error indicates the
// execution context was destroyed mid-call.
func IsContextDestroyed(msg string) bool {
	return strings.Contains(msg, contextDestroyedMarker)
}
