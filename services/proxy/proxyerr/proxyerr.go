// Package proxyerr defines the error taxonomy shared by every proxy
// component: producer protocol violations, unknown report names,
// transport failures, and internal invariant violations.
package proxyerr

import (
	"errors"
	"fmt"
)

// Sentinel errors matching the four classes in the proxy's error taxonomy.
// Callers classify an error with errors.Is against these, never by string
// matching.
var (
	// ErrProducerProtocolViolation marks a producer connection that sent a
	// message outside the expected protocol (wrong first frame, malformed
	// envelope, unrecognized type). The handler passes it to its fatal
	// handler and closes the connection; it is not retried.
	ErrProducerProtocolViolation = errors.New("proxy: producer protocol violation")

	// ErrReportNotFound marks a consumer request for a report name with no
	// registered session.
	ErrReportNotFound = errors.New("proxy: report not found")

	// ErrTransportFailure marks a network-level failure reading or writing
	// a websocket connection (reset, EOF, broken pipe). Handlers recover
	// from it by closing the connection quietly; it never propagates to
	// the supervisor.
	ErrTransportFailure = errors.New("proxy: transport failure")

	// ErrInternalInvariantViolation marks a condition the state machine
	// asserts can never happen (for example, a session with no producer and
	// no consumers still present in the registry). It propagates to the
	// supervisor, which treats it as fatal.
	ErrInternalInvariantViolation = errors.New("proxy: internal invariant violation")
)

// Wrap annotates err with msg while preserving errors.Is matching against
// the sentinel it wraps.
func Wrap(sentinel error, msg string) error {
	return fmt.Errorf("%s: %w", msg, sentinel)
}

// Wrapf is Wrap with fmt.Sprintf-style formatting of msg.
func Wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}

// IsProtocolViolation reports whether err is or wraps
// ErrProducerProtocolViolation.
func IsProtocolViolation(err error) bool {
	return errors.Is(err, ErrProducerProtocolViolation)
}

// IsReportNotFound reports whether err is or wraps ErrReportNotFound.
func IsReportNotFound(err error) bool {
	return errors.Is(err, ErrReportNotFound)
}

// IsTransportFailure reports whether err is or wraps ErrTransportFailure.
func IsTransportFailure(err error) bool {
	return errors.Is(err, ErrTransportFailure)
}

// IsInternalInvariantViolation reports whether err is or wraps
// ErrInternalInvariantViolation.
func IsInternalInvariantViolation(err error) bool {
	return errors.Is(err, ErrInternalInvariantViolation)
}
