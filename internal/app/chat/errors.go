package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned by the session gate when a connection carries no valid session.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrTransport wraps a failed send on a connection. It only ever tears down that connection.
	ErrTransport = errors.New("transport failure")

	// ErrSlowConsumer is the termination cause of a connection whose send queue overflowed.
	ErrSlowConsumer = errors.New("send queue full")

	// ErrIdleTimeout is the termination cause of a connection with no successful send within the idle timeout.
	ErrIdleTimeout = errors.New("no successful send within idle timeout")

	// ErrConnectionClosed is the termination cause of a connection closed by the client or by OnDisconnect.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrServiceClosed is returned once the chat service has been shut down.
	ErrServiceClosed = errors.New("chat service shut down")
)

// Validation reasons reported in ValidationError.Reason.
const (
	ReasonEmpty     = "empty"
	ReasonTooLong   = "too long"
	ReasonMalformed = "malformed"
	ReasonUnknown   = "unknown"
)

// ValidationError reports a malformed submission. It is surfaced to the submitting client only.
type ValidationError struct {
	Field  string
	Reason string

	// Limit is the bound that was exceeded, for ReasonTooLong.
	Limit int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StoreError reports a persistence failure. A message whose persistence failed is never broadcast.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
