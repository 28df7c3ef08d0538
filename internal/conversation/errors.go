package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateEvent is reported when an inbound message id is already in flight.
	ErrDuplicateEvent = errors.New("conversation: duplicate event")
	// ErrNotFound is returned by stores when no record exists for a sender.
	ErrNotFound = errors.New("conversation: not found")
	// ErrConflict is returned when a write lost a race (duplicate sender or stale version).
	ErrConflict = errors.New("conversation: conflict")
	// ErrTransport marks failures of delivery, read receipts or response generation.
	ErrTransport = errors.New("conversation: transport failure")
	// ErrValidationSkip marks an empty or malformed registration answer.
	ErrValidationSkip = errors.New("conversation: validation skip")
	// ErrInvalidRecord is returned when a record would violate the phase rules.
	ErrInvalidRecord = errors.New("conversation: invalid record")
)

// TransportError wraps an adapter failure so callers can match ErrTransport
// while keeping the underlying cause.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("conversation: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// NewTransportError wraps err as a transport failure for op. Nil stays nil.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}
