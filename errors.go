package qrefresh

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownQubit          = errors.New("unknown qubit")
	ErrQubitExists           = errors.New("qubit already exists")
	ErrZeroAmplitude         = errors.New("amplitude pair has zero norm")
	ErrInvalidAmplitude      = errors.New("amplitude is NaN or infinite")
	ErrEmptyID               = errors.New("qubit id is empty")
	ErrAddressSpaceExhausted = errors.New("no device address left")
	ErrTimeout               = errors.New("device read timed out")
	ErrLinkClosed            = errors.New("device link closed")
)

/*
UnknownQubitError is returned by every operation that names a qubit the
QuantumSpace has never seen. It matches ErrUnknownQubit with errors.Is.
*/
type UnknownQubitError struct {
	ID string
}

func (e *UnknownQubitError) Error() string {
	return fmt.Sprintf("unknown qubit %q", e.ID)
}

func (e *UnknownQubitError) Is(target error) bool {
	return target == ErrUnknownQubit
}

/*
ChannelError wraps any failure of the underlying device channel, including
timeouts. Op names the command that was in flight.
*/
type ChannelError struct {
	Op    string
	Cause error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("device channel %s: %v", e.Op, e.Cause)
}

func (e *ChannelError) Unwrap() error {
	return e.Cause
}

// MalformedResponse reports a response shorter than the frame layout demands.
type MalformedResponse struct {
	Opcode   Opcode
	Expected int
	Got      int
}

func (e *MalformedResponse) Error() string {
	return fmt.Sprintf(
		"malformed response to %s: expected %d bytes, got %d",
		e.Opcode, e.Expected, e.Got,
	)
}
