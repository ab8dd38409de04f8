package mbus

import (
	"errors"
	"fmt"
)

// Codec errors.
var (
	ErrIncomplete             = errors.New("mbus: incomplete frame")
	ErrMalformed              = errors.New("mbus: malformed frame")
	ErrChecksumMismatch       = fmt.Errorf("%w: checksum mismatch", ErrMalformed)
	ErrMalformedPayload       = errors.New("mbus: malformed payload")
	ErrInvalidBCD             = errors.New("mbus: invalid BCD digit")
	ErrUnsupportedFieldLength = errors.New("mbus: unsupported field length")
	ErrUnexpectedCI           = errors.New("mbus: unexpected control information")
	ErrMeterMismatch          = errors.New("mbus: answer from another meter")
)

// Scheduler and transport errors.
var (
	ErrTimeout         = errors.New("mbus: response timeout")
	ErrTransportSend   = errors.New("mbus: transport send failed")
	ErrAdapterClosed   = errors.New("mbus: network adapter closed")
	ErrQueueFull       = errors.New("mbus: command queue full")
	ErrCommandInFlight = errors.New("mbus: command is awaiting a response")
	ErrCommandNotFound = errors.New("mbus: command not found")
	ErrDropped         = errors.New("mbus: command dropped after repeated send failures")
)
