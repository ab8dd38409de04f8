package mbus

import (
	"time"

	"github.com/google/uuid"
)

// ResponseHandler is called once with the response matched to a command.
type ResponseHandler func(cmd *Command, response *Frame)

// FailureHandler is called when a command is retired without a response:
// timed out, or dropped after repeated send failures.
type FailureHandler func(cmd *Command, err error)

// Command is one queued request. The queue owns it from registration until
// it is retired.
type Command struct {
	ID              uuid.UUID
	Frame           Frame
	Data            uint8 // opaque tag for the caller
	Created         uint32
	Delay           time.Duration
	WaitForResponse bool

	raw        []byte
	delay      uint32
	attempts   int
	onResponse ResponseHandler
	onFailure  FailureHandler
}

// Attempts returns how many sends of this command have failed.
func (c *Command) Attempts() int {
	return c.attempts
}

// CommandOption configures a command at registration.
type CommandOption func(*Command)

// WithData attaches an opaque tag to the command.
func WithData(data uint8) CommandOption {
	return func(c *Command) {
		c.Data = data
	}
}

// WithDelay holds the command back until delay has passed since it was
// registered.
func WithDelay(delay time.Duration) CommandOption {
	return func(c *Command) {
		c.Delay = delay
	}
}

// WithoutResponse makes the command fire-and-forget: it is retired as soon
// as it has been sent.
func WithoutResponse() CommandOption {
	return func(c *Command) {
		c.WaitForResponse = false
	}
}

// WithFailureHandler sets the callback for timed out or dropped commands.
func WithFailureHandler(fn FailureHandler) CommandOption {
	return func(c *Command) {
		c.onFailure = fn
	}
}

// State is the scheduler state of the in-flight slot.
type State uint8

const (
	StateIdle State = iota
	StatePendingDelay
	StateAwaitingResponse
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingDelay:
		return "pending_delay"
	case StateAwaitingResponse:
		return "awaiting_response"
	default:
		return "unknown"
	}
}
