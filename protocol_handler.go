// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package mbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandlerConfig holds the scheduler limits. Zero fields take the defaults.
type HandlerConfig struct {
	RxTimeout      time.Duration // time to wait for a response after a send
	MaxQueueDepth  int           // commands accepted before ErrQueueFull
	MaxSendRetries int           // failed sends before a command is dropped
	MaxRxBuffer    int           // receive buffer bound, oldest bytes dropped first
}

// DefaultHandlerConfig returns the default scheduler limits.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		RxTimeout:      1000 * time.Millisecond,
		MaxQueueDepth:  64,
		MaxSendRetries: 3,
		MaxRxBuffer:    1024,
	}
}

// HandlerOption configures optional collaborators of a ProtocolHandler.
type HandlerOption func(*ProtocolHandler)

// WithClock replaces the system clock.
func WithClock(clock Clock) HandlerOption {
	return func(h *ProtocolHandler) {
		h.clock = clock
	}
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *ProtocolHandler) {
		h.logger = logger
	}
}

// WithMetrics records scheduler activity in m.
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *ProtocolHandler) {
		h.metrics = m
	}
}

// ProtocolHandler sequences commands over one half-duplex link: at most one
// command is in flight, and commands are sent strictly in registration
// order. It is not safe for concurrent use; drive it from one goroutine.
type ProtocolHandler struct {
	adapter NetworkAdapter
	config  HandlerConfig
	clock   Clock
	logger  *zap.Logger
	metrics *Metrics

	rx       []byte
	queue    []*Command
	awaiting bool
	sentAt   uint32
}

// NewProtocolHandler creates a handler polling adapter.
func NewProtocolHandler(adapter NetworkAdapter, config HandlerConfig, opts ...HandlerOption) *ProtocolHandler {
	defaults := DefaultHandlerConfig()
	if config.RxTimeout <= 0 {
		config.RxTimeout = defaults.RxTimeout
	}
	if config.MaxQueueDepth <= 0 {
		config.MaxQueueDepth = defaults.MaxQueueDepth
	}
	if config.MaxSendRetries <= 0 {
		config.MaxSendRetries = defaults.MaxSendRetries
	}
	if config.MaxRxBuffer < MaxFrameLength {
		config.MaxRxBuffer = defaults.MaxRxBuffer
	}

	h := &ProtocolHandler{
		adapter: adapter,
		config:  config,
		clock:   NewSystemClock(),
		logger:  zap.NewNop(),
		rx:      make([]byte, 0, config.MaxRxBuffer),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterCommand appends a command to the queue. By default the command is
// sent on the next tick and waits for a response; see WithData, WithDelay,
// WithoutResponse and WithFailureHandler. The frame is copied.
func (h *ProtocolHandler) RegisterCommand(frame Frame, handler ResponseHandler, opts ...CommandOption) (uuid.UUID, error) {
	if len(h.queue) >= h.config.MaxQueueDepth {
		return uuid.Nil, fmt.Errorf("%w: %d commands queued", ErrQueueFull, len(h.queue))
	}
	raw, err := frame.Encode()
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode command: %w", err)
	}

	cmd := &Command{
		ID:              uuid.New(),
		Frame:           frame.Clone(),
		Created:         h.clock.Millis(),
		WaitForResponse: true,
		raw:             raw,
		onResponse:      handler,
	}
	for _, opt := range opts {
		opt(cmd)
	}
	cmd.delay = toMillis(cmd.Delay)

	h.queue = append(h.queue, cmd)
	h.metrics.setQueueDepth(len(h.queue))
	h.logger.Debug("command registered",
		zap.String("id", cmd.ID.String()),
		zap.Stringer("frame", cmd.Frame),
		zap.Duration("delay", cmd.Delay),
		zap.Bool("wait_for_response", cmd.WaitForResponse),
	)
	return cmd.ID, nil
}

// Cancel removes a queued command. A command awaiting its response cannot
// be cancelled: the meter may still answer.
func (h *ProtocolHandler) Cancel(id uuid.UUID) error {
	for i, cmd := range h.queue {
		if cmd.ID != id {
			continue
		}
		if i == 0 && h.awaiting {
			return fmt.Errorf("%w: %s", ErrCommandInFlight, id)
		}
		h.queue = append(h.queue[:i], h.queue[i+1:]...)
		h.metrics.setQueueDepth(len(h.queue))
		return nil
	}
	return fmt.Errorf("%w: %s", ErrCommandNotFound, id)
}

// Len returns the number of queued commands, including the one in flight.
func (h *ProtocolHandler) Len() int {
	return len(h.queue)
}

// State reports the state of the in-flight slot.
func (h *ProtocolHandler) State() State {
	switch {
	case h.awaiting:
		return StateAwaitingResponse
	case len(h.queue) > 0:
		return StatePendingDelay
	default:
		return StateIdle
	}
}

// Tick runs one scheduler step: match received frames, expire a pending
// response, then send the head command once its delay has passed.
//
// Parse errors are handled internally. Tick returns an error wrapping
// ErrTransportSend when a send failed, and ErrAdapterClosed when the link is
// gone.
func (h *ProtocolHandler) Tick() error {
	if err := h.receive(); err != nil {
		return err
	}
	h.checkTimeout()

	if h.awaiting || len(h.queue) == 0 {
		return nil
	}
	head := h.queue[0]
	now := h.clock.Millis()
	if elapsed(now, head.Created) < head.delay {
		return nil
	}
	if err := h.send(head, now); err != nil {
		return err
	}
	if !head.WaitForResponse {
		h.popHead()
		return nil
	}
	// Fast links may already hold the reply.
	return h.receive()
}

func (h *ProtocolHandler) receive() error {
	data, err := h.adapter.Receive()
	if len(data) > 0 {
		h.metrics.addBytes(len(data))
		h.appendRx(data)
	}
	if err != nil {
		if isClosedError(err) {
			return fmt.Errorf("%w: %v", ErrAdapterClosed, err)
		}
		h.logger.Debug("receive failed", zap.Error(err))
	}
	h.processRx()
	return nil
}

func (h *ProtocolHandler) appendRx(data []byte) {
	h.rx = append(h.rx, data...)
	if over := len(h.rx) - h.config.MaxRxBuffer; over > 0 {
		h.logger.Warn("receive buffer overflow, dropping oldest bytes", zap.Int("dropped", over))
		h.rx = append(h.rx[:0], h.rx[over:]...)
	}
}

func (h *ProtocolHandler) processRx() {
	for len(h.rx) > 0 {
		frame, n, err := ParseResponse(h.rx)
		if errors.Is(err, ErrIncomplete) {
			h.metrics.observeFrame(resultIncomplete)
			return
		}
		dropped := h.rx[:n]
		if err != nil {
			result := resultMalformed
			if errors.Is(err, ErrChecksumMismatch) {
				result = resultChecksum
			}
			h.metrics.observeFrame(result)
			h.logger.Warn("discarding malformed bytes",
				zap.Error(err),
				zap.String("bytes", formatHex(dropped)),
			)
			h.rx = append(h.rx[:0], h.rx[n:]...)
			continue
		}
		h.metrics.observeFrame(resultOK)
		h.logger.Debug("frame received", zap.Stringer("frame", frame), zap.String("bytes", formatHex(dropped)))
		h.rx = append(h.rx[:0], h.rx[n:]...)
		h.dispatch(frame)
	}
}

func (h *ProtocolHandler) dispatch(frame *Frame) {
	if !h.awaiting {
		h.logger.Debug("discarding unsolicited frame", zap.Stringer("frame", frame))
		return
	}
	cmd := h.popHead()
	h.awaiting = false
	h.metrics.incResponse()
	h.logger.Debug("command answered",
		zap.String("id", cmd.ID.String()),
		zap.Uint32("latency_ms", elapsed(h.clock.Millis(), h.sentAt)),
	)
	if cmd.onResponse != nil {
		cmd.onResponse(cmd, frame)
	}
}

func (h *ProtocolHandler) checkTimeout() {
	if !h.awaiting {
		return
	}
	if elapsed(h.clock.Millis(), h.sentAt) <= toMillis(h.config.RxTimeout) {
		return
	}
	cmd := h.popHead()
	h.awaiting = false
	h.metrics.incTimeout()
	h.logger.Warn("command timed out",
		zap.String("id", cmd.ID.String()),
		zap.Stringer("frame", cmd.Frame),
		zap.Duration("rx_timeout", h.config.RxTimeout),
	)
	if cmd.onFailure != nil {
		cmd.onFailure(cmd, ErrTimeout)
	}
}

func (h *ProtocolHandler) send(cmd *Command, now uint32) error {
	// Bytes left over belong to no command.
	if len(h.rx) > 0 {
		h.logger.Debug("clearing receive buffer before send", zap.String("bytes", formatHex(h.rx)))
		h.rx = h.rx[:0]
	}

	if err := h.adapter.Send(cmd.raw); err != nil {
		h.metrics.incSendFailure()
		if isClosedError(err) {
			return fmt.Errorf("%w: %v", ErrAdapterClosed, err)
		}
		cmd.attempts++
		h.logger.Warn("send failed",
			zap.String("id", cmd.ID.String()),
			zap.Int("attempt", cmd.attempts),
			zap.Error(err),
		)
		if cmd.attempts >= h.config.MaxSendRetries {
			h.popHead()
			if cmd.onFailure != nil {
				cmd.onFailure(cmd, fmt.Errorf("%w: %v", ErrDropped, err))
			}
		}
		return fmt.Errorf("%w: command %s: %v", ErrTransportSend, cmd.ID, err)
	}

	h.metrics.incSent()
	h.logger.Debug("command sent",
		zap.String("id", cmd.ID.String()),
		zap.String("bytes", formatHex(cmd.raw)),
	)
	if cmd.WaitForResponse {
		h.awaiting = true
		h.sentAt = now
	}
	return nil
}

func (h *ProtocolHandler) popHead() *Command {
	cmd := h.queue[0]
	h.queue[0] = nil
	h.queue = h.queue[1:]
	h.metrics.setQueueDepth(len(h.queue))
	return cmd
}
