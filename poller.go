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
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Meter is a polled device. Meters at AddressNetworkLayer are reached by
// secondary address: ID and Manufacturer select them before each readout.
type Meter struct {
	Name         string
	Address      byte
	ID           uint32
	Manufacturer string // empty matches any manufacturer
}

// Readout is the decoded answer of one meter.
type Readout struct {
	Meter Meter
	Frame *Frame
	Data  *VariableData
	Time  time.Time
}

// OnReadoutFunc is a callback type for completed readouts
type OnReadoutFunc func(Readout)

// OnErrorFunc is a callback type for error reporting
type OnErrorFunc func(Meter, error)

// PollerConfig holds the poller timing and meter list.
type PollerConfig struct {
	TickInterval    time.Duration // scheduler step period
	ReadoutInterval time.Duration // 0 disables periodic readout
	ResetDelay      time.Duration // pause between the link setup ACK and REQ_UD2
	Meters          []Meter
}

// DefaultPollerConfig returns the default poller timing.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		TickInterval:    10 * time.Millisecond,
		ReadoutInterval: time.Minute,
		ResetDelay:      50 * time.Millisecond,
	}
}

// Poller drives a ProtocolHandler from a single goroutine and reads the
// configured meters periodically.
type Poller struct {
	handler   *ProtocolHandler
	config    PollerConfig
	logger    *zap.Logger
	calls     chan func(*ProtocolHandler)
	onReadout atomic.Value // Stores OnReadoutFunc callback
	onError   atomic.Value // Stores OnErrorFunc callback
	running   atomic.Bool

	// owned by the polling goroutine
	backlog []Meter
	busy    bool
}

// NewPoller creates a poller for handler. A nil logger discards output.
func NewPoller(handler *ProtocolHandler, config PollerConfig, logger *zap.Logger) *Poller {
	defaults := DefaultPollerConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = defaults.TickInterval
	}
	if config.ResetDelay < 0 {
		config.ResetDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		handler: handler,
		config:  config,
		logger:  logger,
		calls:   make(chan func(*ProtocolHandler), 16),
	}
}

// SetOnReadout sets the callback for decoded readouts.
func (p *Poller) SetOnReadout(fn OnReadoutFunc) {
	p.onReadout.Store(fn)
}

// SetOnError sets the callback for failed readouts.
func (p *Poller) SetOnError(fn OnErrorFunc) {
	p.onError.Store(fn)
}

// Do runs fn on the polling goroutine, which owns the handler. It returns
// once fn has been queued, not once it has run.
func (p *Poller) Do(ctx context.Context, fn func(*ProtocolHandler)) error {
	select {
	case p.calls <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run ticks the handler until ctx is done or the link is closed. Callbacks
// run on this goroutine.
func (p *Poller) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("poller already running")
	}
	defer p.running.Store(false)

	ticker := time.NewTicker(p.config.TickInterval)
	defer ticker.Stop()

	var readouts <-chan time.Time
	if p.config.ReadoutInterval > 0 && len(p.config.Meters) > 0 {
		readoutTicker := time.NewTicker(p.config.ReadoutInterval)
		defer readoutTicker.Stop()
		readouts = readoutTicker.C
		p.scheduleReadouts()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-p.calls:
			fn(p.handler)
		case <-readouts:
			p.scheduleReadouts()
		case <-ticker.C:
			if err := p.handler.Tick(); err != nil {
				if errors.Is(err, ErrAdapterClosed) {
					return err
				}
				p.logger.Warn("tick failed", zap.Error(err))
			}
		}
	}
}

func (p *Poller) scheduleReadouts() {
	if p.busy || len(p.backlog) > 0 {
		p.logger.Warn("previous readout cycle still running, skipping",
			zap.Int("pending", len(p.backlog)),
		)
		return
	}
	p.backlog = append(p.backlog, p.config.Meters...)
	p.nextReadout()
}

// ReadMeter queues a readout of meter. Readouts run one meter at a time: a
// link reset, or a secondary address selection, is sent first and the class
// 2 data request follows ResetDelay after the meter acknowledged it. It must
// be called on the polling goroutine, for example from Do.
func (p *Poller) ReadMeter(meter Meter) error {
	if _, err := linkSetup(meter); err != nil {
		return err
	}
	p.backlog = append(p.backlog, meter)
	p.nextReadout()
	return nil
}

func (p *Poller) nextReadout() {
	for !p.busy && len(p.backlog) > 0 {
		meter := p.backlog[0]
		p.backlog = p.backlog[1:]
		if err := p.startReadout(meter); err != nil {
			p.reportError(meter, err)
			continue
		}
		p.busy = true
	}
}

func (p *Poller) readoutDone() {
	p.busy = false
	p.nextReadout()
}

func linkSetup(meter Meter) (Frame, error) {
	if meter.Address == AddressNetworkLayer {
		return SelectSecondary(meter.ID, meter.Manufacturer, 0xFF, 0xFF)
	}
	return SndNKE(meter.Address), nil
}

func (p *Poller) startReadout(meter Meter) error {
	setup, err := linkSetup(meter)
	if err != nil {
		return err
	}
	failed := WithFailureHandler(func(cmd *Command, err error) {
		p.reportError(meter, fmt.Errorf("%s: %w", cmd.Frame, err))
		p.readoutDone()
	})

	_, err = p.handler.RegisterCommand(setup, func(cmd *Command, response *Frame) {
		if !IsAck(response) {
			p.reportError(meter, fmt.Errorf("%w: %s answered with %s", ErrUnexpectedCI, cmd.Frame, response))
			p.readoutDone()
			return
		}
		_, err := p.handler.RegisterCommand(ReqUD2(meter.Address, true), func(cmd *Command, response *Frame) {
			p.handleReadout(meter, response)
			p.readoutDone()
		}, failed, WithDelay(p.config.ResetDelay))
		if err != nil {
			p.reportError(meter, err)
			p.readoutDone()
		}
	}, failed)
	return err
}

func (p *Poller) handleReadout(meter Meter, response *Frame) {
	if !IsUserData(response) {
		p.reportError(meter, fmt.Errorf("%w: expected RSP_UD, got %s", ErrUnexpectedCI, response))
		return
	}
	data, err := ParseVariableData(response)
	if err != nil {
		if data == nil {
			p.reportError(meter, err)
			return
		}
		p.logger.Warn("partial readout",
			zap.String("meter", meter.Name),
			zap.Int("records", len(data.Records)),
			zap.Error(err),
		)
	}
	if err := checkIdentity(meter, response, data.Header); err != nil {
		p.reportError(meter, err)
		return
	}
	p.logger.Info("meter read",
		zap.String("meter", meter.Name),
		zap.Uint64("id", data.Header.IdentificationNumber),
		zap.String("manufacturer", data.Header.Manufacturer),
		zap.Int("records", len(data.Records)),
	)
	if cb, ok := p.onReadout.Load().(OnReadoutFunc); ok && cb != nil {
		cb(Readout{Meter: meter, Frame: response, Data: data, Time: time.Now()})
	}
}

// checkIdentity rejects a long header answer to a secondary address
// readout that names a different meter. Short headers carry no identity.
func checkIdentity(meter Meter, response *Frame, header VariableDataHeader) error {
	if meter.Address != AddressNetworkLayer || response.ControlInfo != CIResponseLongHeader {
		return nil
	}
	if header.IdentificationNumber != uint64(meter.ID) ||
		(meter.Manufacturer != "" && !strings.EqualFold(header.Manufacturer, meter.Manufacturer)) {
		return fmt.Errorf("%w: selected %08d %s, answered %08d %s", ErrMeterMismatch,
			meter.ID, meter.Manufacturer, header.IdentificationNumber, header.Manufacturer)
	}
	return nil
}

func (p *Poller) reportError(meter Meter, err error) {
	p.logger.Warn("meter readout failed", zap.String("meter", meter.Name), zap.Error(err))
	if cb, ok := p.onError.Load().(OnErrorFunc); ok && cb != nil {
		cb(meter, err)
	}
}
