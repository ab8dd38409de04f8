package mbus

import (
	"fmt"
	"time"

	goserial "github.com/hootrhino/goserial"
)

// SerialConfig describes an M-Bus serial line.
type SerialConfig struct {
	Address      string // device path, e.g. /dev/ttyUSB0 or COM3
	BaudRate     int
	DataBits     int
	StopBits     int
	Parity       string // "N", "E" or "O"
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultSerialConfig returns the usual M-Bus line settings: 2400 baud,
// 8 data bits, even parity, 1 stop bit.
func DefaultSerialConfig(address string) SerialConfig {
	return SerialConfig{
		Address:      address,
		BaudRate:     2400,
		DataBits:     8,
		StopBits:     1,
		Parity:       "E",
		ReadTimeout:  20 * time.Millisecond,
		WriteTimeout: time.Second,
	}
}

// OpenSerial opens the port and wraps it in a StreamAdapter. The port's read
// timeout keeps Receive from blocking the scheduler.
func OpenSerial(config SerialConfig) (*StreamAdapter, error) {
	defaults := DefaultSerialConfig(config.Address)
	if config.BaudRate <= 0 {
		config.BaudRate = defaults.BaudRate
	}
	if config.DataBits <= 0 {
		config.DataBits = defaults.DataBits
	}
	if config.StopBits <= 0 {
		config.StopBits = defaults.StopBits
	}
	if config.Parity == "" {
		config.Parity = defaults.Parity
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	port, err := goserial.Open(&goserial.Config{
		Address:  config.Address,
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		StopBits: config.StopBits,
		Parity:   config.Parity,
		Timeout:  config.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", config.Address, err)
	}
	return NewStreamAdapter(port, config.ReadTimeout, config.WriteTimeout), nil
}
