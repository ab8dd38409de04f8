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
	"io"
	"net"
	"sync"
	"time"
)

const defaultReadSize = 512

// StreamAdapter is a NetworkAdapter over any byte stream: a serial port, a
// TCP connection or a pipe. Receive waits at most readTimeout; a read that
// times out yields no bytes and no error.
type StreamAdapter struct {
	conn         io.ReadWriteCloser
	readTimeout  time.Duration
	writeTimeout time.Duration
	buf          []byte
	mu           sync.Mutex
}

// NewStreamAdapter wraps conn. Deadlines are applied when conn is a
// net.Conn; serial ports bound their reads through their own timeout.
func NewStreamAdapter(conn io.ReadWriteCloser, readTimeout, writeTimeout time.Duration) *StreamAdapter {
	return &StreamAdapter{
		conn:         conn,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		buf:          make([]byte, defaultReadSize),
	}
}

// Send writes the whole frame.
func (a *StreamAdapter) Send(data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return ErrAdapterClosed
	}
	if len(data) == 0 {
		return fmt.Errorf("cannot write empty data")
	}
	if c, ok := a.conn.(net.Conn); ok && a.writeTimeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(a.writeTimeout))
		defer c.SetWriteDeadline(time.Time{})
	}
	written := 0
	for written < len(data) {
		n, err := a.conn.Write(data[written:])
		if err != nil {
			return fmt.Errorf("write failed after %d bytes: %w", written, err)
		}
		if n == 0 {
			return fmt.Errorf("write stalled after %d bytes", written)
		}
		written += n
	}
	return nil
}

// Receive returns the bytes available within the read timeout. The returned
// slice is a copy.
func (a *StreamAdapter) Receive() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil, ErrAdapterClosed
	}
	if c, ok := a.conn.(net.Conn); ok {
		_ = c.SetReadDeadline(time.Now().Add(a.readTimeout))
	}
	n, err := a.conn.Read(a.buf)
	var out []byte
	if n > 0 {
		out = make([]byte, n)
		copy(out, a.buf[:n])
	}
	if err != nil {
		if isTimeout(err) {
			return out, nil
		}
		return out, fmt.Errorf("read failed: %w", err)
	}
	return out, nil
}

// Close closes the underlying stream. Later calls report ErrAdapterClosed.
func (a *StreamAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	return err
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
