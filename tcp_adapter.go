package mbus

import (
	"fmt"
	"net"
	"time"
)

// DialTCP connects to an M-Bus level converter that bridges its serial
// line to TCP, and wraps the connection in a StreamAdapter.
func DialTCP(address string, timeout time.Duration) (*StreamAdapter, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
	}
	return NewStreamAdapter(conn, 20*time.Millisecond, timeout), nil
}
