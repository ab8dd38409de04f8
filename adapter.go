package mbus

import (
	"errors"
	"io"
	"net"
	"os"
)

// NetworkAdapter is the byte link the protocol handler polls. Receive must
// not block: it returns whatever bytes are available, possibly none.
type NetworkAdapter interface {
	Send(data []byte) error
	Receive() ([]byte, error)
}

// isClosedError reports whether err means the link is gone for good.
func isClosedError(err error) bool {
	return errors.Is(err, ErrAdapterClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed)
}
