package proxy

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/die-net/pxx/internal/endpoint"
)

// BindError reports that a listen endpoint could not be bound.
type BindError struct {
	Endpoint string
	Err      error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Endpoint, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// IsRetryable reports whether a bind error may go away on its own: the
// selected interface does not exist yet, or the address is not yet
// assigned to any interface.
func IsRetryable(err error) bool {
	return errors.Is(err, endpoint.ErrInterfaceNotFound) || isAddrNotAvailable(err)
}

// isExpectedCloseError reports whether err is the normal result of one side
// of a relay going away: EOF, use of a closed conn, broken pipe or reset.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
