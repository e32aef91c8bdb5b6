//go:build !windows

package proxy

import (
	"context"
	"fmt"
	"net"

	"github.com/die-net/pxx/internal/endpoint"
)

func listenPipe(name string) (net.Listener, error) {
	return nil, fmt.Errorf("named pipe %s: %w", name, endpoint.ErrUnsupported)
}

func dialPipe(_ context.Context, name string) (net.Conn, error) {
	return nil, fmt.Errorf("named pipe %s: %w", name, endpoint.ErrUnsupported)
}
