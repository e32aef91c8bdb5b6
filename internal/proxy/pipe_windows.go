//go:build windows

package proxy

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

func listenPipe(name string) (net.Listener, error) {
	return winio.ListenPipe(name, nil)
}

// dialPipe waits for a free pipe instance while the server is busy, until
// ctx expires.
func dialPipe(ctx context.Context, name string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, name)
}
