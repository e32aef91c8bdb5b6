package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/die-net/pxx/internal/endpoint"
)

// Listen binds ep. Interface endpoints are resolved first, so a missing
// interface yields endpoint.ErrInterfaceNotFound. keepAlive is applied to
// every accepted TCP connection; a disabled config turns keepalive off.
func Listen(ctx context.Context, ep *endpoint.Endpoint, keepAlive net.KeepAliveConfig) (net.Listener, error) {
	addr, err := ep.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ep, err)
	}

	var ln net.Listener
	switch ep.Kind() {
	case endpoint.KindUnix:
		ln, err = listenUnix(ctx, addr)
	case endpoint.KindPipe:
		ln, err = listenPipe(addr)
	default:
		lc := net.ListenConfig{KeepAliveConfig: keepAlive}
		if !keepAlive.Enable {
			lc.KeepAlive = -1
		}
		ln, err = lc.Listen(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", ep.Network(), addr, err)
	}
	return ln, nil
}

// listenUnix removes a socket file left behind by a previous run, unless
// something is still accepting on it. The returned listener unlinks the
// file on Close.
func listenUnix(ctx context.Context, path string) (net.Listener, error) {
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		var d net.Dialer
		c, err := d.DialContext(ctx, "unix", path)
		if err == nil {
			_ = c.Close()
			return nil, errors.New("socket is in use")
		}
		_ = os.Remove(path)
	}

	var lc net.ListenConfig
	return lc.Listen(ctx, "unix", path)
}
