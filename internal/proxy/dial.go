package proxy

import (
	"context"
	"fmt"
	"net"

	"github.com/die-net/pxx/internal/endpoint"
)

// dialTarget opens the outbound side of a connection. TCP targets go
// through the configured dialer so they can use an upstream proxy and
// resolve DNS on every dial. Everything else is local to this host.
func (f *Forwarder) dialTarget(ctx context.Context) (net.Conn, error) {
	target := f.mapping.Target
	addr, err := target.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}

	switch target.Kind() {
	case endpoint.KindTCP:
		return f.dialer.DialContext(ctx, "tcp", addr)
	case endpoint.KindPipe:
		c, err := dialPipe(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("dial pipe %s: %w", addr, err)
		}
		return c, nil
	default:
		d := net.Dialer{KeepAliveConfig: f.cfg.KeepAlive}
		if !f.cfg.KeepAlive.Enable {
			d.KeepAlive = -1
		}
		c, err := d.DialContext(ctx, target.Network(), addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s %s: %w", target.Network(), addr, err)
		}
		return c, nil
	}
}
