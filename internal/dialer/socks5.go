package dialer

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/die-net/pxx/internal/socks5"
)

// SOCKS5ProxyDialer tunnels each connection through a SOCKS5 proxy with a
// CONNECT request. The target host name is sent to the proxy unresolved.
type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyAddr string
	auth      socks5.Auth
	direct    Dialer
}

func NewSOCKS5ProxyDialer(cfg Config, proxyAddr, username, password string) *SOCKS5ProxyDialer {
	return &SOCKS5ProxyDialer{
		cfg:       cfg,
		proxyAddr: proxyAddr,
		auth:      socks5.Auth{Username: username, Password: password},
		direct:    NewDirectDialer(cfg),
	}
}

func (f *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("socks5 upstream dial %s %s: unsupported network", network, address)
	}

	conn, err := f.direct.DialContext(ctx, "tcp", f.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks5 upstream: %w", err)
	}

	hctx := ctx
	if f.cfg.NegotiationTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, f.cfg.NegotiationTimeout)
		defer cancel()
	}
	if err := socks5.ClientDial(hctx, conn, f.auth, address); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("socks5 upstream %s dial %s: %w", f.proxyAddr, address, err)
	}
	return conn, nil
}
