package dialer

import (
	"log/slog"
	"net"
	"time"
)

type Config struct {
	// DialTimeout bounds the TCP connection to the target or upstream.
	DialTimeout time.Duration

	// NegotiationTimeout bounds the SOCKS5 or SSH handshake with an
	// upstream.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	// SSHKeyPath is a private key file, "agent", or empty for password
	// authentication only.
	SSHKeyPath string

	// SSHKnownHostsPath is the known_hosts file used to verify SSH
	// upstreams. Empty disables host key checking.
	SSHKnownHostsPath string

	Logger *slog.Logger
}
