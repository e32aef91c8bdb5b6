package proxy

import (
	"log/slog"
	"net"
	"time"

	"github.com/die-net/pxx/internal/dialer"
)

type Config struct {
	// DialTimeout bounds each target dial. Zero means no timeout.
	DialTimeout time.Duration

	// BindTimeout bounds how long Run keeps retrying a listen endpoint that
	// is not ready yet, such as an interface that has not come up.
	BindTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	// Dialer dials TCP targets, possibly through an upstream proxy. If nil,
	// targets are dialed directly.
	Dialer dialer.Dialer

	// Logger receives per-connection events at Debug level and dial or
	// accept failures at Warn. If nil, slog.Default() is used.
	Logger *slog.Logger
}
