package ssh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"
)

// ContextDialer opens the TCP connection that carries the SSH transport.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type ClientConfig struct {
	Username string
	Password string
	Signers  []ssh.Signer

	HostKeyCallback ssh.HostKeyCallback

	// DialTimeout bounds the TCP connection to the SSH server.
	DialTimeout time.Duration

	// NegotiationTimeout bounds the SSH handshake. Zero means no timeout.
	NegotiationTimeout time.Duration

	Logger *slog.Logger
}

func (c *ClientConfig) authMethods() []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if len(c.Signers) > 0 {
		methods = append(methods, ssh.PublicKeys(c.Signers...))
	}
	if c.Password != "" {
		methods = append(methods, ssh.Password(c.Password))
	}
	return methods
}

// Client shares one SSH transport among many tunneled connections.
type Client struct {
	addr   string
	cfg    ClientConfig
	dialer ContextDialer

	mu        sync.Mutex
	transport *ssh.Client
	sf        singleflight.Group
}

// NewClient validates cfg and returns a Client for the SSH server at addr.
// No connection is made until the first DialContext.
func NewClient(addr string, cfg ClientConfig, d ContextDialer) (*Client, error) {
	if addr == "" {
		return nil, errors.New("ssh: missing ssh address")
	}
	if cfg.Username == "" {
		return nil, errors.New("ssh: missing username")
	}
	if cfg.Password == "" && len(cfg.Signers) == 0 {
		return nil, errors.New("ssh: missing password or key")
	}
	if cfg.HostKeyCallback == nil {
		return nil, errors.New("ssh: missing host key callback")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if d == nil {
		d = &net.Dialer{Timeout: cfg.DialTimeout}
	}
	return &Client{addr: addr, cfg: cfg, dialer: d}, nil
}

// DialContext opens a direct-tcpip channel to address. ctx bounds the dial
// only; once returned, the conn lives until it is closed, like a conn from
// net.Dialer.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("ssh dial %s %s: unsupported network", network, address)
	}

	transport, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := transport.DialContext(ctx, "tcp", address)
	if err != nil {
		// The server refused this destination; the transport is fine.
		var openErr *ssh.OpenChannelError
		if errors.As(err, &openErr) || ctx.Err() != nil {
			return nil, fmt.Errorf("ssh dial %s: %w", address, err)
		}

		c.cfg.Logger.Info("ssh transport failed, reconnecting", "server", c.addr, "error", err)
		c.invalidate(transport)
		transport, err2 := c.connect(ctx)
		if err2 != nil {
			return nil, fmt.Errorf("ssh dial %s: %w", address, err2)
		}
		if conn, err = transport.DialContext(ctx, "tcp", address); err != nil {
			return nil, fmt.Errorf("ssh dial %s: %w", address, err)
		}
	}

	return conn, nil
}

// Close closes the shared transport, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	t := c.transport
	c.transport = nil
	c.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Close()
}

// connect returns the shared transport, establishing it if needed. Only one
// attempt runs at a time; it is not tied to any one caller's ctx, so a
// caller that gives up does not fail the others.
func (c *Client) connect(ctx context.Context) (*ssh.Client, error) {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t != nil {
		return t, nil
	}

	ch := c.sf.DoChan("connect", func() (any, error) {
		c.mu.Lock()
		if c.transport != nil {
			t := c.transport
			c.mu.Unlock()
			return t, nil
		}
		c.mu.Unlock()

		t, err := c.handshake(context.Background())
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.transport = t
		c.mu.Unlock()

		go c.watch(t)
		return t, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ssh.Client), nil
	}
}

func (c *Client) handshake(ctx context.Context) (*ssh.Client, error) {
	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("ssh connect %s: %w", c.addr, err)
	}

	if c.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.cfg.NegotiationTimeout))
	}
	cc, chans, reqs, err := ssh.NewClientConn(conn, c.addr, &ssh.ClientConfig{
		User:            c.cfg.Username,
		Auth:            c.cfg.authMethods(),
		HostKeyCallback: c.cfg.HostKeyCallback,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", c.addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	c.cfg.Logger.Debug("ssh transport established", "server", c.addr, "server_version", string(cc.ServerVersion()))
	return ssh.NewClient(cc, chans, reqs), nil
}

// watch drops t from the cache as soon as the server hangs up, so the next
// dial reconnects without first failing on a dead transport.
func (c *Client) watch(t *ssh.Client) {
	err := t.Wait()
	c.mu.Lock()
	current := c.transport == t
	c.mu.Unlock()
	if current {
		c.cfg.Logger.Info("ssh transport closed", "server", c.addr, "error", err)
		c.invalidate(t)
	}
}

func (c *Client) invalidate(t *ssh.Client) {
	c.mu.Lock()
	if c.transport == t {
		c.transport = nil
	}
	c.mu.Unlock()
	_ = t.Close()
}
