package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"

	"github.com/die-net/pxx/internal/dialer"
	"github.com/die-net/pxx/internal/endpoint"
)

// Forwarder serves one mapping: it accepts on the listen endpoint and
// relays every connection to the target endpoint.
type Forwarder struct {
	mapping endpoint.Mapping
	cfg     Config
	dialer  dialer.Dialer
	bufs    *BufferPool
	listen  func(context.Context, *endpoint.Endpoint, net.KeepAliveConfig) (net.Listener, error)

	mu sync.Mutex
	ln net.Listener

	conns      sync.WaitGroup
	accepted   atomic.Int64
	dialFailed atomic.Int64
	live       atomic.Int64
}

// Stats is a snapshot of a Forwarder's connection counters.
type Stats struct {
	Accepted   int64
	DialFailed int64
	Live       int64
}

func NewForwarder(m endpoint.Mapping, cfg Config) *Forwarder {
	d := cfg.Dialer
	if d == nil {
		d = dialer.NewDirectDialer(dialer.Config{DialTimeout: cfg.DialTimeout, KeepAlive: cfg.KeepAlive})
	}
	return &Forwarder{
		mapping: m,
		cfg:     cfg,
		dialer:  d,
		bufs:    NewBufferPool(DefaultBufferSize),
		listen:  Listen,
	}
}

func (f *Forwarder) logger() *slog.Logger {
	if f.cfg.Logger != nil {
		return f.cfg.Logger
	}
	return slog.Default()
}

func (f *Forwarder) Mapping() endpoint.Mapping { return f.mapping }

// Addr returns the bound listen address, or nil before a successful Bind.
func (f *Forwarder) Addr() net.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ln == nil {
		return nil
	}
	return f.ln.Addr()
}

func (f *Forwarder) Stats() Stats {
	return Stats{
		Accepted:   f.accepted.Load(),
		DialFailed: f.dialFailed.Load(),
		Live:       f.live.Load(),
	}
}

// Bind makes a single attempt to bind the listen endpoint. It is a no-op if
// the endpoint is already bound. Errors are *BindError; see IsRetryable.
func (f *Forwarder) Bind(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ln != nil {
		return nil
	}
	ln, err := f.listen(ctx, f.mapping.Listen, f.cfg.KeepAlive)
	if err != nil {
		return &BindError{Endpoint: f.mapping.Listen.String(), Err: err}
	}
	f.ln = ln
	return nil
}

// Close releases a listener bound by Bind when Run will not be called.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ln == nil {
		return nil
	}
	return f.ln.Close()
}

// Run binds the listen endpoint if needed, retrying retryable failures with
// backoff for up to BindTimeout, then accepts connections until ctx is done.
// Cancellation closes the listener and every live connection; Run returns
// nil once all of them have finished. Any other return is a *BindError or an
// unrecoverable accept error, after live connections have been closed.
func (f *Forwarder) Run(ctx context.Context) error {
	if err := f.bindWithRetry(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return f.serve(ctx)
}

func (f *Forwarder) bindWithRetry(ctx context.Context) error {
	err := f.Bind(ctx)
	if err == nil || !IsRetryable(err) {
		return err
	}

	deadline := time.Now().Add(f.cfg.BindTimeout)
	b := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: true}
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return err
		}
		wait := min(b.Duration(), remaining)

		logger := f.logger().With("listen", f.mapping.Listen.String())
		if sel := f.mapping.Listen.Selector(); sel != "" {
			logger = logger.With("interface", sel)
		}
		logger.Info("listen endpoint not ready, retrying", "retry_in", wait, "error", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		err = f.Bind(ctx)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
}

func (f *Forwarder) serve(ctx context.Context) error {
	f.mu.Lock()
	ln := f.ln
	f.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer f.conns.Wait()
	defer cancel()

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()
	defer ln.Close()

	logger := f.logger().With("listen", f.mapping.Listen.String(), "addr", ln.Addr().String())
	logger.Info("forwarding", "target", f.mapping.Target.String())
	if f.mapping.Listen.IsWildcard() {
		logger.Info("listening on all interfaces")
	}

	b := &backoff.Backoff{Min: 5 * time.Millisecond, Max: time.Second}
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept %s: %w", f.mapping.Listen, err)
			}

			wait := b.Duration()
			f.logger().Warn("accept failed", "listen", f.mapping.Listen.String(), "retry_in", wait, "error", err)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
			continue
		}
		b.Reset()

		f.accepted.Add(1)
		f.live.Add(1)
		f.conns.Go(func() {
			defer f.live.Add(-1)
			f.handle(ctx, c)
		})
	}
}

func (f *Forwarder) handle(ctx context.Context, in net.Conn) {
	logger := f.logger().With("listen", f.mapping.Listen.String(), "target", f.mapping.Target.String())

	dialCtx, cancel := ctx, context.CancelFunc(func() {})
	if f.cfg.DialTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, f.cfg.DialTimeout)
	}
	out, err := f.dialTarget(dialCtx)
	cancel()
	if err != nil {
		_ = in.Close()
		f.dialFailed.Add(1)
		if ctx.Err() == nil {
			logger.Warn("dial failed", "error", err)
		}
		return
	}

	logger.Debug("connection opened", "remote_addr", addrString(in.RemoteAddr()))
	if err := CopyBidirectional(ctx, in, out, f.bufs); err != nil {
		logger.Debug("connection error", "error", err)
	}
	logger.Debug("connection closed", "remote_addr", addrString(in.RemoteAddr()))
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
