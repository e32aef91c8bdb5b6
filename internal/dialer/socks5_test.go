package dialer

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/pxx/internal/socks5"
	"github.com/die-net/pxx/internal/testutil"
)

func TestSOCKS5ProxyDialerDialSuccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		user string
		pass string
	}{
		{name: "no_auth"},
		{name: "user_pass", user: "user", pass: "pass"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			echoLn := testutil.StartEchoTCPServer(t, ctx)

			upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
				_ = testutil.HandleSOCKS5Connect(ctx, c, tt.user, tt.pass)
			})

			f := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), tt.user, tt.pass)

			conn, err := f.DialContext(ctx, "tcp", echoLn.Addr().String())
			if err != nil {
				t.Fatal(err)
			}
			testutil.AssertEcho(t, conn, conn, []byte("hello"))
			_ = conn.Close()

			waitUp()
		})
	}
}

func TestSOCKS5ProxyDialerHandshakeTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// The upstream accepts but never answers the negotiation.
	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_, _ = io.Copy(io.Discard, c)
	})

	f := NewSOCKS5ProxyDialer(Config{DialTimeout: time.Second, NegotiationTimeout: 100 * time.Millisecond}, upLn.Addr().String(), "", "")

	start := time.Now()
	_, err := f.DialContext(ctx, "tcp", "127.0.0.1:1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("handshake was not bounded by the negotiation timeout")
	}

	waitUp()
}

func TestSOCKS5ProxyDialerCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewSOCKS5ProxyDialer(Config{DialTimeout: time.Second}, "127.0.0.1:1", "", "")
	if _, err := f.DialContext(ctx, "tcp", "127.0.0.1:1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSOCKS5ProxyDialerDialFail(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		if _, err := txsocks5.NewNegotiationRequestFrom(c); err != nil {
			return
		}
		if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(c); err != nil {
			return
		}
		req, err := txsocks5.NewRequestFrom(c)
		if err != nil {
			return
		}
		if req.Cmd != txsocks5.CmdConnect {
			return
		}
		_, _ = txsocks5.NewReply(txsocks5.RepConnectionRefused, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}).WriteTo(c)
	})

	f := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), "", "")

	_, err := f.DialContext(ctx, "tcp", "127.0.0.1:1")
	var re *socks5.ReplyError
	if !errors.As(err, &re) {
		t.Fatalf("err=%v want *socks5.ReplyError", err)
	}

	waitUp()
}
