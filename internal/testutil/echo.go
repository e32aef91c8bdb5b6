package testutil

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
)

// StartEchoServer listens on network/address and echoes every accepted
// connection until the client half-closes, then half-closes back. The
// listener is closed when the test completes.
func StartEchoServer(t *testing.T, ctx context.Context, network, address string) net.Listener {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, network, address)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				_, _ = io.Copy(c, c)
				if cw, ok := c.(interface{ CloseWrite() error }); ok {
					_ = cw.CloseWrite()
				}
			}()
		}
	}()

	return ln
}

// StartEchoTCPServer is StartEchoServer on an ephemeral loopback port.
func StartEchoTCPServer(t *testing.T, ctx context.Context) net.Listener {
	t.Helper()
	return StartEchoServer(t, ctx, "tcp", "127.0.0.1:0")
}

func AssertEcho(t *testing.T, w io.Writer, r io.Reader, msg []byte) {
	t.Helper()

	if _, err := w.Write(msg); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, msg) {
		t.Fatalf("expected %q got %q", string(msg), string(buf))
	}
}

// SocketDir returns a short temporary directory for Unix sockets, whose
// paths are limited to about 100 bytes. t.TempDir() paths can exceed that.
func SocketDir(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "pxx-")
	if err != nil {
		t.Fatal(err)
	}
	if len(filepath.Join(dir, "x.sock")) > 100 {
		_ = os.RemoveAll(dir)
		if dir, err = os.MkdirTemp("/tmp", "pxx-"); err != nil {
			t.Fatal(err)
		}
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}
