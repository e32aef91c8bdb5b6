package testutil

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
)

// StartSingleAcceptServer accepts one TCP connection and passes it to
// handler. The returned func closes the listener and waits for handler.
func StartSingleAcceptServer(t *testing.T, ctx context.Context, handler func(net.Conn)) (net.Listener, func()) {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		handler(c)
	})

	wait := func() {
		_ = ln.Close()
		wg.Wait()
	}

	return ln, wait
}

// StartReplyServer reads each accepted connection to EOF, writes
// reply(received) and closes. It only answers once the client has
// half-closed, so it observes end-of-stream propagation.
func StartReplyServer(t *testing.T, ctx context.Context, network, address string, reply func([]byte) []byte) net.Listener {
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
				data, err := io.ReadAll(c)
				if err != nil {
					return
				}
				_, _ = c.Write(reply(data))
			}()
		}
	}()

	return ln
}
