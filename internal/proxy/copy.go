package proxy

import (
	"context"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CopyBidirectional relays bytes between left and right until both
// directions have finished. A direction that reads EOF half-closes the
// write side of the opposite conn, or closes it outright if the transport
// has no half-close. A direction that fails, or cancellation of ctx, closes
// both conns. Both conns are closed on return.
//
// Each direction holds at most one buffer from bufs, so a slow reader
// throttles its writer through the transport's own flow control.
func CopyBidirectional(ctx context.Context, left, right net.Conn, bufs *BufferPool) error {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		return copyHalf(right, left, bufs, closeBoth)
	})
	g.Go(func() error {
		return copyHalf(left, right, bufs, closeBoth)
	})

	err := g.Wait()
	if isExpectedCloseError(err) || ctx.Err() != nil {
		return nil
	}
	return err
}

func copyHalf(dst, src net.Conn, bufs *BufferPool, abort func()) error {
	buf := bufs.Get()
	defer bufs.Put(buf)

	if _, err := io.CopyBuffer(dst, src, buf); err != nil {
		abort()
		return err
	}
	if err := closeWrite(dst); err != nil {
		abort()
	}
	return nil
}

type closeWriter interface {
	CloseWrite() error
}

func closeWrite(c net.Conn) error {
	if cw, ok := c.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return c.Close()
}
