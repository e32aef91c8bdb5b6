package command

import (
	"bytes"
	"io"
	"sync"
)

// maxLineLength caps how much of an unterminated line is held before it
// is written out anyway.
const maxLineLength = 64 << 10

// lockedWriter serializes writes from every command sharing one stream.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// lineWriter holds output until it ends in a newline, then passes every
// complete line to out in a single write.
type lineWriter struct {
	out *lockedWriter

	mu  sync.Mutex
	buf []byte
}

func (l *lineWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf = append(l.buf, p...)
	n := bytes.LastIndexByte(l.buf, '\n') + 1
	if n == 0 {
		if len(l.buf) < maxLineLength {
			return len(p), nil
		}
		n = len(l.buf)
	}

	_, err := l.out.Write(l.buf[:n])
	l.buf = l.buf[:copy(l.buf, l.buf[n:])]
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush writes a trailing partial line.
func (l *lineWriter) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buf) == 0 {
		return nil
	}
	_, err := l.out.Write(l.buf)
	l.buf = l.buf[:0]
	return err
}
