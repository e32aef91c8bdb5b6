package command

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Broadcaster copies everything read from one source to the stdin of every
// attached command. A command that exits or stops reading is detached; the
// others keep receiving. When the source ends, every command sees EOF.
//
// A slow reader holds up delivery to the rest, since no more than one
// chunk is buffered.
type Broadcaster struct {
	src    io.Reader
	logger *slog.Logger

	start sync.Once

	mu     sync.Mutex
	sinks  map[*os.File]struct{}
	closed bool
}

func NewBroadcaster(src io.Reader, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{src: src, logger: logger, sinks: make(map[*os.File]struct{})}
}

// attach returns the read end of a pipe fed by b and a func that detaches
// it. Copying from the source starts with the first attach.
func (b *Broadcaster) attach() (*os.File, func(), error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}

	b.mu.Lock()
	if b.closed {
		_ = w.Close()
	} else {
		b.sinks[w] = struct{}{}
	}
	b.mu.Unlock()

	b.start.Do(func() { go b.run() })
	return r, func() { b.detach(w) }, nil
}

func (b *Broadcaster) detach(w *os.File) {
	b.mu.Lock()
	_, ok := b.sinks[w]
	delete(b.sinks, w)
	b.mu.Unlock()
	if ok {
		_ = w.Close()
	}
}

// Close detaches every command. A Read already blocked on the source is not
// interrupted.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	sinks := b.sinks
	b.sinks = make(map[*os.File]struct{})
	b.closed = true
	b.mu.Unlock()

	for w := range sinks {
		_ = w.Close()
	}
}

func (b *Broadcaster) snapshot() []*os.File {
	b.mu.Lock()
	defer b.mu.Unlock()
	sinks := make([]*os.File, 0, len(b.sinks))
	for w := range b.sinks {
		sinks = append(sinks, w)
	}
	return sinks
}

func (b *Broadcaster) run() {
	buf := make([]byte, 8<<10)
	for {
		n, err := b.src.Read(buf)
		if n > 0 {
			for _, w := range b.snapshot() {
				if _, werr := w.Write(buf[:n]); werr != nil {
					b.detach(w)
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				b.logger.Warn("stdin broadcast stopped", "error", err)
			}
			b.Close()
			return
		}
	}
}
