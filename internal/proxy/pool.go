package proxy

import "sync"

// DefaultBufferSize is the relay chunk size.
const DefaultBufferSize = 32 * 1024

// BufferPool hands out fixed-size relay buffers. A nil *BufferPool
// allocates a fresh DefaultBufferSize buffer on every Get.
type BufferPool struct {
	size int
	pool sync.Pool
}

func NewBufferPool(size int) *BufferPool {
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

func (p *BufferPool) Get() []byte {
	if p == nil {
		return make([]byte, DefaultBufferSize)
	}
	return *p.pool.Get().(*[]byte)
}

func (p *BufferPool) Put(b []byte) {
	if p == nil || cap(b) != p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}
