package ajp

import "sync"

// ============================================================================
// Buffer Pool for Packet Handling
// ============================================================================
//
// Socket reads and processor input buffers come from size-classed pools so
// that keep-alive connections and recycled processors do not allocate a new
// buffer per request.
//
// Size classes follow the packet size range:
// - 8KB: one packet at the default packet size (socket reads)
// - 16KB: processor input at the default packet size (a packet plus a read)
// - 128KB: processor input at the maximum packet size
//
// Thread Safety: all operations are safe for concurrent use via sync.Pool.

const (
	smallBufferSize  = 8 << 10   // 8KB
	mediumBufferSize = 16 << 10  // 16KB
	largeBufferSize  = 128 << 10 // 128KB
)

type bufferPool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool
}

func newSizedPool(size int) sync.Pool {
	return sync.Pool{
		New: func() any {
			buf := make([]byte, size)
			return &buf
		},
	}
}

var globalBufferPool = &bufferPool{
	small:  newSizedPool(smallBufferSize),
	medium: newSizedPool(mediumBufferSize),
	large:  newSizedPool(largeBufferSize),
}

// Get returns a byte slice of length size, backed by a pooled buffer when
// size fits a size class. Larger requests are allocated directly and are
// not pooled.
func (p *bufferPool) Get(size int) []byte {
	var bufPtr *[]byte

	switch {
	case size <= smallBufferSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= mediumBufferSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= largeBufferSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}

	buf := *bufPtr
	return buf[:size]
}

// Put returns a buffer obtained from Get. Buffers whose capacity does not
// match a size class (oversized, or regrown by append) are left to the GC.
func (p *bufferPool) Put(buf []byte) {
	if buf == nil {
		return
	}

	full := buf[:cap(buf)]
	switch cap(buf) {
	case smallBufferSize:
		p.small.Put(&full)
	case mediumBufferSize:
		p.medium.Put(&full)
	case largeBufferSize:
		p.large.Put(&full)
	}
}

// GetBuffer acquires a buffer of length size from the global pool.
//
// Usage:
//
//	buf := GetBuffer(size)
//	defer PutBuffer(buf)
func GetBuffer(size int) []byte {
	return globalBufferPool.Get(size)
}

// PutBuffer returns a buffer to the global pool.
func PutBuffer(buf []byte) {
	globalBufferPool.Put(buf)
}
