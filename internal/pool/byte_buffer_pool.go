package pool

import (
	"sync"
)

const (
	// TierBufferInitialSize is the capacity a fresh tier buffer starts with.
	TierBufferInitialSize = 1024 * 16 // 16KiB
	// ScratchBufferDefaultSize is the capacity of buffers handed out by the scratch pool.
	ScratchBufferDefaultSize = 1024 * 64 // 64KiB
	// ScratchBufferMaxThreshold bounds the capacity of buffers kept by the scratch pool.
	ScratchBufferMaxThreshold = 1024 * 1024 * 4 // 4MiB
)

// ByteBuffer is a growable byte slice with an amortized growth strategy.
type ByteBuffer struct {
	// B is the underlying byte slice.
	B []byte
}

// NewByteBuffer creates an empty ByteBuffer with the given capacity.
func NewByteBuffer(capacity int) *ByteBuffer {
	return &ByteBuffer{B: make([]byte, 0, capacity)}
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte {
	return bb.B
}

// Len returns the number of bytes written.
func (bb *ByteBuffer) Len() int {
	return len(bb.B)
}

// Cap returns the capacity of the buffer.
func (bb *ByteBuffer) Cap() int {
	return cap(bb.B)
}

// Reset empties the buffer but keeps the allocated memory.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// Truncate shrinks the buffer to n bytes. It panics if n is out of range.
func (bb *ByteBuffer) Truncate(n int) {
	if n < 0 || n > len(bb.B) {
		panic("Truncate: invalid length")
	}
	bb.B = bb.B[:n]
}

// Slice returns bb.B[start:end]. It panics if the range is outside the written bytes.
func (bb *ByteBuffer) Slice(start, end int) []byte {
	if start < 0 || end < start || end > len(bb.B) {
		panic("Slice: invalid indices")
	}

	return bb.B[start:end]
}

// Grow ensures that at least n more bytes fit without reallocating.
//
// Small buffers grow by TierBufferInitialSize; once the capacity exceeds four
// times that, growth is 25% of the current capacity.
func (bb *ByteBuffer) Grow(n int) {
	if cap(bb.B)-len(bb.B) >= n {
		return
	}

	growBy := TierBufferInitialSize
	if cap(bb.B) > 4*TierBufferInitialSize {
		growBy = cap(bb.B) / 4
	}
	if growBy < n {
		growBy = n
	}

	newBuf := make([]byte, len(bb.B), len(bb.B)+growBy)
	copy(newBuf, bb.B)
	bb.B = newBuf
}

// Append writes data at the end of the buffer and returns the offset it starts at.
func (bb *ByteBuffer) Append(data []byte) int {
	offset := len(bb.B)
	bb.Grow(len(data))
	bb.B = append(bb.B, data...)

	return offset
}

// Write implements io.Writer.
func (bb *ByteBuffer) Write(data []byte) (int, error) {
	bb.Append(data)
	return len(data), nil
}

// ByteBufferPool is a sync.Pool of ByteBuffers that drops buffers grown past
// maxThreshold instead of retaining them.
type ByteBufferPool struct {
	pool         sync.Pool
	maxThreshold int
}

// NewByteBufferPool creates a pool of buffers with the given default capacity.
func NewByteBufferPool(defaultSize int, maxThreshold int) *ByteBufferPool {
	return &ByteBufferPool{
		pool: sync.Pool{
			New: func() any {
				return NewByteBuffer(defaultSize)
			},
		},
		maxThreshold: maxThreshold,
	}
}

// Get retrieves an empty ByteBuffer from the pool.
func (p *ByteBufferPool) Get() *ByteBuffer {
	bb, _ := p.pool.Get().(*ByteBuffer)
	return bb
}

// Put returns bb to the pool.
func (p *ByteBufferPool) Put(bb *ByteBuffer) {
	if bb == nil {
		return
	}
	if p.maxThreshold > 0 && cap(bb.B) > p.maxThreshold {
		return
	}

	bb.Reset()
	p.pool.Put(bb)
}

var scratchPool = NewByteBufferPool(ScratchBufferDefaultSize, ScratchBufferMaxThreshold)

// GetScratch returns a slice of exactly size bytes backed by a pooled buffer,
// and the cleanup function that hands the buffer back.
//
// Example:
//
//	buf, cleanup := pool.GetScratch(n)
//	defer cleanup()
func GetScratch(size int) ([]byte, func()) {
	bb := scratchPool.Get()
	bb.Grow(size)
	bb.B = bb.B[:size]

	return bb.B, func() { scratchPool.Put(bb) }
}
