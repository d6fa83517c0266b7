package tdms

import "sync"

// pendingBufferDefaultSize and pendingBufferMaxThreshold size the pool that
// backs each channel's pending (not-yet-committed-to-a-segment) raw data
// buffer. A channel accumulating appended values between WriteSegment calls
// rarely needs more than a few tens of KB before it's flushed, but wide
// batch appends can spike much higher, hence the generous discard
// threshold.
const (
	pendingBufferDefaultSize  = 16 * 1024
	pendingBufferMaxThreshold = 4 * 1024 * 1024
)

// pendingBuffer is a growable, append-only byte buffer used to accumulate
// a channel's raw data between segment commits. It is always obtained from
// and returned to pendingBufferPool rather than allocated directly.
type pendingBuffer struct {
	b []byte
}

func newPendingBuffer(defaultSize int) *pendingBuffer {
	return &pendingBuffer{b: make([]byte, 0, defaultSize)}
}

func (pb *pendingBuffer) Bytes() []byte { return pb.b }
func (pb *pendingBuffer) Len() int      { return len(pb.b) }
func (pb *pendingBuffer) Reset()        { pb.b = pb.b[:0] }

// Append grows the buffer as needed and appends data.
func (pb *pendingBuffer) Append(data []byte) {
	pb.grow(len(data))
	pb.b = append(pb.b, data...)
}

// grow ensures the buffer can hold requiredBytes more bytes without a
// further reallocation. Small buffers grow by a fixed increment to limit
// the number of reallocations during the ramp-up phase; larger buffers
// grow by a quarter of their current capacity so the ratio of copies to
// bytes held falls off as the buffer gets bigger.
func (pb *pendingBuffer) grow(requiredBytes int) {
	available := cap(pb.b) - len(pb.b)
	if available >= requiredBytes {
		return
	}

	growBy := pendingBufferDefaultSize
	if cap(pb.b) > 4*pendingBufferDefaultSize {
		growBy = cap(pb.b) / 4
	}
	if growBy < requiredBytes {
		growBy = requiredBytes
	}

	newBuf := make([]byte, len(pb.b), len(pb.b)+growBy)
	copy(newBuf, pb.b)
	pb.b = newBuf
}

type pendingBufferPool struct {
	pool         sync.Pool
	maxThreshold int
}

func newPendingBufferPool(defaultSize, maxThreshold int) *pendingBufferPool {
	return &pendingBufferPool{
		pool: sync.Pool{
			New: func() any { return newPendingBuffer(defaultSize) },
		},
		maxThreshold: maxThreshold,
	}
}

func (p *pendingBufferPool) Get() *pendingBuffer {
	pb, _ := p.pool.Get().(*pendingBuffer)
	return pb
}

func (p *pendingBufferPool) Put(pb *pendingBuffer) {
	if pb == nil {
		return
	}
	if p.maxThreshold > 0 && cap(pb.b) > p.maxThreshold {
		return
	}
	pb.Reset()
	p.pool.Put(pb)
}

var defaultPendingBufferPool = newPendingBufferPool(pendingBufferDefaultSize, pendingBufferMaxThreshold)
