// Package buffer implements the lock-free record buffers of the tracer.
package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/jittakal/gctrace/internal/errors"
)

// Capacity is the number of record bytes one buffer holds. A buffer plus its
// bookkeeping fits in 64 KiB.
const Capacity = 65536 - 2*8

// Buffer is a fixed-size append area. Appenders reserve disjoint byte ranges
// with a CAS on index; the buffer is read only after it has been detached
// from its Pool.
type Buffer struct {
	next  *Buffer // older buffer; written before the buffer is published
	index atomic.Uint32
	data  [Capacity]byte
}

// Reserve bump-allocates need bytes and returns the offset of the reserved
// range. It returns false, without reserving anything, if the range would
// end past Capacity.
func (b *Buffer) Reserve(need int) (int, bool) {
	for {
		old := b.index.Load()
		next := old + uint32(need)
		if next > Capacity {
			return 0, false
		}
		if b.index.CompareAndSwap(old, next) {
			return int(old), true
		}
	}
}

// Slot returns the byte range [off, off+n) for the holder of a reservation.
func (b *Buffer) Slot(off, n int) []byte {
	return b.data[off : off+n : off+n]
}

// Len returns the number of reserved bytes.
func (b *Buffer) Len() int {
	return int(b.index.Load())
}

// Free returns the number of bytes still available.
func (b *Buffer) Free() int {
	return Capacity - b.Len()
}

// Bytes returns the reserved bytes. Only valid once no appender can still
// be writing, that is after DetachAll under the exclusive gate.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.Len()]
}

// Next returns the buffer allocated before b.
func (b *Buffer) Next() *Buffer {
	return b.next
}

func (b *Buffer) reset() {
	b.next = nil
	b.index.Store(0)
}

// Stats contains pool counters.
type Stats struct {
	// Allocated counts buffers published as the pool head.
	Allocated uint64
	// Discarded counts buffers that lost the race to become the head.
	Discarded uint64
	// Released counts buffers returned after a flush.
	Released uint64
}

// Pool is a lock-free stack of buffers with the newest buffer on top.
// Concurrent Reserve calls are safe; DetachAll and Release must not overlap
// with Reserve, which the tracer guarantees with its gate.
type Pool struct {
	head atomic.Pointer[Buffer]
	free sync.Pool

	allocated atomic.Uint64
	discarded atomic.Uint64
	released  atomic.Uint64
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	p := &Pool{}
	p.free.New = func() any { return new(Buffer) }
	return p
}

// BufferFor returns a buffer that had at least need free bytes when it was
// looked at. The head buffer is reused when it has room; otherwise a new
// buffer is pushed on top of it.
func (p *Pool) BufferFor(need int) *Buffer {
	for {
		head := p.head.Load()
		if head != nil && head.Free() >= need {
			return head
		}

		fresh := p.free.Get().(*Buffer)
		fresh.reset()
		fresh.next = head

		if p.head.CompareAndSwap(head, fresh) {
			p.allocated.Add(1)
			return fresh
		}

		// Another appender replaced the head first.
		fresh.next = nil
		p.free.Put(fresh)
		p.discarded.Add(1)
	}
}

// Reserve reserves need contiguous bytes in some buffer and returns them.
// The caller owns the returned slice until it leaves its shared section.
func (p *Pool) Reserve(need int) ([]byte, error) {
	if need <= 0 || need > Capacity {
		return nil, errors.ErrRecordTooLarge
	}
	for {
		b := p.BufferFor(need)
		if off, ok := b.Reserve(need); ok {
			return b.Slot(off, need), nil
		}
	}
}

// DetachAll removes every buffer from the pool and returns them as a chain,
// newest first.
func (p *Pool) DetachAll() Chain {
	return Chain{head: p.head.Swap(nil)}
}

// Release returns a flushed buffer to the free list. The buffer must have
// been detached and must not be used afterwards.
func (p *Pool) Release(b *Buffer) {
	b.reset()
	p.free.Put(b)
	p.released.Add(1)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Allocated: p.allocated.Load(),
		Discarded: p.discarded.Load(),
		Released:  p.released.Load(),
	}
}

// Chain is a detached list of buffers, newest first.
type Chain struct {
	head *Buffer
}

// Empty reports whether the chain has no buffers.
func (c Chain) Empty() bool {
	return c.head == nil
}

// Len returns the number of buffers in the chain.
func (c Chain) Len() int {
	n := 0
	for b := c.head; b != nil; b = b.next {
		n++
	}
	return n
}

// OldestFirst returns the buffers in allocation order.
func (c Chain) OldestFirst() []*Buffer {
	bufs := make([]*Buffer, c.Len())
	i := len(bufs) - 1
	for b := c.head; b != nil; b = b.next {
		bufs[i] = b
		i--
	}
	return bufs
}

// Size returns the total number of reserved bytes in the chain.
func (c Chain) Size() int64 {
	var n int64
	for b := c.head; b != nil; b = b.next {
		n += int64(b.Len())
	}
	return n
}
