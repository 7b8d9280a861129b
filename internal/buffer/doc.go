// Package buffer provides the lock-free append buffers records are written
// into before a flush.
//
// # Pool
//
// A Pool is a stack of fixed-size Buffers. The newest buffer is the head and
// every buffer links to the one allocated before it:
//
//	pool := buffer.NewPool()
//
//	// Appender side, any number of goroutines:
//	slot, err := pool.Reserve(1 + len(payload))
//	if err != nil {
//	    // record larger than a whole buffer
//	}
//	slot[0] = tag
//	copy(slot[1:], payload)
//
//	// Flush side, while no appender is active:
//	chain := pool.DetachAll()
//	for _, b := range chain.OldestFirst() {
//	    write(b.Bytes())
//	    pool.Release(b)
//	}
//
// # Allocation
//
// Reserve first resolves a buffer with enough room: the head if it has
// space, otherwise a new buffer that is CASed on top of the head. A loser of
// that CAS recycles its buffer and retries. Inside the buffer, space is
// bump-allocated with a CAS on the write offset. A reservation that would
// cross the end of a buffer is never split; it moves on to a new buffer, so
// the tail of a buffer may stay unused.
//
// # Ownership
//
// Between a successful reservation and the end of the caller's shared
// section the reserved range is written by exactly one goroutine. The pool
// itself does not prevent DetachAll from running during that window; the
// tracer's gate does. Detached buffers are recycled through a free list and
// are only reused after Release.
package buffer
