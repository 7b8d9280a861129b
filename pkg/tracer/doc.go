// Package tracer records garbage collector events into a binary log file.
//
// Any number of goroutines may emit records concurrently. Emitting never
// blocks on I/O: a record is copied into a lock-free in-memory buffer and
// written out by a later flush.
//
//	t, err := tracer.New(tracer.Config{Path: "/tmp/gc.trace", SizeLimit: 64 << 20})
//	if err != nil {
//	    return err
//	}
//	defer t.Close()
//
//	begin := catalog.Default().MustByName("collection_begin")
//	t.EmitEvent(begin, false, uint64(index), uint64(generation))
//
// # Flushing
//
// Flush(false) is opportunistic: it only runs if no emitter is inside its
// critical section and no other flush is running, and reports false
// otherwise. Run calls it periodically, and events whose descriptor is
// marked Flush trigger it right after they are emitted.
//
// Flush(true) is meant for a stop-the-world pause, when the caller knows no
// emitter is active. It takes the gate unconditionally and keeps it held
// after returning, so that nothing can be emitted until the pause ends;
// the caller must then call ReleaseForcedFlush.
//
// # Log format
//
// The file starts with a header record (kind 0) holding a check constant,
// the format version, the pointer width and the byte order of the writer.
// The rest of the file is a sequence of {tag, payload} records in native
// byte order. Records are written in the order their space was reserved
// within a buffer, and buffers are written in allocation order.
//
// # Failure
//
// If the file cannot be opened, New returns an error. A write error
// disables the tracer for good and makes emits no-ops. Failing to open
// the next file during rotation is fatal and is passed to the fatal
// handler, which logs and exits by default.
package tracer
