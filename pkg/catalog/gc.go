package catalog

import "github.com/jittakal/gctrace/pkg/event"

// Kinds of the default garbage collector catalog.
const (
	KindCollectionRequested event.Kind = 1 + iota
	KindCollectionBegin
	KindCollectionEnd
	KindConcurrentStart
	KindConcurrentUpdate
	KindConcurrentFinish
	KindSweepBegin
	KindSweepEnd
	KindWorldStopping
	KindWorldStopped
	KindWorldRestarting
	KindWorldRestarted
	KindAlloc
	KindCopy
	KindPin
	KindMark
	KindThreadSuspend
	KindThreadRestart
	KindEmpty
)

// GC returns the descriptors of the garbage collector events.
func GC() []Descriptor {
	return []Descriptor{
		{Kind: KindCollectionRequested, Name: "collection_requested", Fields: []Field{
			{Name: "generation", Type: Int32},
			{Name: "requested_size", Type: Size},
			{Name: "force", Type: Bool},
		}},
		{Kind: KindCollectionBegin, Name: "collection_begin", Fields: []Field{
			{Name: "index", Type: Int32},
			{Name: "generation", Type: Int32},
		}},
		{Kind: KindCollectionEnd, Name: "collection_end", Flush: true, Fields: []Field{
			{Name: "index", Type: Int32},
			{Name: "generation", Type: Int32},
			{Name: "major_scan", Type: Int64},
			{Name: "los_scan", Type: Int64},
		}},
		{Kind: KindConcurrentStart, Name: "concurrent_start"},
		{Kind: KindConcurrentUpdate, Name: "concurrent_update"},
		{Kind: KindConcurrentFinish, Name: "concurrent_finish"},
		{Kind: KindSweepBegin, Name: "sweep_begin", Fields: []Field{
			{Name: "generation", Type: Int32},
			{Name: "full_sweep", Type: Bool},
		}},
		{Kind: KindSweepEnd, Name: "sweep_end", Fields: []Field{
			{Name: "generation", Type: Int32},
			{Name: "full_sweep", Type: Bool},
		}},
		{Kind: KindWorldStopping, Name: "world_stopping", Fields: []Field{
			{Name: "generation", Type: Int32},
			{Name: "timestamp", Type: Int64},
			{Name: "thread", Type: Pointer},
		}},
		{Kind: KindWorldStopped, Name: "world_stopped", Fields: []Field{
			{Name: "generation", Type: Int32},
			{Name: "timestamp", Type: Int64},
			{Name: "total_major_cards", Type: Int64},
			{Name: "marked_major_cards", Type: Int64},
			{Name: "total_los_cards", Type: Int64},
			{Name: "marked_los_cards", Type: Int64},
		}},
		{Kind: KindWorldRestarting, Name: "world_restarting", Fields: []Field{
			{Name: "generation", Type: Int32},
			{Name: "timestamp", Type: Int64},
		}},
		{Kind: KindWorldRestarted, Name: "world_restarted", Flush: true, Fields: []Field{
			{Name: "generation", Type: Int32},
			{Name: "timestamp", Type: Int64},
		}},
		{Kind: KindAlloc, Name: "alloc", Heavy: true, Fields: []Field{
			{Name: "obj", Type: Pointer},
			{Name: "vtable", Type: Pointer},
			{Name: "size", Type: Size},
			{Name: "provenance", Type: Pointer},
		}},
		{Kind: KindCopy, Name: "copy", Heavy: true, Fields: []Field{
			{Name: "from", Type: Pointer},
			{Name: "to", Type: Pointer},
			{Name: "vtable", Type: Pointer},
			{Name: "size", Type: Size},
		}},
		{Kind: KindPin, Name: "pin", Heavy: true, Fields: []Field{
			{Name: "obj", Type: Pointer},
			{Name: "vtable", Type: Pointer},
			{Name: "size", Type: Size},
		}},
		{Kind: KindMark, Name: "mark", Heavy: true, Fields: []Field{
			{Name: "obj", Type: Pointer},
			{Name: "vtable", Type: Pointer},
			{Name: "size", Type: Size},
		}},
		{Kind: KindThreadSuspend, Name: "thread_suspend", Fields: []Field{
			{Name: "thread", Type: Pointer},
			{Name: "stopped_ip", Type: Pointer},
		}},
		{Kind: KindThreadRestart, Name: "thread_restart", Fields: []Field{
			{Name: "thread", Type: Pointer},
		}},
		{Kind: KindEmpty, Name: "empty", Heavy: true, Fields: []Field{
			{Name: "start", Type: Pointer},
			{Name: "size", Type: Size},
		}},
	}
}

var defaultCatalog = MustNew(GC()...)

// Default returns the garbage collector catalog.
func Default() *Catalog {
	return defaultCatalog
}
