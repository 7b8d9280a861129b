// Package event defines the on-disk record format of the GC event log.
//
// # Record Layout
//
// Every record starts with a one-byte Tag. The low seven bits hold the event
// Kind, the high bit marks records emitted by a background (collector worker)
// thread:
//
//	tag := event.NewTag(kind, true)
//	tag.Kind()       // kind
//	tag.Background() // true
//
// The payload follows the tag directly. Its length is not stored in the file;
// readers look it up in a catalog keyed by Kind.
//
// # Header
//
// Every log file starts with a header record of kind KindHeader whose payload
// describes the writer:
//
//	h := event.NativeHeader()
//	payload := h.AppendPayload(nil) // check, version, pointer size, byte order
//
// ParseHeader detects the byte order from the check constant, so a log written
// on a big endian machine can be read anywhere.
//
// # Decoded Records
//
// Record is the decoded form used by the dump and export tools. FileStats and
// FileFormat describe exported files.
package event
