// ABOUTME: Snapshot wire format package
// ABOUTME: Fixed-size cursor header plus raw float32 samples, native-endian
// Package snapshot encodes and decodes the fixed-size message a consumer reads
// from the local socket.
//
// A snapshot is capacity+1 consecutive 4-byte native-endian words:
//
//	word 0          cursor (uint32, or float32 in the legacy encoding)
//	words 1..cap    samples in storage order (float32)
//
// There is no length prefix, delimiter, or version tag. Both sides agree on
// the capacity up front, so Size(capacity) bytes is always one snapshot.
//
// Example:
//
//	buf := make([]byte, snapshot.Size(ring.Capacity()))
//	snapshot.EncodeInto(buf, ring.Cursor(), ring.Samples(), snapshot.CursorUint32)
//
//	var snap snapshot.Snapshot
//	err := snapshot.DecodeInto(&snap, buf, snapshot.CursorUint32)
package snapshot
