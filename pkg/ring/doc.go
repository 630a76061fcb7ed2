// ABOUTME: Ring buffer package for the published sample window
// ABOUTME: Fixed-capacity float32 store with an embedded write cursor
// Package ring provides the fixed-capacity circular sample store that backs
// every published snapshot.
//
// A Buffer is owned by exactly one goroutine (the audio callback). Append
// writes a frame at the cursor and wraps when the frame runs past the end, so
// the buffer always holds the most recent Capacity() samples. Once the buffer
// has wrapped, storage order is no longer chronological: Cursor() marks the
// boundary between the newest and the oldest data.
//
// Example:
//
//	buf := ring.New(ring.DefaultCapacity())
//	if err := buf.Append(block); err != nil {
//	    // ring.ErrFrameTooLarge: block is longer than the buffer
//	}
//	window := make([]float32, buf.Capacity())
//	buf.Logical(window)
package ring
