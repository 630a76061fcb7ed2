// ABOUTME: Snapshot encoder and decoder for the local socket stream
// ABOUTME: Preallocated, allocation-free encoding of the ring buffer state
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// WordSize is the size of one encoded value in bytes
const WordSize = 4

// CursorEncoding selects how word 0 carries the cursor
type CursorEncoding int

const (
	// CursorUint32 writes the cursor as a native-endian uint32
	CursorUint32 CursorEncoding = iota

	// CursorFloat32 writes the cursor as a float32 holding an integer value.
	// Compatible with consumers that read the header as a float. Exact
	// only for cursors up to 2^24.
	CursorFloat32
)

func (e CursorEncoding) String() string {
	switch e {
	case CursorUint32:
		return "uint32"
	case CursorFloat32:
		return "float32"
	default:
		return fmt.Sprintf("CursorEncoding(%d)", int(e))
	}
}

var (
	// ErrShortSnapshot is returned when a buffer is smaller than one snapshot
	ErrShortSnapshot = errors.New("snapshot: buffer shorter than snapshot size")

	// ErrBadCursor is returned when the decoded cursor is outside [0, capacity]
	ErrBadCursor = errors.New("snapshot: cursor out of range")
)

var order = binary.NativeEndian

// Size returns the encoded size in bytes of a snapshot with capacity samples
func Size(capacity int) int {
	return (capacity + 1) * WordSize
}

// Snapshot is a decoded view of one published ring buffer
type Snapshot struct {
	Cursor  int
	Samples []float32 // storage order
}

// EncodeInto writes cursor and samples into dst, which must hold at least
// Size(len(samples)) bytes. It returns the number of bytes written.
func EncodeInto(dst []byte, cursor int, samples []float32, enc CursorEncoding) (int, error) {
	n := Size(len(samples))
	if len(dst) < n {
		return 0, ErrShortSnapshot
	}
	if cursor < 0 || cursor > len(samples) {
		return 0, ErrBadCursor
	}

	switch enc {
	case CursorFloat32:
		order.PutUint32(dst, math.Float32bits(float32(cursor)))
	default:
		order.PutUint32(dst, uint32(cursor))
	}

	off := WordSize
	for _, s := range samples {
		order.PutUint32(dst[off:], math.Float32bits(s))
		off += WordSize
	}

	return n, nil
}

// Encode allocates and returns the encoding of cursor and samples
func Encode(cursor int, samples []float32, enc CursorEncoding) ([]byte, error) {
	buf := make([]byte, Size(len(samples)))
	if _, err := EncodeInto(buf, cursor, samples, enc); err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodeInto decodes one snapshot from src into snap, reusing snap.Samples
// when it is already the right length. The capacity is taken from
// len(snap.Samples) if set, otherwise from len(src).
func DecodeInto(snap *Snapshot, src []byte, enc CursorEncoding) error {
	capacity := len(snap.Samples)
	if capacity == 0 {
		capacity = len(src)/WordSize - 1
		if capacity <= 0 {
			return ErrShortSnapshot
		}
		snap.Samples = make([]float32, capacity)
	}
	if len(src) < Size(capacity) {
		return ErrShortSnapshot
	}

	var cursor int
	switch enc {
	case CursorFloat32:
		f := math.Float32frombits(order.Uint32(src))
		if f < 0 || f > float32(capacity) || f != float32(math.Trunc(float64(f))) {
			return fmt.Errorf("%w: %v", ErrBadCursor, f)
		}
		cursor = int(f)
	default:
		cursor = int(order.Uint32(src))
	}
	if cursor < 0 || cursor > capacity {
		return fmt.Errorf("%w: %d > %d", ErrBadCursor, cursor, capacity)
	}
	snap.Cursor = cursor

	off := WordSize
	for i := range snap.Samples {
		snap.Samples[i] = math.Float32frombits(order.Uint32(src[off:]))
		off += WordSize
	}

	return nil
}

// Decode decodes a snapshot whose capacity is inferred from len(src)
func Decode(src []byte, enc CursorEncoding) (Snapshot, error) {
	var snap Snapshot
	err := DecodeInto(&snap, src, enc)
	return snap, err
}

// Chronological copies the samples into dst oldest first, treating the cursor
// as the wraparound boundary, and returns the number of samples copied. A
// consumer cannot tell a buffer that has not wrapped yet from one that has;
// unwritten slots are zero and read as silence.
func (s Snapshot) Chronological(dst []float32) int {
	older := s.Samples[s.Cursor:]
	newer := s.Samples[:s.Cursor]
	n := copy(dst, older)
	n += copy(dst[n:], newer)
	return n
}

// Newest returns up to n of the most recently written samples, oldest first.
// The result aliases s.Samples when the range does not wrap.
func (s Snapshot) Newest(n int, scratch []float32) []float32 {
	if n > len(s.Samples) {
		n = len(s.Samples)
	}
	if n <= s.Cursor {
		return s.Samples[s.Cursor-n : s.Cursor]
	}

	if cap(scratch) < n {
		scratch = make([]float32, n)
	}
	scratch = scratch[:n]
	head := n - s.Cursor
	copy(scratch, s.Samples[len(s.Samples)-head:])
	copy(scratch[head:], s.Samples[:s.Cursor])
	return scratch
}
