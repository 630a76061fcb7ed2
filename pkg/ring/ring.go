// ABOUTME: Circular float32 sample store with wraparound append
// ABOUTME: Single-writer, allocation-free append used on the audio path
package ring

import (
	"errors"
	"runtime"
)

const (
	// CapacityDarwin matches the 44.1kHz default device rate on macOS
	CapacityDarwin = 44100

	// CapacityDefault is one second at 48kHz
	CapacityDefault = 48000
)

// ErrFrameTooLarge is returned when a frame is longer than the buffer
var ErrFrameTooLarge = errors.New("ring: frame exceeds buffer capacity")

// DefaultCapacity returns the platform capacity in samples
func DefaultCapacity() int {
	if runtime.GOOS == "darwin" {
		return CapacityDarwin
	}
	return CapacityDefault
}

// Buffer is a fixed-capacity circular store of samples.
// Only one goroutine may call the mutating methods.
type Buffer struct {
	samples []float32
	cursor  int  // next free slot, always in [0, len(samples)]
	wrapped bool // true once every slot has been written
}

// New creates a buffer holding capacity samples.
// It panics if capacity is not positive.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer{
		samples: make([]float32, capacity),
	}
}

// Append writes frame at the cursor, wrapping to the start of the store when
// the frame runs past the end. A frame longer than the capacity is rejected
// with ErrFrameTooLarge and leaves the buffer unchanged.
func (b *Buffer) Append(frame []float32) error {
	capacity := len(b.samples)
	if len(frame) > capacity {
		return ErrFrameTooLarge
	}

	if b.cursor+len(frame) <= capacity {
		copy(b.samples[b.cursor:], frame)
		b.cursor += len(frame)
		return nil
	}

	split := capacity - b.cursor
	copy(b.samples[b.cursor:], frame[:split])
	second := frame[split:]
	copy(b.samples, second)
	b.cursor = len(second)
	b.wrapped = true

	return nil
}

// Cursor returns the next write offset
func (b *Buffer) Cursor() int {
	return b.cursor
}

// Capacity returns the number of sample slots
func (b *Buffer) Capacity() int {
	return len(b.samples)
}

// Wrapped reports whether the store has been filled at least once
func (b *Buffer) Wrapped() bool {
	return b.wrapped || b.cursor == len(b.samples)
}

// Samples returns the backing store in storage order.
// The slice aliases the buffer and is only valid on the owning goroutine.
func (b *Buffer) Samples() []float32 {
	return b.samples
}

// Len returns the number of valid samples
func (b *Buffer) Len() int {
	if b.Wrapped() {
		return len(b.samples)
	}
	return b.cursor
}

// Logical copies the valid samples into dst oldest first and returns the
// number copied. dst shorter than Len() receives the newest len(dst) samples.
func (b *Buffer) Logical(dst []float32) int {
	if !b.Wrapped() {
		return copyNewest(dst, b.samples[:b.cursor])
	}

	older := b.samples[b.cursor:]
	newer := b.samples[:b.cursor]
	n := len(older) + len(newer)
	if len(dst) >= n {
		copy(dst, older)
		copy(dst[len(older):], newer)
		return n
	}

	// Only the newest len(dst) samples fit
	if len(dst) <= len(newer) {
		return copyNewest(dst, newer)
	}
	skip := n - len(dst)
	copy(dst, older[skip:])
	copy(dst[len(older)-skip:], newer)
	return len(dst)
}

// Reset clears all samples and rewinds the cursor without reallocating
func (b *Buffer) Reset() {
	clear(b.samples)
	b.cursor = 0
	b.wrapped = false
}

// copyNewest copies the tail of src that fits into dst
func copyNewest(dst, src []float32) int {
	if len(src) > len(dst) {
		src = src[len(src)-len(dst):]
	}
	return copy(dst, src)
}
