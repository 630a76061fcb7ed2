// ABOUTME: Tests for the circular sample store
// ABOUTME: Verifies append, wraparound, eviction, rejection, and logical ordering
package ring

import (
	"errors"
	"testing"
)

func seq(from, to int) []float32 {
	out := make([]float32, 0, to-from+1)
	for v := from; v <= to; v++ {
		out = append(out, float32(v))
	}
	return out
}

func equal(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func logical(b *Buffer) []float32 {
	out := make([]float32, b.Capacity())
	n := b.Logical(out)
	return out[:n]
}

func TestNew(t *testing.T) {
	buf := New(16)
	if buf.Capacity() != 16 {
		t.Errorf("expected capacity 16, got %d", buf.Capacity())
	}
	if buf.Cursor() != 0 {
		t.Errorf("expected cursor 0, got %d", buf.Cursor())
	}
	if buf.Wrapped() {
		t.Error("new buffer should not be wrapped")
	}
	if got := logical(buf); len(got) != 0 {
		t.Errorf("new buffer should be empty, got %v", got)
	}
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero capacity")
		}
	}()
	New(0)
}

func TestDefaultCapacity(t *testing.T) {
	c := DefaultCapacity()
	if c != CapacityDarwin && c != CapacityDefault {
		t.Errorf("unexpected default capacity %d", c)
	}
}

func TestAppendWithinCapacity(t *testing.T) {
	tests := []struct {
		name   string
		frames [][]float32
	}{
		{"single frame", [][]float32{seq(1, 4)}},
		{"several frames", [][]float32{seq(1, 3), seq(4, 5), seq(6, 9)}},
		{"exactly full", [][]float32{seq(1, 6), seq(7, 10)}},
		{"empty frame", [][]float32{{}, seq(1, 2), {}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := New(10)
			var want []float32
			for _, f := range tt.frames {
				if err := buf.Append(f); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				want = append(want, f...)
			}

			if buf.Cursor() != len(want) {
				t.Errorf("expected cursor %d, got %d", len(want), buf.Cursor())
			}
			if got := logical(buf); !equal(got, want) {
				t.Errorf("expected %v, got %v", want, got)
			}
		})
	}
}

func TestAppendWraparoundScenario(t *testing.T) {
	buf := New(10)

	if err := buf.Append(seq(1, 3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := buf.Append(seq(4, 12)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if buf.Cursor() != 2 {
		t.Errorf("expected cursor 2, got %d", buf.Cursor())
	}

	storage := []float32{11, 12, 3, 4, 5, 6, 7, 8, 9, 10}
	if !equal(buf.Samples(), storage) {
		t.Errorf("expected storage %v, got %v", storage, buf.Samples())
	}

	if got := logical(buf); !equal(got, seq(3, 12)) {
		t.Errorf("expected logical %v, got %v", seq(3, 12), got)
	}
}

func TestAppendEvictsOldest(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		sizes    []int
	}{
		{"small frames", 7, []int{3, 3, 3, 3, 3}},
		{"mixed frames", 10, []int{4, 9, 1, 10, 6, 2}},
		{"full frames", 5, []int{5, 5, 5}},
		{"single samples", 3, []int{1, 1, 1, 1, 1, 1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := New(tt.capacity)
			next := 1
			for _, n := range tt.sizes {
				if err := buf.Append(seq(next, next+n-1)); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				next += n
			}

			total := next - 1
			if total <= tt.capacity {
				t.Fatalf("test case must overflow the buffer")
			}

			if buf.Cursor()%tt.capacity != total%tt.capacity {
				t.Errorf("cursor %d not congruent to %d mod %d", buf.Cursor(), total, tt.capacity)
			}

			want := seq(total-tt.capacity+1, total)
			if got := logical(buf); !equal(got, want) {
				t.Errorf("expected newest %v, got %v", want, got)
			}
		})
	}
}

func TestAppendRejectsOversizedFrame(t *testing.T) {
	buf := New(5)
	if err := buf.Append(seq(1, 4)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before := append([]float32(nil), buf.Samples()...)
	cursor := buf.Cursor()

	err := buf.Append(seq(10, 15))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}

	if buf.Cursor() != cursor {
		t.Errorf("cursor changed from %d to %d", cursor, buf.Cursor())
	}
	if !equal(buf.Samples(), before) {
		t.Errorf("samples changed from %v to %v", before, buf.Samples())
	}
}

func TestAppendManyCycles(t *testing.T) {
	const capacity = 5
	buf := New(capacity)
	block := []float32{1, 2, 3}

	for i := 0; i < 1000; i++ {
		if err := buf.Append(block); err != nil {
			t.Fatalf("cycle %d: unexpected error: %v", i, err)
		}
	}

	// Pure arithmetic: 3000 samples written into 5 slots
	if buf.Cursor() != 3000%capacity && buf.Cursor() != capacity {
		t.Errorf("unexpected cursor %d", buf.Cursor())
	}

	// Sample k (0-based) of the stream is block[k%3]; the window is k in [2995, 3000)
	var want []float32
	for k := 2995; k < 3000; k++ {
		want = append(want, block[k%3])
	}
	if got := logical(buf); !equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestAppendDoesNotAllocate(t *testing.T) {
	buf := New(256)
	frame := seq(1, 100)

	allocs := testing.AllocsPerRun(100, func() {
		_ = buf.Append(frame)
	})
	if allocs != 0 {
		t.Errorf("expected 0 allocations per append, got %.1f", allocs)
	}
}

func TestLogicalShortDestination(t *testing.T) {
	buf := New(10)
	_ = buf.Append(seq(1, 3))
	_ = buf.Append(seq(4, 12))

	tests := []struct {
		name string
		size int
		want []float32
	}{
		{"fits newer half", 2, []float32{11, 12}},
		{"spans boundary", 5, seq(8, 12)},
		{"exact", 10, seq(3, 12)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]float32, tt.size)
			n := buf.Logical(dst)
			if !equal(dst[:n], tt.want) {
				t.Errorf("expected %v, got %v", tt.want, dst[:n])
			}
		})
	}
}

func TestLogicalShortDestinationBeforeWrap(t *testing.T) {
	buf := New(10)
	_ = buf.Append(seq(1, 6))

	dst := make([]float32, 4)
	n := buf.Logical(dst)
	if !equal(dst[:n], seq(3, 6)) {
		t.Errorf("expected %v, got %v", seq(3, 6), dst[:n])
	}
}

func TestReset(t *testing.T) {
	buf := New(4)
	_ = buf.Append(seq(1, 6))

	buf.Reset()

	if buf.Cursor() != 0 {
		t.Errorf("expected cursor 0 after reset, got %d", buf.Cursor())
	}
	if buf.Wrapped() {
		t.Error("expected unwrapped buffer after reset")
	}
	for i, v := range buf.Samples() {
		if v != 0 {
			t.Errorf("sample %d not cleared: %v", i, v)
		}
	}
	if buf.Capacity() != 4 {
		t.Errorf("capacity changed to %d", buf.Capacity())
	}
}
