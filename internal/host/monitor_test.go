// ABOUTME: Tests for monitor sample conversion
// ABOUTME: Covers volume, int16 clipping, and buffer reuse without an audio device
package host

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestVolumeMultiplier(t *testing.T) {
	tests := []struct {
		name   string
		volume int
		muted  bool
		want   float64
	}{
		{"full volume", 100, false, 1.0},
		{"half volume", 50, false, 0.5},
		{"zero volume", 0, false, 0.0},
		{"muted", 100, true, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := volumeMultiplier(tt.volume, tt.muted)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEncodeInt16(t *testing.T) {
	tests := []struct {
		name       string
		sample     float32
		multiplier float64
		want       int16
	}{
		{"silence", 0, 1, 0},
		{"full scale", 1, 1, 32767},
		{"negative full scale", -1, 1, -32767},
		{"half volume", 1, 0.5, 16383},
		{"clip high", 2, 1, 32767},
		{"clip low", -2, 1, -32768},
		{"muted", 1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, 2)
			encodeInt16(buf, []float32{tt.sample}, tt.multiplier)
			got := int16(binary.LittleEndian.Uint16(buf))
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestMonitorSetVolumeClamps(t *testing.T) {
	tests := []struct {
		name   string
		volume int
		want   int
	}{
		{"in range", 40, 40},
		{"below zero", -10, 0},
		{"above max", 150, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMonitor()
			m.SetVolume(tt.volume)
			if got := m.Volume(); got != tt.want {
				t.Errorf("expected volume %d, got %d", tt.want, got)
			}
		})
	}
}

func TestMonitorMutedWritesSilence(t *testing.T) {
	m := newMonitor()
	m.SetMuted(true)
	if !m.Muted() {
		t.Fatal("expected muted")
	}

	m.Write([]float32{0.5, -0.5})
	buf := <-m.queue
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("expected silence, byte %d is %d", i, b)
		}
	}
}

func TestMonitorDropsWhenDeviceLags(t *testing.T) {
	m := newMonitor()
	block := make([]float32, 64)

	// Nothing drains the queue, so only monitorQueue blocks fit
	for i := 0; i < monitorQueue+3; i++ {
		m.Write(block)
	}

	if got := m.Dropped(); got != 3 {
		t.Errorf("expected 3 dropped blocks, got %d", got)
	}
	if len(m.queue) != monitorQueue {
		t.Errorf("expected %d queued blocks, got %d", monitorQueue, len(m.queue))
	}

	// A played buffer frees a slot again
	m.release(<-m.queue)
	m.Write(block)
	if got := m.Dropped(); got != 3 {
		t.Errorf("expected no new drops after release, got %d", got)
	}
}

func TestMonitorWriteReusesBuffers(t *testing.T) {
	m := newMonitor()
	block := make([]float32, 512*2)

	// Grow every pooled buffer once
	for i := 0; i < monitorQueue; i++ {
		m.Write(block)
	}
	for i := 0; i < monitorQueue; i++ {
		m.release(<-m.queue)
	}

	allocs := testing.AllocsPerRun(100, func() {
		m.Write(block)
		m.release(<-m.queue)
	})
	if allocs != 0 {
		t.Errorf("expected no allocations per block, got %v", allocs)
	}
	if m.Dropped() != 0 {
		t.Errorf("expected no drops, got %d", m.Dropped())
	}
}
