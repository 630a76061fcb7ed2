// ABOUTME: Bridges receiver snapshots to the scope TUI
// ABOUTME: Throttles redraws and reduces each window before sending it
package scope

import (
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nanometers/nanometers-go/pkg/snapshot"
)

const (
	// DefaultWindow is the number of newest samples analyzed per redraw
	DefaultWindow = 2048

	// DefaultFrameInterval caps redraws at roughly 30 per second
	DefaultFrameInterval = 33 * time.Millisecond
)

// Feeder turns snapshots into SnapshotMsg values. Handle runs on the
// receiver goroutine; SetColumns may be called from any goroutine.
type Feeder struct {
	send     func(tea.Msg)
	window   int
	interval time.Duration

	last      time.Time
	scratch   []float32
	snapshots uint64
	columns   atomic.Int64
}

// NewFeeder creates a feeder that delivers messages through send,
// typically (*tea.Program).Send. An interval of 0 sends every snapshot.
func NewFeeder(send func(tea.Msg), window int, interval time.Duration) *Feeder {
	if window <= 0 {
		window = DefaultWindow
	}
	if interval < 0 {
		interval = DefaultFrameInterval
	}

	f := &Feeder{
		send:     send,
		window:   window,
		interval: interval,
		scratch:  make([]float32, window),
	}
	f.columns.Store(defaultWidth - 4)
	return f
}

// SetColumns sets the waveform width
func (f *Feeder) SetColumns(n int) {
	if n > 0 {
		f.columns.Store(int64(n))
	}
}

// Handle consumes one snapshot
func (f *Feeder) Handle(s snapshot.Snapshot) {
	f.snapshots++

	now := time.Now()
	if now.Sub(f.last) < f.interval {
		return
	}
	f.last = now

	samples := s.Newest(f.window, f.scratch)

	// The envelope crosses goroutines, so it is not reused
	env := Envelope(make([]float64, f.columns.Load()), samples)

	f.send(SnapshotMsg{
		Cursor:    s.Cursor,
		Capacity:  len(s.Samples),
		Snapshots: f.snapshots,
		Levels:    Analyze(samples),
		Envelope:  env,
	})
}
