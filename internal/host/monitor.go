// ABOUTME: Oto-based monitor output for the host
// ABOUTME: Plays published audio locally with software volume control
package host

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// monitorQueue is the number of blocks buffered ahead of the device
const monitorQueue = 16

// Monitor plays float32 blocks through the default output device. Write
// never blocks the host loop: when the device falls behind, blocks are
// dropped.
type Monitor struct {
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter

	// free and queue share monitorQueue buffers that are reused forever
	free      chan []byte
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu      sync.RWMutex
	volume  int
	muted   bool
	dropped uint64
}

// NewMonitor opens the output device
func NewMonitor(sampleRate, channels int) (*Monitor, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	m := newMonitor()
	m.otoCtx = otoCtx

	// Persistent player fed from a pipe
	m.pipeReader, m.pipeWriter = io.Pipe()
	m.player = otoCtx.NewPlayer(m.pipeReader)
	m.player.Play()

	m.wg.Add(1)
	go m.writer()

	log.Printf("Monitor output initialized: %dHz, %d channels", sampleRate, channels)
	return m, nil
}

// newMonitor builds the queue state without touching the audio device
func newMonitor() *Monitor {
	m := &Monitor{
		free:   make(chan []byte, monitorQueue),
		queue:  make(chan []byte, monitorQueue),
		done:   make(chan struct{}),
		volume: 100,
	}
	for i := 0; i < monitorQueue; i++ {
		m.free <- nil
	}
	return m
}

func (m *Monitor) writer() {
	defer m.wg.Done()
	for {
		select {
		case buf := <-m.queue:
			_, err := m.pipeWriter.Write(buf)
			m.release(buf)
			if err != nil {
				log.Printf("Monitor: pipe write failed: %v", err)
				return
			}
		case <-m.done:
			return
		}
	}
}

// release hands a played buffer back to Write
func (m *Monitor) release(buf []byte) {
	m.free <- buf[:0]
}

// Write queues interleaved samples for playback. Buffers grow to the
// largest block seen and are then reused, so steady-state writes do not
// allocate.
func (m *Monitor) Write(samples []float32) {
	var buf []byte
	select {
	case buf = <-m.free:
	default:
		m.drop()
		return
	}

	n := len(samples) * 2
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]

	m.mu.RLock()
	multiplier := volumeMultiplier(m.volume, m.muted)
	m.mu.RUnlock()
	encodeInt16(buf, samples, multiplier)

	// Every buffer fits in queue, so this never blocks
	m.queue <- buf
}

func (m *Monitor) drop() {
	m.mu.Lock()
	m.dropped++
	m.mu.Unlock()
}

// SetVolume sets the volume (0-100)
func (m *Monitor) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	m.mu.Lock()
	m.volume = volume
	m.mu.Unlock()
	log.Printf("Monitor volume set to %d", volume)
}

// SetMuted sets mute state
func (m *Monitor) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

// Muted reports whether output is muted
func (m *Monitor) Muted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.muted
}

// Volume returns the current volume
func (m *Monitor) Volume() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.volume
}

// Dropped returns the number of blocks dropped because the device lagged
func (m *Monitor) Dropped() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropped
}

// Close stops playback and releases the device
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
		m.pipeWriter.Close()
		m.wg.Wait()
		m.player.Close()
		m.pipeReader.Close()
		m.otoCtx.Suspend()
	})
	return nil
}

// encodeInt16 converts float samples to little-endian int16 with volume
// and clipping
func encodeInt16(dst []byte, samples []float32, multiplier float64) {
	for i, s := range samples {
		v := float64(s) * multiplier * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(v)))
	}
}

// volumeMultiplier calculates the volume multiplier
func volumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
