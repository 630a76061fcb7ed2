// ABOUTME: Host engine that feeds audio blocks to a publisher
// ABOUTME: Runs a ticker at block cadence and splits interleaved samples per channel
// Package host simulates a plugin host driving a nanometers publisher.
//
// The host pulls interleaved blocks from a source at the block cadence,
// splits them into per-channel slices the way an audio callback receives
// them, and hands each block to Publisher.Process. It can also monitor the
// audio through the default output device and show a status TUI.
package host

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nanometers/nanometers-go/internal/source"
	"github.com/nanometers/nanometers-go/pkg/nanometers"
	"github.com/nanometers/nanometers-go/pkg/ring"
)

const (
	// DefaultBlockFrames is the frames per block a typical host uses
	DefaultBlockFrames = 512

	// StatusInterval is how often status is reported
	StatusInterval = 250 * time.Millisecond
)

// Config holds host configuration
type Config struct {
	// Source provides the audio; required
	Source source.Source

	// BlockFrames is frames per block (default: DefaultBlockFrames)
	BlockFrames int

	// Publisher configures the publisher the host drives
	Publisher nanometers.Config

	// Monitor plays the audio locally; optional
	Monitor *Monitor

	// OnStatus receives a status report every StatusInterval; optional
	OnStatus func(Status)

	Debug bool
}

// Status is a snapshot of host state for display
type Status struct {
	ID         string
	Address    string
	Mode       string
	Streaming  bool
	Connected  bool
	AudioTitle string
	SampleRate int
	Channels   int
	Cursor     int
	Capacity   int
	Uptime     time.Duration
	Stats      nanometers.Stats

	// Monitor fields are zero when local playback is off
	Monitoring     bool
	Volume         int
	Muted          bool
	MonitorDropped uint64
}

// Host drives a publisher from a source
type Host struct {
	config    Config
	source    source.Source
	publisher *nanometers.Publisher
	monitor   *Monitor

	// Reused every block
	interleaved []float32
	channels    [][]float32

	startTime time.Time
	resetChan chan struct{}
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// New creates a host and its publisher
func New(config Config) (*Host, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if config.BlockFrames <= 0 {
		config.BlockFrames = DefaultBlockFrames
	}
	if config.Source.Channels() <= 0 || config.Source.SampleRate() <= 0 {
		return nil, fmt.Errorf("invalid source format: %d Hz, %d channels",
			config.Source.SampleRate(), config.Source.Channels())
	}

	capacity := config.Publisher.Capacity
	if capacity == 0 {
		capacity = ring.DefaultCapacity()
	}
	if block := config.BlockFrames * config.Source.Channels(); block > capacity {
		return nil, fmt.Errorf("block of %d samples (%d frames x %d channels) exceeds ring capacity %d",
			block, config.BlockFrames, config.Source.Channels(), capacity)
	}

	config.Publisher.Debug = config.Publisher.Debug || config.Debug
	publisher, err := nanometers.New(config.Publisher)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	numChannels := config.Source.Channels()
	channels := make([][]float32, numChannels)
	for ch := range channels {
		channels[ch] = make([]float32, config.BlockFrames)
	}

	return &Host{
		config:      config,
		source:      config.Source,
		publisher:   publisher,
		monitor:     config.Monitor,
		interleaved: make([]float32, config.BlockFrames*numChannels),
		channels:    channels,
		resetChan:   make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
	}, nil
}

// Publisher returns the driven publisher
func (h *Host) Publisher() *nanometers.Publisher {
	return h.publisher
}

// BlockDuration returns the wall-clock length of one block
func (h *Host) BlockDuration() time.Duration {
	return time.Duration(h.config.BlockFrames) * time.Second / time.Duration(h.source.SampleRate())
}

// Start runs the block loop until Stop is called, then closes the publisher
func (h *Host) Start() {
	h.startTime = time.Now()
	title, _, _ := h.source.Metadata()
	log.Printf("Host starting: %s, %d Hz, %d channels, %d frames per block (%v)",
		title, h.source.SampleRate(), h.source.Channels(), h.config.BlockFrames, h.BlockDuration())

	ticker := time.NewTicker(h.BlockDuration())
	defer ticker.Stop()

	statusTicker := time.NewTicker(StatusInterval)
	defer statusTicker.Stop()

	defer h.publisher.Close()

	for {
		select {
		case <-ticker.C:
			if err := h.processBlock(); err != nil {
				log.Printf("Error reading audio: %v", err)
			}
		case <-h.resetChan:
			log.Printf("Host: resetting ring")
			h.publisher.Reset()
		case <-statusTicker.C:
			if h.config.OnStatus != nil {
				h.config.OnStatus(h.Status())
			}
		case <-h.stopChan:
			log.Printf("Host stopping")
			return
		}
	}
}

// Stop stops the block loop
func (h *Host) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
}

// Reset asks the block loop to clear the ring
func (h *Host) Reset() {
	select {
	case h.resetChan <- struct{}{}:
	default:
	}
}

// processBlock reads one block and hands it to the publisher
func (h *Host) processBlock() error {
	n, err := h.source.Read(h.interleaved)
	if err != nil {
		return err
	}

	frames := deinterleave(h.channels, h.interleaved[:n])
	if frames == 0 {
		return nil
	}

	block := h.channels
	for ch := range block {
		block[ch] = block[ch][:frames]
	}
	h.publisher.Process(block)
	for ch := range block {
		block[ch] = block[ch][:h.config.BlockFrames]
	}

	if h.monitor != nil {
		h.monitor.Write(h.interleaved[:frames*len(h.channels)])
	}

	if h.config.Debug && h.publisher.Stats().Blocks%1000 == 0 {
		log.Printf("[DEBUG] Host: blocks=%d cursor=%d", h.publisher.Stats().Blocks, h.publisher.Ring().Cursor())
	}
	return nil
}

// Status reports host state. Call it on the block loop goroutine.
func (h *Host) Status() Status {
	title, artist, _ := h.source.Metadata()
	if artist != "" {
		title = artist + " - " + title
	}

	var uptime time.Duration
	if !h.startTime.IsZero() {
		uptime = time.Since(h.startTime).Round(time.Second)
	}

	status := Status{
		ID:         h.publisher.ID(),
		Address:    h.publisher.Addr().String(),
		Mode:       h.config.Publisher.Mode.String(),
		Streaming:  h.publisher.Streaming(),
		Connected:  h.publisher.Connected(),
		AudioTitle: title,
		SampleRate: h.source.SampleRate(),
		Channels:   h.source.Channels(),
		Cursor:     h.publisher.Ring().Cursor(),
		Capacity:   h.publisher.Capacity(),
		Uptime:     uptime,
		Stats:      h.publisher.Stats(),
	}
	if h.monitor != nil {
		status.Monitoring = true
		status.Volume = h.monitor.Volume()
		status.Muted = h.monitor.Muted()
		status.MonitorDropped = h.monitor.Dropped()
	}
	return status
}

// AdjustVolume changes the monitor volume by delta percent
func (h *Host) AdjustVolume(delta int) {
	if h.monitor == nil {
		return
	}
	h.monitor.SetVolume(h.monitor.Volume() + delta)
}

// ToggleMute flips the monitor mute state
func (h *Host) ToggleMute() {
	if h.monitor == nil {
		return
	}
	muted := !h.monitor.Muted()
	h.monitor.SetMuted(muted)
	log.Printf("Monitor muted: %v", muted)
}

// deinterleave splits interleaved samples into dst, one slice per channel,
// and returns the number of whole frames written
func deinterleave(dst [][]float32, src []float32) int {
	numChannels := len(dst)
	if numChannels == 0 {
		return 0
	}

	frames := len(src) / numChannels
	for ch := range dst {
		if len(dst[ch]) < frames {
			frames = len(dst[ch])
		}
	}

	for i := 0; i < frames; i++ {
		for ch := 0; ch < numChannels; ch++ {
			dst[ch][i] = src[i*numChannels+ch]
		}
	}
	return frames
}
