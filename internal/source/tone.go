// ABOUTME: Test tone generator
// ABOUTME: Generates a sine wave duplicated to every channel
package source

import (
	"math"
)

const (
	DefaultSampleRate    = 48000
	DefaultChannels      = 2
	DefaultToneFrequency = 440.0 // A4 note
)

// ToneSource generates a sine test tone at half amplitude
type ToneSource struct {
	frequency   float64
	sampleRate  int
	channels    int
	sampleIndex uint64
}

// NewTone creates a tone generator
func NewTone(frequency float64, sampleRate, channels int) *ToneSource {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	return &ToneSource{
		frequency:  frequency,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

func (s *ToneSource) Read(samples []float32) (int, error) {
	frames := len(samples) / s.channels

	for i := 0; i < frames; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.sampleRate)
		v := float32(0.5 * math.Sin(2*math.Pi*s.frequency*t))
		for ch := 0; ch < s.channels; ch++ {
			samples[i*s.channels+ch] = v
		}
	}

	s.sampleIndex += uint64(frames)
	return frames * s.channels, nil
}

func (s *ToneSource) SampleRate() int { return s.sampleRate }
func (s *ToneSource) Channels() int   { return s.channels }
func (s *ToneSource) Metadata() (string, string, string) {
	return "Test Tone", "nanometers", "Generated"
}
func (s *ToneSource) Close() error { return nil }
