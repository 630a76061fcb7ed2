// ABOUTME: Audio source abstraction for the simulated host
// ABOUTME: Supports MP3 and FLAC files and a generated test tone
// Package source provides audio sources for the simulated host.
//
// Every source yields interleaved float32 samples in [-1, 1]. File sources
// loop at end of file so a host can run indefinitely:
//
//	src, err := source.New("song.flac")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer src.Close()
//
//	block := make([]float32, 512*src.Channels())
//	n, err := src.Read(block)
package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// Source provides interleaved float32 samples
type Source interface {
	// Read fills samples with interleaved audio in [-1, 1] and returns the
	// number of samples written
	Read(samples []float32) (int, error)
	// SampleRate returns the sample rate of the audio
	SampleRate() int
	// Channels returns the number of channels
	Channels() int
	// Metadata returns title, artist, album
	Metadata() (title, artist, album string)
	// Close closes the source
	Close() error
}

// New creates a source from a file path. An empty path returns a test tone.
func New(path string) (Source, error) {
	if path == "" {
		return NewTone(DefaultToneFrequency, DefaultSampleRate, DefaultChannels), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp3":
		return NewMP3(path)
	case ".flac":
		return NewFLAC(path)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac)", ext)
	}
}

func titleFromPath(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// MP3Source reads from an MP3 file
type MP3Source struct {
	file       *os.File
	decoder    *mp3.Decoder
	sampleRate int
	title      string

	// Decoded int16 bytes, grown to the largest read
	buf []byte
}

// NewMP3 opens an MP3 file
func NewMP3(path string) (*MP3Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	title := titleFromPath(path)
	log.Printf("Loaded MP3: %s (sample rate: %d Hz)", title, decoder.SampleRate())

	return &MP3Source{
		file:       f,
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
		title:      title,
	}, nil
}

func (s *MP3Source) Read(samples []float32) (int, error) {
	numBytes := len(samples) * 2
	if cap(s.buf) < numBytes {
		s.buf = make([]byte, numBytes)
	}
	buf := s.buf[:numBytes]

	n, err := io.ReadFull(s.decoder, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, err
	}

	numSamples := pcm16ToFloat(samples, buf[:n])

	if err != nil {
		// Loop back to start
		if _, seekErr := s.file.Seek(0, io.SeekStart); seekErr != nil {
			return numSamples, fmt.Errorf("failed to seek to start: %w", seekErr)
		}
		decoder, decErr := mp3.NewDecoder(s.file)
		if decErr != nil {
			return numSamples, fmt.Errorf("failed to create new decoder: %w", decErr)
		}
		s.decoder = decoder
	}

	return numSamples, nil
}

func (s *MP3Source) SampleRate() int { return s.sampleRate }

// Channels is always 2; the MP3 decoder outputs stereo
func (s *MP3Source) Channels() int { return 2 }
func (s *MP3Source) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *MP3Source) Close() error {
	return s.file.Close()
}

// pcm16ToFloat converts little-endian int16 bytes into dst and returns the
// number of samples converted
func pcm16ToFloat(dst []float32, src []byte) int {
	n := len(src) / 2
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(src[i*2:]))) / 32768
	}
	return n
}

// FLACSource reads from a FLAC file
type FLACSource struct {
	file       *os.File
	stream     *flac.Stream
	sampleRate int
	channels   int
	bitDepth   int
	title      string

	// Samples decoded but not yet returned, sized for one full frame
	pending []float32

	// Per-channel samples of the frame being emitted
	frameSamples [][]int32
}

// NewFLAC opens a FLAC file
func NewFLAC(path string) (*FLACSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	title := titleFromPath(path)
	log.Printf("Loaded FLAC: %s (sample rate: %d Hz, channels: %d, bit depth: %d)",
		title, info.SampleRate, info.NChannels, info.BitsPerSample)

	return &FLACSource{
		file:       f,
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		bitDepth:   int(info.BitsPerSample),
		title:      title,

		pending:      make([]float32, 0, int(info.BlockSizeMax)*int(info.NChannels)),
		frameSamples: make([][]int32, info.NChannels),
	}, nil
}

func (s *FLACSource) Read(samples []float32) (int, error) {
	read := copy(samples, s.pending)
	s.pending = s.pending[:copy(s.pending, s.pending[read:])]

	for read < len(samples) {
		frame, err := s.stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if _, seekErr := s.file.Seek(0, io.SeekStart); seekErr != nil {
					return read, fmt.Errorf("failed to seek to start: %w", seekErr)
				}
				stream, decErr := flac.New(s.file)
				if decErr != nil {
					return read, fmt.Errorf("failed to create new stream: %w", decErr)
				}
				s.stream = stream
				continue
			}
			return read, err
		}

		for ch := range s.frameSamples {
			s.frameSamples[ch] = frame.Subframes[ch].Samples
		}
		read = s.emit(samples, read, s.frameSamples, int(frame.BlockSize))
	}

	return read, nil
}

// emit interleaves one decoded frame into dst starting at read and keeps
// what does not fit in pending. pending is empty whenever a new frame is
// emitted, so it never grows past one frame.
func (s *FLACSource) emit(dst []float32, read int, frame [][]int32, blockSize int) int {
	for i := 0; i < blockSize; i++ {
		for ch := range frame {
			v := scaleSample(frame[ch][i], s.bitDepth)
			if read < len(dst) {
				dst[read] = v
				read++
			} else {
				s.pending = append(s.pending, v)
			}
		}
	}
	return read
}

// scaleSample maps a signed integer sample of the given bit depth to [-1, 1)
func scaleSample(sample int32, bitDepth int) float32 {
	if bitDepth <= 0 {
		return 0
	}
	return float32(float64(sample) / float64(int64(1)<<(bitDepth-1)))
}

func (s *FLACSource) SampleRate() int { return s.sampleRate }
func (s *FLACSource) Channels() int   { return s.channels }
func (s *FLACSource) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *FLACSource) Close() error {
	return s.file.Close()
}
