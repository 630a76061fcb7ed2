// ABOUTME: Level metering and waveform reduction for scope display
// ABOUTME: Computes peak/RMS and per-column envelopes from snapshot windows
package scope

import (
	"math"
	"strings"
)

// Unicode block elements for column height (9 levels including space)
var waveBlocks = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// Levels holds the meter readings for one window
type Levels struct {
	Peak float64
	RMS  float64
}

// Analyze computes peak and RMS of samples
func Analyze(samples []float32) Levels {
	if len(samples) == 0 {
		return Levels{}
	}

	var peak, sum float64
	for _, s := range samples {
		v := math.Abs(float64(s))
		if v > peak {
			peak = v
		}
		sum += float64(s) * float64(s)
	}
	return Levels{Peak: peak, RMS: math.Sqrt(sum / float64(len(samples)))}
}

// DBFS converts a linear level to decibels relative to full scale
func DBFS(level float64) float64 {
	if level <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(level)
}

// Envelope reduces samples to len(dst) columns, each the peak magnitude of
// its span, clamped to [0, 1]. It returns dst.
func Envelope(dst []float64, samples []float32) []float64 {
	clear(dst)
	if len(dst) == 0 || len(samples) == 0 {
		return dst
	}

	for i, s := range samples {
		col := i * len(dst) / len(samples)
		v := math.Abs(float64(s))
		if v > dst[col] {
			dst[col] = v
		}
	}
	for i := range dst {
		dst[i] = min(1, dst[i])
	}
	return dst
}

// RenderWave draws an envelope as rows of block characters, top row first
func RenderWave(env []float64, rows int) []string {
	if rows <= 0 {
		return nil
	}

	levels := len(waveBlocks) - 1
	lines := make([]string, rows)
	var b strings.Builder
	for r := 0; r < rows; r++ {
		b.Reset()
		// Height of this row's floor, in eighths
		floor := (rows - 1 - r) * levels
		for _, v := range env {
			h := int(math.Round(v*float64(rows*levels))) - floor
			switch {
			case h <= 0:
				b.WriteString(waveBlocks[0])
			case h >= levels:
				b.WriteString(waveBlocks[levels])
			default:
				b.WriteString(waveBlocks[h])
			}
		}
		lines[r] = b.String()
	}
	return lines
}

// renderBar draws a horizontal meter of width cells for a value in [0, 1]
func renderBar(value float64, width int) string {
	value = max(0, min(1, value))
	filled := int(math.Round(value * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
