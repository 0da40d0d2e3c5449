// SPDX-License-Identifier: EPL-2.0

package audiotest

import (
	"io"
	"math"
)

// MockSource is a test helper that generates audio data for testing.
// It implements the audio.Source interface (without importing it to avoid cycles),
// including the seek, position and length extensions.
type MockSource struct {
	sampleRate  int
	channels    int
	totalFrames int // Total frames to generate
	generated   int // Frames generated so far
	waveform    func(frame int, channel int) float32
}

// NewMockSource creates a new mock audio source.
// totalFrames is the total number of frames to generate.
// waveform is a function that generates sample values given frame index and channel.
func NewMockSource(sampleRate, channels, totalFrames int, waveform func(frame int, channel int) float32) *MockSource {
	return &MockSource{
		sampleRate:  sampleRate,
		channels:    channels,
		totalFrames: totalFrames,
		generated:   0,
		waveform:    waveform,
	}
}

// NewSilentSource creates a mock source that generates silence (all zeros).
func NewSilentSource(sampleRate, channels, totalFrames int) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(frame int, channel int) float32 {
		return 0.0
	})
}

// NewSineSource creates a mock source that generates a sine wave.
func NewSineSource(sampleRate, channels, totalFrames int, frequency float64) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(frame int, channel int) float32 {
		t := float64(frame) / float64(sampleRate)
		return float32(math.Sin(2 * math.Pi * frequency * t))
	})
}

// NewConstantSource creates a mock source with constant value.
func NewConstantSource(sampleRate, channels, totalFrames int, value float32) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(frame int, channel int) float32 {
		return value
	})
}

// NewRampSource creates a mock source whose value is the frame index scaled
// by step. Useful for verifying seek positions sample-exactly.
func NewRampSource(sampleRate, channels, totalFrames int, step float32) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(frame int, channel int) float32 {
		return float32(frame) * step
	})
}

func (m *MockSource) SampleRate() int { return m.sampleRate }
func (m *MockSource) Channels() int   { return m.channels }
func (m *MockSource) Close() error    { return nil }

// TotalFrames reports the configured stream length.
func (m *MockSource) TotalFrames() int64 { return int64(m.totalFrames) }

// CurrentFrame reports the next frame to be generated.
func (m *MockSource) CurrentFrame() int64 { return int64(m.generated) }

// SeekFrame moves the generation cursor, clamped to the stream bounds.
func (m *MockSource) SeekFrame(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	if frame > int64(m.totalFrames) {
		frame = int64(m.totalFrames)
	}
	m.generated = int(frame)
	return nil
}

// Reset resets the generated frame counter to allow re-reading
func (m *MockSource) Reset() {
	m.generated = 0
}

func (m *MockSource) ReadSamples(dst []float32) (int, error) {
	if m.generated >= m.totalFrames {
		return 0, io.EOF
	}

	// Calculate how many frames we can write
	framesRequested := len(dst) / m.channels
	framesAvailable := m.totalFrames - m.generated
	framesToWrite := framesRequested
	if framesToWrite > framesAvailable {
		framesToWrite = framesAvailable
	}

	// Generate samples
	for frame := range framesToWrite {
		frameIndex := m.generated + frame
		for ch := range m.channels {
			dst[frame*m.channels+ch] = m.waveform(frameIndex, ch)
		}
	}

	m.generated += framesToWrite
	samplesWritten := framesToWrite * m.channels

	if m.generated >= m.totalFrames {
		return samplesWritten, io.EOF
	}

	return samplesWritten, nil
}
