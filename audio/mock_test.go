package audio

import (
	"io"
	"math"
)

// mockSource is a test helper that generates audio data for testing.
// It implements the Source interface plus the seek, position and length
// extensions, and can generate various waveforms.
type mockSource struct {
	sampleRate  int
	channels    int
	totalFrames int // Total frames to generate
	generated   int // Frames generated so far
	waveform    func(frame int, channel int) float32
}

// newMockSource creates a new mock audio source.
// totalFrames is the total number of frames to generate.
// waveform is a function that generates sample values given frame index and channel.
func newMockSource(sampleRate, channels, totalFrames int, waveform func(frame int, channel int) float32) *mockSource {
	return &mockSource{
		sampleRate:  sampleRate,
		channels:    channels,
		totalFrames: totalFrames,
		generated:   0,
		waveform:    waveform,
	}
}

// newSilentSource creates a mock source that generates silence (all zeros).
func newSilentSource(sampleRate, channels, totalFrames int) *mockSource {
	return newMockSource(sampleRate, channels, totalFrames, func(frame int, channel int) float32 {
		return 0.0
	})
}

// newSineSource creates a mock source that generates a sine wave.
func newSineSource(sampleRate, channels, totalFrames int, frequency float64) *mockSource {
	return newMockSource(sampleRate, channels, totalFrames, func(frame int, channel int) float32 {
		t := float64(frame) / float64(sampleRate)
		return float32(math.Sin(2 * math.Pi * frequency * t))
	})
}

// newConstantSource creates a mock source with constant value.
func newConstantSource(sampleRate, channels, totalFrames int, value float32) *mockSource {
	return newMockSource(sampleRate, channels, totalFrames, func(frame int, channel int) float32 {
		return value
	})
}

// newRampSource creates a mock source whose value is the frame index scaled
// by step, which makes seek positions visible in the sample values.
func newRampSource(sampleRate, channels, totalFrames int, step float32) *mockSource {
	return newMockSource(sampleRate, channels, totalFrames, func(frame int, channel int) float32 {
		return float32(frame) * step
	})
}

func (m *mockSource) SampleRate() int { return m.sampleRate }
func (m *mockSource) Channels() int   { return m.channels }
func (m *mockSource) Close() error    { return nil }

func (m *mockSource) TotalFrames() int64  { return int64(m.totalFrames) }
func (m *mockSource) CurrentFrame() int64 { return int64(m.generated) }

func (m *mockSource) SeekFrame(frame int64) error {
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
func (m *mockSource) Reset() {
	m.generated = 0
}

func (m *mockSource) ReadSamples(dst []float32) (int, error) {
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

// unseekableSource hides the seek methods of a wrapped source.
type unseekableSource struct {
	src Source
}

func (u *unseekableSource) SampleRate() int                    { return u.src.SampleRate() }
func (u *unseekableSource) Channels() int                      { return u.src.Channels() }
func (u *unseekableSource) ReadSamples(dst []float32) (int, error) { return u.src.ReadSamples(dst) }
func (u *unseekableSource) Close() error                       { return u.src.Close() }
