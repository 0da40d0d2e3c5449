package audio

import "fmt"

// MonoMixer folds a multi-channel Source down to mono by averaging. The
// level meter uses it so RMS windows measure the mono mix, matching how a
// loudness meter hears the output rather than any single speaker.
type MonoMixer struct {
	src Source
	tmp []float32
}

func NewMonoMixer(src Source) *MonoMixer {
	return &MonoMixer{
		src: src,
		tmp: make([]float32, 4096),
	}
}

func (m *MonoMixer) SampleRate() int { return m.src.SampleRate() }
func (m *MonoMixer) Channels() int   { return 1 }

func (m *MonoMixer) Close() error {
	err := m.src.Close()
	if err != nil {
		return fmt.Errorf("%w", err)
	}

	return nil
}

// SeekFrame forwards to the wrapped source when it supports seeking.
func (m *MonoMixer) SeekFrame(frame int64) error {
	s, ok := m.src.(Seeker)
	if !ok {
		return ErrNotSeekable
	}
	return s.SeekFrame(frame)
}

// ReadSamples fills dst with mono frames; len(dst) is the frame count.
func (m *MonoMixer) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if m.src.Channels() == 1 {
		// Pass-through: read mono directly
		return m.src.ReadSamples(dst)
	}

	channels := m.src.Channels()
	samplesNeeded := len(dst) * channels

	// Grow tmp buffer if needed (but don't shrink to avoid thrashing)
	if cap(m.tmp) < samplesNeeded {
		m.tmp = make([]float32, samplesNeeded)
	}
	m.tmp = m.tmp[:samplesNeeded]

	n, err := m.src.ReadSamples(m.tmp)
	if n == 0 {
		return 0, err
	}
	frames := n / channels

	invChannels := float32(1.0) / float32(channels)

	switch channels {
	case 2: // Stereo (most common)
		for f := range frames {
			idx := f << 1
			dst[f] = (m.tmp[idx] + m.tmp[idx+1]) * 0.5
		}
	default: // Generic path
		for f := range frames {
			sum := float32(0)
			baseIdx := f * channels
			for c := range channels {
				sum += m.tmp[baseIdx+c]
			}
			dst[f] = sum * invChannels
		}
	}

	return frames, err
}
