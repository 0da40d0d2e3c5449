// SPDX-License-Identifier: EPL-2.0

package fx

import "sync"

// DefaultPitchWindow is the pitch shifter's processing window and therefore
// its inherent latency in frames.
const DefaultPitchWindow = 8192

// PitchShifter shifts pitch without changing duration using a modulated
// delay line with crossfaded tap wrapping. Output always lags input by
// exactly the window size, at every ratio; the mixer compensates by
// delaying streams that bypass the shifter.
//
// Ratio 1.0 is bit-exact passthrough (through the delay). Re-applying
// ratio 1.0 snaps the read tap back to its nominal position, discarding
// any drift accumulated by earlier bends.
type PitchShifter struct {
	mu sync.Mutex

	window   int
	channels int
	ratio    float64

	ring [][]float32 // per channel
	size int
	wpos int // next write index

	off     float64 // read tap distance behind the write head, frames
	fadeOff float64 // outgoing tap during a crossfade
	fadeRem int     // crossfade frames remaining, 0 when not fading
	fadeLen int
}

// NewPitchShifter creates a shifter for the given channel count. A window
// of 0 selects DefaultPitchWindow.
func NewPitchShifter(channels, window int) *PitchShifter {
	if window <= 0 {
		window = DefaultPitchWindow
	}
	if channels < 1 {
		channels = 1
	}

	fadeLen := window / 16
	if fadeLen < 32 {
		fadeLen = 32
	}

	s := &PitchShifter{
		window:   window,
		channels: channels,
		ratio:    1.0,
		size:     window * 3,
		off:      float64(window),
		fadeLen:  fadeLen,
	}
	s.ring = make([][]float32, channels)
	for c := range s.ring {
		s.ring[c] = make([]float32, s.size)
	}
	return s
}

// Latency is the fixed input-to-output delay in frames.
func (s *PitchShifter) Latency() int { return s.window }

// Ratio returns the current frequency ratio.
func (s *PitchShifter) Ratio() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ratio
}

// SetRatio sets the frequency ratio (2 = up an octave). Non-positive
// ratios are ignored. Setting exactly 1.0 also re-centers the read tap,
// so a settled whammy cannot leave the stream drifted against its peers.
func (s *PitchShifter) SetRatio(ratio float64) {
	if ratio <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ratio = ratio
	if ratio == 1.0 {
		s.off = float64(s.window)
		s.fadeRem = 0
	}
}

// Reset clears the delay line and re-centers the tap.
func (s *PitchShifter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.ring {
		for i := range s.ring[c] {
			s.ring[c][i] = 0
		}
	}
	s.wpos = 0
	s.off = float64(s.window)
	s.fadeRem = 0
}

// tap reads the ring of channel c at off frames behind the frame most
// recently written, with linear interpolation.
func (s *PitchShifter) tap(c int, off float64) float32 {
	pos := float64(s.wpos-1) - off
	i0 := int(pos)
	frac := float32(pos - float64(i0))
	if pos < 0 {
		// Go's integer truncation rounds toward zero; floor instead.
		i0 = int(pos) - 1
		frac = float32(pos - float64(i0))
	}

	i0 = ((i0 % s.size) + s.size) % s.size
	i1 := i0 + 1
	if i1 == s.size {
		i1 = 0
	}

	ring := s.ring[c]
	return ring[i0]*(1-frac) + ring[i1]*frac
}

func (s *PitchShifter) Process(buf []float32, channels int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if channels != s.channels {
		return
	}

	frames := len(buf) / channels
	minOff := float64(s.fadeLen + 4)
	maxOff := float64(2 * s.window)
	drift := 1.0 - s.ratio

	for f := 0; f < frames; f++ {
		frame := buf[f*channels : (f+1)*channels]

		for c := 0; c < channels; c++ {
			s.ring[c][s.wpos] = frame[c]
		}
		s.wpos++
		if s.wpos == s.size {
			s.wpos = 0
		}

		fadeIn := float32(1)
		if s.fadeRem > 0 {
			fadeIn = float32(s.fadeLen-s.fadeRem) / float32(s.fadeLen)
		}

		for c := 0; c < channels; c++ {
			v := s.tap(c, s.off)
			if s.fadeRem > 0 {
				u := s.tap(c, s.fadeOff)
				v = v*fadeIn + u*(1-fadeIn)
			}
			frame[c] = v
		}

		s.off += drift
		if s.fadeRem > 0 {
			s.fadeOff += drift
			s.fadeRem--
		} else if s.off < minOff {
			s.fadeOff = s.off
			s.off += float64(s.window)
			s.fadeRem = s.fadeLen
		} else if s.off > maxOff {
			s.fadeOff = s.off
			s.off -= float64(s.window)
			s.fadeRem = s.fadeLen
		}
	}
}
