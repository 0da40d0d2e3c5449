// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/ik5/stemmix/utils"
)

// Resampler streams from src to a target sample rate using cubic
// interpolation. Works on interleaved samples; preserves channel count.
// Includes basic anti-aliasing filtering when downsampling.
//
// The conversion ratio can additionally be scaled at runtime with SetRate,
// which is how the master tempo stage implements speed changes: a rate of
// 1.25 consumes source frames 25% faster than real time.
type Resampler struct {
	src      Source
	srcRate  float64
	dstRate  float64
	channels int

	// rate is the runtime speed multiplier stacked on top of the
	// srcRate/dstRate conversion. Written by the control goroutine,
	// read by the render path.
	rateMu sync.Mutex
	rate   float64

	// Ring buffer holding 4 frames for cubic interpolation
	// frames[0] = t-1, frames[1] = t0, frames[2] = t+1, frames[3] = t+2
	frames   [4][]float32
	hasFrame [4]bool
	primed   bool

	// Position within the current output stream (in source samples)
	pos float64

	srcBuf []float32
	eof    bool

	// Simple low-pass filter state for anti-aliasing (when downsampling)
	filterState []float32
	useFilter   bool
	filterAlpha float32
}

func NewResampler(src Source, dstRate int) *Resampler {
	channels := src.Channels()
	baseRatio := float64(src.SampleRate()) / float64(dstRate)

	// Enable simple low-pass filter when downsampling
	useFilter := baseRatio > 1.0
	var filterAlpha float32
	if useFilter {
		// One-pole low-pass, cutoff near the destination Nyquist
		filterAlpha = 0.5
	}

	r := &Resampler{
		src:         src,
		srcRate:     float64(src.SampleRate()),
		dstRate:     float64(dstRate),
		rate:        1.0,
		channels:    channels,
		srcBuf:      make([]float32, 4096),
		useFilter:   useFilter,
		filterAlpha: filterAlpha,
		filterState: make([]float32, channels),
	}

	for i := range r.frames {
		r.frames[i] = make([]float32, channels)
	}

	return r
}

func (r *Resampler) SampleRate() int { return int(r.dstRate) }
func (r *Resampler) Channels() int   { return r.channels }

// SetRate scales playback speed relative to real time. Values are expected
// to already be clamped by the caller.
func (r *Resampler) SetRate(rate float64) {
	r.rateMu.Lock()
	defer r.rateMu.Unlock()

	if rate > 0 {
		r.rate = rate
	}
}

// Rate returns the current speed multiplier.
func (r *Resampler) Rate() float64 {
	r.rateMu.Lock()
	defer r.rateMu.Unlock()

	return r.rate
}

// ratio is source frames consumed per output frame.
func (r *Resampler) ratio() float64 {
	return r.srcRate / r.dstRate * r.Rate()
}

func (r *Resampler) Close() error {
	err := r.src.Close()
	if err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// SeekFrame seeks the underlying source to the equivalent source frame and
// discards interpolation state.
func (r *Resampler) SeekFrame(frame int64) error {
	s, ok := r.src.(Seeker)
	if !ok {
		return ErrNotSeekable
	}

	srcFrame := int64(math.Round(float64(frame) * r.srcRate / r.dstRate))
	if err := s.SeekFrame(srcFrame); err != nil {
		return fmt.Errorf("%w", err)
	}

	r.pos = 0
	r.eof = false
	r.primed = false
	for i := range r.hasFrame {
		r.hasFrame[i] = false
	}
	for i := range r.filterState {
		r.filterState[i] = 0
	}
	return nil
}

// fetchNextFrame reads the next frame from source and shifts the frame buffer
func (r *Resampler) fetchNextFrame() error {
	if r.eof {
		return io.EOF
	}

	// Shift frames: [0,1,2,3] -> [1,2,3,?]
	copy(r.frames[0], r.frames[1])
	copy(r.frames[1], r.frames[2])
	copy(r.frames[2], r.frames[3])
	r.hasFrame[0] = r.hasFrame[1]
	r.hasFrame[1] = r.hasFrame[2]
	r.hasFrame[2] = r.hasFrame[3]

	n, err := r.src.ReadSamples(r.srcBuf[:r.channels])
	if n > 0 {
		copy(r.frames[3], r.srcBuf[:n])
		r.hasFrame[3] = true

		if r.useFilter {
			for c := 0; c < r.channels; c++ {
				r.frames[3][c] = r.filterAlpha*r.frames[3][c] + (1-r.filterAlpha)*r.filterState[c]
				r.filterState[c] = r.frames[3][c]
			}
		}
	} else {
		r.hasFrame[3] = false
	}

	if err == io.EOF {
		r.eof = true
		if !r.hasFrame[3] {
			return io.EOF
		}
	} else if err != nil {
		return fmt.Errorf("%w", err)
	}

	return nil
}

func (r *Resampler) prime() error {
	// A failed prime (source momentarily empty) may be retried later.
	r.eof = false

	for i := 0; i < 4; i++ {
		n, err := r.src.ReadSamples(r.srcBuf[:r.channels])
		if n > 0 {
			copy(r.frames[i], r.srcBuf[:n])
			r.hasFrame[i] = true

			// Initialize filter state with first sample to avoid
			// warm-up transients
			if i == 0 && r.useFilter {
				copy(r.filterState, r.srcBuf[:n])
			}
		}
		if err == io.EOF {
			r.eof = true
			if i == 0 {
				return io.EOF
			}
			// Duplicate last valid frame for remaining slots
			for j := i; j < 4; j++ {
				copy(r.frames[j], r.frames[i-1])
				r.hasFrame[j] = true
			}
			break
		} else if err != nil {
			return fmt.Errorf("%w", err)
		}
	}
	r.primed = true
	return nil
}

// ReadSamples produces dst samples at the destination rate scaled by the
// current speed. dst length should be a multiple of Channels().
func (r *Resampler) ReadSamples(dst []float32) (int, error) {
	if len(dst)%r.channels != 0 {
		return 0, ErrInvalidDstSize
	}

	if !r.primed {
		if err := r.prime(); err != nil {
			return 0, err
		}
	}

	ratio := r.ratio()
	written := 0
	framesNeeded := len(dst) / r.channels

	for written < framesNeeded {
		// pos must land in [0, 1) between frames[1] and frames[2]
		for r.pos >= 1.0 {
			r.pos -= 1.0
			if err := r.fetchNextFrame(); err != nil {
				if err == io.EOF {
					if written == 0 {
						return 0, io.EOF
					}
					return written * r.channels, io.EOF
				}
				return written * r.channels, err
			}
		}

		if !r.hasFrame[1] || !r.hasFrame[2] {
			if written == 0 {
				return 0, io.EOF
			}
			return written * r.channels, io.EOF
		}

		alpha := float32(r.pos)

		for c := 0; c < r.channels; c++ {
			var y0, y1, y2, y3 float32

			// Use available frames, duplicate edge frames if needed
			if r.hasFrame[0] {
				y0 = r.frames[0][c]
			} else {
				y0 = r.frames[1][c]
			}

			y1 = r.frames[1][c]
			y2 = r.frames[2][c]

			if r.hasFrame[3] {
				y3 = r.frames[3][c]
			} else {
				y3 = r.frames[2][c]
			}

			dst[written*r.channels+c] = utils.CubicInterpolate(y0, y1, y2, y3, alpha)
		}

		written++
		r.pos += ratio
	}

	return written * r.channels, nil
}
