// SPDX-License-Identifier: EPL-2.0

package fx

import "math"

// CompressorParams configures a downward compressor. All level fields are
// in dB, the time constants in seconds.
type CompressorParams struct {
	Gain      float64 // makeup gain
	Threshold float64
	Attack    float64
	Release   float64
	Ratio     float64
}

// BustedCompressorParams flattens the dynamic range completely: everything
// above silence is squashed to one level, then pushed hard. Used on the
// busted (miss-effect) stream so the detuned note is always audible.
var BustedCompressorParams = CompressorParams{
	Gain:      60,
	Threshold: -100,
	Attack:    0.0001,
	Release:   0.5,
	Ratio:     100,
}

// Compressor is a feed-forward peak compressor with a shared envelope
// across channels, so the stereo image does not wander under gain riding.
type Compressor struct {
	params CompressorParams

	attackCoef  float64
	releaseCoef float64
	makeup      float64 // linear

	env float64 // linear peak envelope
}

func NewCompressor(params CompressorParams, sampleRate, channels int) *Compressor {
	_ = channels // envelope is shared across channels

	return &Compressor{
		params:      params,
		attackCoef:  timeCoef(params.Attack, sampleRate),
		releaseCoef: timeCoef(params.Release, sampleRate),
		makeup:      math.Pow(10, params.Gain/20),
	}
}

// timeCoef converts a time constant to a one-pole smoothing coefficient.
func timeCoef(seconds float64, sampleRate int) float64 {
	if seconds <= 0 {
		return 0
	}
	return math.Exp(-1 / (seconds * float64(sampleRate)))
}

func (c *Compressor) Reset() {
	c.env = 0
}

func (c *Compressor) Process(buf []float32, channels int) {
	frames := len(buf) / channels

	for f := 0; f < frames; f++ {
		frame := buf[f*channels : (f+1)*channels]

		var peak float64
		for _, s := range frame {
			if v := math.Abs(float64(s)); v > peak {
				peak = v
			}
		}

		if peak > c.env {
			c.env = peak + c.attackCoef*(c.env-peak)
		} else {
			c.env = peak + c.releaseCoef*(c.env-peak)
		}

		gain := c.makeup
		if c.env > 1e-10 {
			envDB := 20 * math.Log10(c.env)
			if over := envDB - c.params.Threshold; over > 0 {
				reduction := over * (1 - 1/c.params.Ratio)
				gain *= math.Pow(10, -reduction/20)
			}
		}

		for i := range frame {
			v := float64(frame[i]) * gain
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			frame[i] = float32(v)
		}
	}
}

// PeakLeveler rides gain per buffer toward a target peak, the second half
// of the busted stream's loudness treatment: the compressor flattens,
// the leveler then brings the flat signal to a constant presence.
type PeakLeveler struct {
	Target  float64
	MaxGain float64

	gain float64
}

func NewPeakLeveler() *PeakLeveler {
	return &PeakLeveler{
		Target:  0.5,
		MaxGain: 15,
		gain:    1,
	}
}

func (p *PeakLeveler) Reset() {
	p.gain = 1
}

func (p *PeakLeveler) Process(buf []float32, channels int) {
	var peak float64
	for _, s := range buf {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}

	if peak > 1e-6 {
		want := p.Target / peak
		if want > p.MaxGain {
			want = p.MaxGain
		}
		// Smooth across buffers so gain changes do not pump audibly.
		p.gain += (want - p.gain) * 0.1
	}

	g := float32(p.gain)
	for i, s := range buf {
		v := s * g
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		buf[i] = v
	}
}
