// SPDX-License-Identifier: EPL-2.0

package fx

// Schroeder reverberator tunings at 44.1kHz, scaled for other rates.
// Right channel taps are offset to decorrelate the stereo image.
var (
	combTunings    = [4]int{1116, 1188, 1277, 1356}
	allpassTunings = [2]int{556, 441}
)

const (
	combFeedback    = 0.84
	combDamp        = 0.2
	allpassFeedback = 0.5
	stereoSpread    = 23
)

// Reverb is a Schroeder comb/allpass reverberator. Mix controls how much
// reverberated signal replaces the dry input; the overall wet loudness is
// the owning stream's volume attribute, not a reverb parameter.
type Reverb struct {
	Mix float32

	combs     [][]comb    // per channel
	allpasses [][]allpass // per channel
}

type comb struct {
	buf  []float32
	idx  int
	filt float32 // damping lowpass state
}

type allpass struct {
	buf []float32
	idx int
}

func NewReverb(sampleRate, channels int) *Reverb {
	if channels < 1 {
		channels = 1
	}
	scale := float64(sampleRate) / 44100.0

	r := &Reverb{
		Mix:       0.6,
		combs:     make([][]comb, channels),
		allpasses: make([][]allpass, channels),
	}
	for c := 0; c < channels; c++ {
		spread := c * stereoSpread
		r.combs[c] = make([]comb, len(combTunings))
		for i, n := range combTunings {
			r.combs[c][i].buf = make([]float32, int(float64(n+spread)*scale))
		}
		r.allpasses[c] = make([]allpass, len(allpassTunings))
		for i, n := range allpassTunings {
			r.allpasses[c][i].buf = make([]float32, int(float64(n+spread)*scale))
		}
	}
	return r
}

func (r *Reverb) Reset() {
	for c := range r.combs {
		for i := range r.combs[c] {
			cb := &r.combs[c][i]
			for j := range cb.buf {
				cb.buf[j] = 0
			}
			cb.idx = 0
			cb.filt = 0
		}
		for i := range r.allpasses[c] {
			ap := &r.allpasses[c][i]
			for j := range ap.buf {
				ap.buf[j] = 0
			}
			ap.idx = 0
		}
	}
}

func (r *Reverb) Process(buf []float32, channels int) {
	if channels > len(r.combs) {
		channels = len(r.combs)
	}

	frames := len(buf) / channels
	for c := 0; c < channels; c++ {
		combs := r.combs[c]
		allpasses := r.allpasses[c]

		for f := 0; f < frames; f++ {
			in := buf[f*channels+c]

			var wet float32
			for i := range combs {
				cb := &combs[i]
				out := cb.buf[cb.idx]
				cb.filt = out*(1-combDamp) + cb.filt*combDamp
				cb.buf[cb.idx] = in + cb.filt*combFeedback
				cb.idx++
				if cb.idx == len(cb.buf) {
					cb.idx = 0
				}
				wet += out
			}
			wet *= 0.25

			for i := range allpasses {
				ap := &allpasses[i]
				delayed := ap.buf[ap.idx]
				ap.buf[ap.idx] = wet + delayed*allpassFeedback
				ap.idx++
				if ap.idx == len(ap.buf) {
					ap.idx = 0
				}
				wet = delayed - wet*allpassFeedback
			}

			buf[f*channels+c] = in*(1-r.Mix) + wet*r.Mix
		}
	}
}
