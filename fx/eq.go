// SPDX-License-Identifier: EPL-2.0

package fx

import "math"

// EQParams describes one peaking EQ band.
type EQParams struct {
	Center    float64 // center frequency, Hz
	Bandwidth float64 // bandwidth, octaves
	Gain      float64 // boost/cut, dB
}

// Voicing presets for the reverb send: thin out the lows, push the body,
// tame the top so the wet stream sits behind the dry mix.
var (
	LowEqParams  = EQParams{Center: 250, Bandwidth: 1.0, Gain: -12}
	MidEqParams  = EQParams{Center: 1200, Bandwidth: 1.0, Gain: 3}
	HighEqParams = EQParams{Center: 8000, Bandwidth: 1.0, Gain: -9}
)

// EQ is a peaking biquad filter (RBJ cookbook) with independent state per
// channel.
type EQ struct {
	b0, b1, b2 float64
	a1, a2     float64

	state []biquadState
}

type biquadState struct {
	x1, x2 float64
	y1, y2 float64
}

func NewEQ(params EQParams, sampleRate, channels int) *EQ {
	if channels < 1 {
		channels = 1
	}

	a := math.Pow(10, params.Gain/40)
	w0 := 2 * math.Pi * params.Center / float64(sampleRate)
	sin := math.Sin(w0)
	cos := math.Cos(w0)
	alpha := sin * math.Sinh(math.Ln2/2*params.Bandwidth*w0/sin)

	b0 := 1 + alpha*a
	b1 := -2 * cos
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := -2 * cos
	a2 := 1 - alpha/a

	return &EQ{
		b0:    b0 / a0,
		b1:    b1 / a0,
		b2:    b2 / a0,
		a1:    a1 / a0,
		a2:    a2 / a0,
		state: make([]biquadState, channels),
	}
}

func (e *EQ) Reset() {
	for i := range e.state {
		e.state[i] = biquadState{}
	}
}

func (e *EQ) Process(buf []float32, channels int) {
	if channels > len(e.state) {
		channels = len(e.state)
	}

	frames := len(buf) / channels
	for c := 0; c < channels; c++ {
		st := &e.state[c]
		for f := 0; f < frames; f++ {
			x := float64(buf[f*channels+c])
			y := e.b0*x + e.b1*st.x1 + e.b2*st.x2 - e.a1*st.y1 - e.a2*st.y2
			st.x2, st.x1 = st.x1, x
			st.y2, st.y1 = st.y1, y
			buf[f*channels+c] = float32(y)
		}
	}
}
