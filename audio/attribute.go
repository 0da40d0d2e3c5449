// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"sync"
	"time"
)

// Attribute is a channel scalar (volume, send level) that moves toward its
// target with a linear per-frame ramp instead of stepping, so attribute
// writes never produce audible clicks. A slide with zero duration sets the
// value immediately and cancels any slide in progress.
type Attribute struct {
	mu sync.Mutex

	value  float64
	target float64
	step   float64 // per-frame increment while sliding, 0 when settled
}

func NewAttribute(value float64) *Attribute {
	return &Attribute{value: value, target: value}
}

// Value returns the current (possibly mid-slide) value.
func (a *Attribute) Value() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.value
}

// Target returns the value the attribute is sliding toward.
func (a *Attribute) Target() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.target
}

// Sliding reports whether a ramp is still in progress.
func (a *Attribute) Sliding() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.step != 0
}

// Set assigns the value immediately, cancelling any slide in progress.
func (a *Attribute) Set(value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.value = value
	a.target = value
	a.step = 0
}

// Slide ramps the value to target over the given wall-clock duration at
// sampleRate frames per second. A non-positive duration behaves like Set.
func (a *Attribute) Slide(target float64, duration time.Duration, sampleRate int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	frames := float64(duration.Seconds()) * float64(sampleRate)
	if frames < 1 {
		a.value = target
		a.target = target
		a.step = 0
		return
	}

	a.target = target
	a.step = (target - a.value) / frames
}

// Advance consumes frames of ramp time and returns the value at the start
// of the block plus the per-frame increment to apply across it. Render
// loops call this once per block and interpolate locally, keeping the lock
// off the per-sample path.
func (a *Attribute) Advance(frames int) (start, step float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start = a.value
	step = a.step
	if step == 0 {
		return start, 0
	}

	a.value += step * float64(frames)
	if (step > 0 && a.value >= a.target) || (step < 0 && a.value <= a.target) {
		a.value = a.target
		a.step = 0
	}

	return start, step
}
