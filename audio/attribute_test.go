// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"math"
	"testing"
	"time"
)

func TestAttribute_SetImmediate(t *testing.T) {
	t.Parallel()

	a := NewAttribute(0.3)

	if a.Value() != 0.3 {
		t.Errorf("Value() = %v, want 0.3", a.Value())
	}

	a.Set(0.8)

	if a.Value() != 0.8 {
		t.Errorf("Value() after Set = %v, want 0.8", a.Value())
	}
	if a.Sliding() {
		t.Error("Sliding() = true after Set, want false")
	}
}

func TestAttribute_SetCancelsSlide(t *testing.T) {
	t.Parallel()

	a := NewAttribute(0.0)
	a.Slide(1.0, time.Second, 1000)

	if !a.Sliding() {
		t.Fatal("Sliding() = false after Slide, want true")
	}

	a.Set(0.5)

	if a.Sliding() {
		t.Error("Sliding() = true after Set, want false")
	}
	if a.Value() != 0.5 {
		t.Errorf("Value() = %v, want 0.5", a.Value())
	}
	if a.Target() != 0.5 {
		t.Errorf("Target() = %v, want 0.5", a.Target())
	}
}

func TestAttribute_ZeroDurationSlideActsLikeSet(t *testing.T) {
	t.Parallel()

	a := NewAttribute(0.2)
	a.Slide(0.9, 0, 44100)

	if a.Value() != 0.9 {
		t.Errorf("Value() = %v, want 0.9", a.Value())
	}
	if a.Sliding() {
		t.Error("Sliding() = true, want false")
	}
}

func TestAttribute_SlideReachesTargetExactly(t *testing.T) {
	t.Parallel()

	// 1000 frames of ramp from 0 to 1
	a := NewAttribute(0.0)
	a.Slide(1.0, time.Second, 1000)

	// Advance in uneven block sizes; the ramp must settle exactly on
	// target and never overshoot.
	for _, frames := range []int{100, 250, 33, 617, 512} {
		start, step := a.Advance(frames)
		end := start + step*float64(frames)
		if end > 1.0+1e-9 {
			t.Errorf("block end = %v, overshoots target 1.0", end)
		}
	}

	if a.Value() != 1.0 {
		t.Errorf("Value() = %v, want exactly 1.0", a.Value())
	}
	if a.Sliding() {
		t.Error("Sliding() = true after ramp complete, want false")
	}
}

func TestAttribute_SlideDownward(t *testing.T) {
	t.Parallel()

	a := NewAttribute(1.0)
	a.Slide(0.0, 100*time.Millisecond, 44100)

	start, step := a.Advance(2205) // half the ramp
	if step >= 0 {
		t.Fatalf("step = %v, want negative", step)
	}
	if start != 1.0 {
		t.Errorf("start = %v, want 1.0", start)
	}

	mid := a.Value()
	if math.Abs(mid-0.5) > 0.01 {
		t.Errorf("Value() at half ramp = %v, want ≈0.5", mid)
	}

	a.Advance(1 << 20) // way past the end
	if a.Value() != 0.0 {
		t.Errorf("Value() = %v, want exactly 0.0", a.Value())
	}
}

func TestAttribute_AdvanceSettled(t *testing.T) {
	t.Parallel()

	a := NewAttribute(0.7)

	start, step := a.Advance(4096)
	if start != 0.7 || step != 0 {
		t.Errorf("Advance() = (%v, %v), want (0.7, 0)", start, step)
	}
	if a.Value() != 0.7 {
		t.Errorf("Value() = %v, want 0.7", a.Value())
	}
}

func TestAttribute_RetargetMidSlide(t *testing.T) {
	t.Parallel()

	a := NewAttribute(0.0)
	a.Slide(1.0, time.Second, 1000)
	a.Advance(500)

	// Redirect the ramp from its current value
	a.Slide(0.0, time.Second, 1000)

	if a.Target() != 0.0 {
		t.Errorf("Target() = %v, want 0.0", a.Target())
	}

	_, step := a.Advance(100)
	if step >= 0 {
		t.Errorf("step = %v, want negative after retarget", step)
	}
}

func BenchmarkAttribute_Advance(b *testing.B) {
	a := NewAttribute(0.0)
	a.Slide(1.0, time.Hour, 44100)

	b.ReportAllocs()

	for b.Loop() {
		a.Advance(512)
	}
}
