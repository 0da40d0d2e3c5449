// SPDX-License-Identifier: EPL-2.0

package fx

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ik5/stemmix/audio"
)

// Tempo is the master speed/pitch stage. It wraps a Source with a
// variable-rate resampler (which changes tempo and pitch together) and a
// pitch shifter that corrects pitch back, so tempo and pitch are
// independently controllable:
//
//	net speed = 1 + tempo/100
//	net pitch = pitch semitones (0 keeps original pitch at any speed)
//
// With the pitch attribute matched to the speed (chipmunk mode) the
// corrector becomes identity and is bypassed.
//
// Position is tracked in source frames consumed, so it reports song time
// regardless of the playback speed.
type Tempo struct {
	counter *frameCounter
	res     *audio.Resampler
	shift   *PitchShifter
	volume  *audio.Attribute

	mu    sync.Mutex
	speed float64 // linear speed multiplier
	semis float64 // pitch attribute, semitones
}

func NewTempo(src audio.Source) *Tempo {
	counter := &frameCounter{src: src, channels: src.Channels()}
	return &Tempo{
		counter: counter,
		res:     audio.NewResampler(counter, src.SampleRate()),
		shift:   NewPitchShifter(src.Channels(), DefaultPitchWindow),
		volume:  audio.NewAttribute(1.0),
		speed:   1.0,
	}
}

func (t *Tempo) SampleRate() int { return t.res.SampleRate() }
func (t *Tempo) Channels() int   { return t.counter.channels }

// Volume is the master output volume attribute.
func (t *Tempo) Volume() *audio.Attribute { return t.volume }

// SetTempoPercent sets the tempo change in percent; 0 is normal speed,
// 100 is double, -50 is half. The caller clamps the underlying speed.
func (t *Tempo) SetTempoPercent(percent float64) {
	t.mu.Lock()
	t.speed = 1 + percent/100
	t.retune()
	t.mu.Unlock()
}

// TempoPercent reports the current tempo change in percent.
func (t *Tempo) TempoPercent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return (t.speed - 1) * 100
}

// SetPitchSemitones sets the output pitch offset in semitones,
// independent of tempo.
func (t *Tempo) SetPitchSemitones(semis float64) {
	t.mu.Lock()
	t.semis = semis
	t.retune()
	t.mu.Unlock()
}

// PitchSemitones reports the current pitch offset.
func (t *Tempo) PitchSemitones() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.semis
}

// retune pushes speed and pitch into the resampler and corrector.
// Callers hold t.mu.
func (t *Tempo) retune() {
	t.res.SetRate(t.speed)

	// The resampler raised pitch by the speed factor; the shifter must
	// supply the remainder to land on the requested semitone offset.
	ratio := math.Exp2(t.semis/12) / t.speed
	if math.Abs(ratio-1) < 1e-9 {
		ratio = 1.0
	}
	t.shift.SetRatio(ratio)
}

// PositionFrames reports the source frame about to be consumed.
func (t *Tempo) PositionFrames() int64 {
	return t.counter.frames.Load()
}

// PositionSeconds reports song time at the source's own rate.
func (t *Tempo) PositionSeconds() float64 {
	return float64(t.PositionFrames()) / float64(t.counter.src.SampleRate())
}

// TotalFrames reports the source length when known, -1 otherwise.
func (t *Tempo) TotalFrames() int64 {
	if l, ok := t.counter.src.(audio.Lengther); ok {
		return l.TotalFrames()
	}
	return -1
}

// SeekFrame seeks the wrapped source to the given source frame and resets
// the corrector's delay line.
func (t *Tempo) SeekFrame(frame int64) error {
	if err := t.res.SeekFrame(frame); err != nil {
		return fmt.Errorf("%w", err)
	}
	t.shift.Reset()
	return nil
}

func (t *Tempo) ReadSamples(dst []float32) (int, error) {
	n, err := t.res.ReadSamples(dst)
	if n > 0 {
		if t.shift.Ratio() != 1.0 {
			t.shift.Process(dst[:n], t.counter.channels)
		}

		frames := n / t.counter.channels
		start, step := t.volume.Advance(frames)
		if start != 1.0 || step != 0 {
			for f := 0; f < frames; f++ {
				v := float32(start + step*float64(f))
				for c := 0; c < t.counter.channels; c++ {
					dst[f*t.counter.channels+c] *= v
				}
			}
		}
	}
	return n, err
}

func (t *Tempo) Close() error {
	if err := t.res.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// frameCounter counts source frames consumed so position survives speed
// changes on the output side.
type frameCounter struct {
	src      audio.Source
	channels int
	frames   atomic.Int64
}

func (f *frameCounter) SampleRate() int { return f.src.SampleRate() }
func (f *frameCounter) Channels() int   { return f.channels }
func (f *frameCounter) Close() error    { return f.src.Close() }

func (f *frameCounter) ReadSamples(dst []float32) (int, error) {
	n, err := f.src.ReadSamples(dst)
	if n > 0 {
		f.frames.Add(int64(n / f.channels))
	}
	return n, err
}

func (f *frameCounter) SeekFrame(frame int64) error {
	s, ok := f.src.(audio.Seeker)
	if !ok {
		return audio.ErrNotSeekable
	}
	if err := s.SeekFrame(frame); err != nil {
		return err
	}
	f.frames.Store(frame)
	return nil
}

func (f *frameCounter) CurrentFrame() int64 { return f.frames.Load() }
