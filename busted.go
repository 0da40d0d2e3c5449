// SPDX-License-Identifier: EPL-2.0

package stemmix

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ik5/stemmix/audio"
	"github.com/ik5/stemmix/fx"
)

// bustedAttack is how fast the busted volume ramps up on a trigger;
// effectively instant, but still a slide so it does not click.
const bustedAttack = 5 * time.Millisecond

// BustedConfig tunes one flavor of busted playback. The in-session stem
// channels and the standalone preview channel use different ranges and
// timings; the two sets are independent tunables, not one rule.
type BustedConfig struct {
	// MinSemitones..MaxSemitones is the inclusive random shift range.
	// Zero and the previously chosen shift are never selected.
	MinSemitones int
	MaxSemitones int

	// VolumeTarget is the level the busted stream jumps to on trigger.
	VolumeTarget float64

	// The hold before the fade starts is clamped to [MinHold, MaxHold].
	MinHold time.Duration
	MaxHold time.Duration

	// Fade is the slide-to-silence duration after the hold.
	Fade time.Duration
}

var (
	// StemBustedConfig drives the per-stem miss effect.
	StemBustedConfig = BustedConfig{
		MinSemitones: -6,
		MaxSemitones: 3,
		VolumeTarget: 1.5,
		MinHold:      250 * time.Millisecond,
		MaxHold:      250 * time.Millisecond,
		Fade:         450 * time.Millisecond,
	}

	// PreviewBustedConfig drives standalone busted-note previews, where
	// the hold follows the note length.
	PreviewBustedConfig = BustedConfig{
		MinSemitones: -2,
		MaxSemitones: 2,
		VolumeTarget: 1.0,
		MinHold:      500 * time.Millisecond,
		MaxHold:      2 * time.Second,
		Fade:         250 * time.Millisecond,
	}
)

// clampHold bounds the requested hold to the config's range.
func (c BustedConfig) clampHold(d time.Duration) time.Duration {
	if d < c.MinHold {
		return c.MinHold
	}
	if d > c.MaxHold {
		return c.MaxHold
	}
	return d
}

// BustedChannel is the degraded companion of a pitch-bendable stem: the
// same audio run through a random pitch shift, a crushing compressor and
// a peak leveler, silent until a missed note triggers it.
type BustedChannel struct {
	cfg BustedConfig

	graph   *audio.Graph
	graphCh *audio.GraphChannel
	chain   *fx.Chain
	pitch   *fx.PitchShifter

	sampleRate int
	rng        func(n int) int

	mu        sync.Mutex
	lastShift int
}

// NewBustedChannel inserts a busted stream for src into the graph, routed
// like its owning stem but muted until triggered.
func NewBustedChannel(g *audio.Graph, src audio.Source, info StemInfo, cfg BustedConfig, window int) (*BustedChannel, error) {
	chain := fx.NewChain(src)
	pitch := fx.NewPitchShifter(src.Channels(), window)
	chain.Push(pitch)
	chain.Push(fx.NewCompressor(fx.BustedCompressorParams, g.SampleRate(), src.Channels()))
	chain.Push(fx.NewPeakLeveler())

	ch, err := g.AddChannel(chain, audio.ChannelConfig{
		Indices: info.Indices,
		Matrix:  info.matrix(),
	})
	if err != nil {
		return nil, fmt.Errorf("busted %s: %w", info.Stem, err)
	}
	ch.Volume().Set(0)

	return &BustedChannel{
		cfg:        cfg,
		graph:      g,
		graphCh:    ch,
		chain:      chain,
		pitch:      pitch,
		sampleRate: g.SampleRate(),
		rng:        rand.IntN,
	}, nil
}

// pickShift draws the next random semitone shift: never zero, never the
// previous draw. Callers hold b.mu.
func (b *BustedChannel) pickShift() int {
	span := b.cfg.MaxSemitones - b.cfg.MinSemitones + 1
	for {
		s := b.cfg.MinSemitones + b.rng(span)
		if s == 0 || s == b.lastShift {
			continue
		}
		b.lastShift = s
		return s
	}
}

// LastShift reports the most recently applied semitone shift, 0 before
// the first trigger.
func (b *BustedChannel) LastShift() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.lastShift
}

// Play triggers busted playback: a fresh random pitch, a near-instant
// volume jump, and a scheduled fade back to silence after the hold.
// Overlapping triggers each schedule their own fade; since every fade
// targets silence, last-write-wins on the volume is fine.
func (b *BustedChannel) Play(hold time.Duration) {
	b.mu.Lock()
	shift := b.pickShift()
	b.mu.Unlock()

	hold = b.cfg.clampHold(hold)

	b.pitch.SetRatio(math.Exp2(float64(shift) / 12))
	b.graphCh.Volume().Slide(b.cfg.VolumeTarget, bustedAttack, b.sampleRate)

	time.AfterFunc(hold, func() {
		b.graphCh.Volume().Slide(0, b.cfg.Fade, b.sampleRate)
	})
}

// silence fades the busted stream out over the given duration.
func (b *BustedChannel) silence(d time.Duration) {
	b.graphCh.Volume().Slide(0, d, b.sampleRate)
}

// dispose detaches the busted stream and closes its source.
func (b *BustedChannel) dispose() error {
	b.graph.RemoveChannel(b.graphCh)
	if err := b.chain.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}
