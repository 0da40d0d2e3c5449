// SPDX-License-Identifier: EPL-2.0

package stemmix

import (
	"math"
	"sync"
	"time"
)

// Slide durations for per-stem attribute changes. Volumes always slide
// rather than step so control writes never click.
const (
	volumeSlide        = 25 * time.Millisecond
	bustedSilenceSlide = 50 * time.Millisecond
	reverbSlideIn      = 500 * time.Millisecond
	reverbSlideOut     = 1000 * time.Millisecond
)

// StemChannel is the control surface of one stem: volume, whammy pitch
// bend, reverb toggling and the busted miss effect. All audio plumbing
// lives in the owned ChannelPair and BustedChannel.
type StemChannel struct {
	stem       Stem
	pair       *ChannelPair
	busted     *BustedChannel // nil for non-bendable stems
	settings   *Settings
	sampleRate int

	mu            sync.Mutex
	volume        float64
	reverbActive  bool
	whammyPercent float64
}

func newStemChannel(stem Stem, pair *ChannelPair, busted *BustedChannel, s *Settings) *StemChannel {
	return &StemChannel{
		stem:       stem,
		pair:       pair,
		busted:     busted,
		settings:   s,
		sampleRate: pair.sampleRate,
		volume:     1.0,
	}
}

func (c *StemChannel) Stem() Stem { return c.stem }

// Volume returns the stem's logical volume, which the dry lane tracks.
func (c *StemChannel) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.volume
}

// SetVolume slides the dry lane to volume and the wet lane to its share
// of it (zero while reverb is off). Any busted playback in progress is
// faded out: a fresh volume write means the miss moment has passed.
func (c *StemChannel) SetVolume(volume float64) {
	c.mu.Lock()
	c.volume = volume
	reverb := c.reverbActive
	c.mu.Unlock()

	c.pair.dry.graphCh.Volume().Slide(volume, volumeSlide, c.sampleRate)

	wet := 0.0
	if reverb {
		wet = volume * c.settings.ReverbVolumeMultiplier
	}
	c.pair.wet.graphCh.Volume().Slide(wet, volumeSlide, c.sampleRate)

	if c.busted != nil {
		c.busted.silence(bustedSilenceSlide)
	}
}

// SetWhammyPitch bends the stem down by percent of the configured whammy
// depth. Percent 0 is exact identity, which also resets the shifter's
// internal drift; the periodic drift tick depends on that.
func (c *StemChannel) SetWhammyPitch(percent float64) {
	if percent < 0 {
		percent = 0
	} else if percent > 1 {
		percent = 1
	}

	c.mu.Lock()
	c.whammyPercent = percent
	c.mu.Unlock()

	ratio := 1.0
	if percent != 0 {
		ratio = math.Exp2(-c.settings.WhammyPitchShiftAmount * percent / 12)
	}
	c.pair.setPitchRatio(ratio)
}

// WhammyPitch reports the current bend percent, or 0 when the stem has no
// pitch effect at all.
func (c *StemChannel) WhammyPitch() float64 {
	if !c.pair.hasPitch() {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.whammyPercent
}

// SetReverb toggles the reverb voicing chain on the wet lane and slides
// both lanes to their new balance. Calling with the current state is a
// no-op, so the effect chain is never built or torn down twice.
func (c *StemChannel) SetReverb(active bool) {
	c.mu.Lock()
	if active == c.reverbActive {
		c.mu.Unlock()
		return
	}
	c.reverbActive = active
	volume := c.volume
	c.mu.Unlock()

	if active {
		c.pair.enableReverb()
		c.pair.dry.graphCh.Volume().Slide(volume, reverbSlideIn, c.sampleRate)
		wet := volume * c.settings.ReverbVolumeMultiplier
		c.pair.wet.graphCh.Volume().Slide(wet, reverbSlideIn, c.sampleRate)
		return
	}

	c.pair.disableReverb()
	c.pair.dry.graphCh.Volume().Slide(volume, reverbSlideOut, c.sampleRate)
	c.pair.wet.graphCh.Volume().Slide(0, reverbSlideOut, c.sampleRate)
}

// ReverbActive reports whether reverb is currently engaged.
func (c *StemChannel) ReverbActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.reverbActive
}

// PlayBustedNote triggers the miss effect on the busted companion. Stems
// without one ignore the call.
func (c *StemChannel) PlayBustedNote() {
	if c.busted == nil {
		return
	}
	c.busted.Play(0)
}

// Busted returns the miss-effect companion, or nil.
func (c *StemChannel) Busted() *BustedChannel { return c.busted }

// restore reapplies control state onto a freshly derived channel without
// slides; used when a seek rebuilds the channel set.
func (c *StemChannel) restore(volume float64, reverb bool, whammy float64) {
	c.mu.Lock()
	c.volume = volume
	c.reverbActive = reverb
	c.mu.Unlock()

	wet := 0.0
	if reverb {
		c.pair.enableReverb()
		wet = volume * c.settings.ReverbVolumeMultiplier
	}
	c.pair.dry.graphCh.Volume().Set(volume)
	c.pair.wet.graphCh.Volume().Set(wet)
	c.SetWhammyPitch(whammy)
}

// whammyAtRest reports whether the bend is currently at identity; the
// drift tick re-asserts identity on exactly these channels.
func (c *StemChannel) whammyAtRest() bool {
	if !c.pair.hasPitch() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.whammyPercent < 1e-9
}

// dispose releases the pair and the busted companion.
func (c *StemChannel) dispose() error {
	err := c.pair.dispose()
	if c.busted != nil {
		if berr := c.busted.dispose(); berr != nil && err == nil {
			err = berr
		}
	}
	return err
}
