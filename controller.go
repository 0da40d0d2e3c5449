// SPDX-License-Identifier: EPL-2.0

package stemmix

import "sync"

// muteFloor is the lowest fraction of a group's volume that muting can
// reach when more than one player shares the group. The floor only
// applies while lowering; raising the volume back is never clamped.
const muteFloor = 0.5

// GroupController fans control over a set of stems shared by several
// players: player-count-weighted mute volume and reference-counted
// reverb, so one player releasing reverb does not cut it for the rest.
type GroupController struct {
	mixer *StemMixer
	stems []Stem

	mu         sync.Mutex
	players    int
	muted      int
	volume     float64
	reverbRefs int
}

func newGroupController(m *StemMixer, stems []Stem) *GroupController {
	return &GroupController{
		mixer:   m,
		stems:   stems,
		players: 1,
		volume:  1.0,
	}
}

// Stems returns the stems the group controls.
func (g *GroupController) Stems() []Stem {
	out := make([]Stem, len(g.stems))
	copy(out, g.stems)
	return out
}

// AddPlayer registers one more player on the group.
func (g *GroupController) AddPlayer() {
	g.mu.Lock()
	g.players++
	g.mu.Unlock()
	g.apply(false)
}

// RemovePlayer unregisters a player; the mute count shrinks with it.
func (g *GroupController) RemovePlayer() {
	g.mu.Lock()
	if g.players > 1 {
		g.players--
	}
	if g.muted > g.players {
		g.muted = g.players
	}
	g.mu.Unlock()
	g.apply(false)
}

// Mute marks one more player as missing and lowers the group volume by
// their share, never below the floor on multi-player groups.
func (g *GroupController) Mute() {
	g.mu.Lock()
	if g.muted < g.players {
		g.muted++
	}
	g.mu.Unlock()
	g.apply(true)
}

// Unmute restores one player's share of the volume. No floor applies in
// this direction.
func (g *GroupController) Unmute() {
	g.mu.Lock()
	if g.muted > 0 {
		g.muted--
	}
	g.mu.Unlock()
	g.apply(false)
}

// SetVolume changes the group's full volume and reapplies the current
// mute weighting.
func (g *GroupController) SetVolume(volume float64) {
	g.mu.Lock()
	g.volume = volume
	g.mu.Unlock()
	g.apply(false)
}

// Volume reports the effective group volume after mute weighting.
func (g *GroupController) Volume() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.weightedLocked(false)
}

// weightedLocked computes the player-weighted volume. Callers hold g.mu.
func (g *GroupController) weightedLocked(muting bool) float64 {
	v := g.volume * float64(g.players-g.muted) / float64(g.players)
	if muting && g.players > 1 && v < g.volume*muteFloor {
		v = g.volume * muteFloor
	}
	return v
}

func (g *GroupController) apply(muting bool) {
	g.mu.Lock()
	v := g.weightedLocked(muting)
	g.mu.Unlock()

	for _, stem := range g.stems {
		g.mixer.SetVolume(stem, v)
	}
}

// AddReverb takes one reverb reference; the first one engages the effect
// on every stem in the group.
func (g *GroupController) AddReverb() {
	g.mu.Lock()
	g.reverbRefs++
	engage := g.reverbRefs == 1
	g.mu.Unlock()

	if engage {
		for _, stem := range g.stems {
			g.mixer.SetReverb(stem, true)
		}
	}
}

// RemoveReverb drops one reference; the last one releases the effect.
func (g *GroupController) RemoveReverb() {
	g.mu.Lock()
	if g.reverbRefs == 0 {
		g.mu.Unlock()
		return
	}
	g.reverbRefs--
	release := g.reverbRefs == 0
	g.mu.Unlock()

	if release {
		for _, stem := range g.stems {
			g.mixer.SetReverb(stem, false)
		}
	}
}

// ReverbRefs reports the outstanding reverb references.
func (g *GroupController) ReverbRefs() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.reverbRefs
}

// SetWhammy bends every pitch-bendable stem in the group.
func (g *GroupController) SetWhammy(percent float64) {
	for _, stem := range g.stems {
		if stem.PitchBendable() {
			g.mixer.SetWhammyPitch(stem, percent)
		}
	}
}

// PlayBustedNote triggers the miss effect on every stem in the group
// that has one.
func (g *GroupController) PlayBustedNote() {
	for _, stem := range g.stems {
		g.mixer.PlayBustedNote(stem)
	}
}

// MixerController maps gameplay roles onto the stems a song actually
// ships with and owns the per-role group controllers.
type MixerController struct {
	mixer *StemMixer

	mu     sync.Mutex
	groups map[string]*GroupController
}

func NewMixerController(m *StemMixer) *MixerController {
	return &MixerController{
		mixer:  m,
		groups: make(map[string]*GroupController),
	}
}

// ResolveStem maps a requested stem to one present in the mix: bass and
// rhythm substitute for each other, and anything still missing falls back
// to the song stem.
func (c *MixerController) ResolveStem(stem Stem) Stem {
	if _, ok := c.mixer.Channel(stem); ok {
		return stem
	}

	switch stem {
	case StemBass:
		if _, ok := c.mixer.Channel(StemRhythm); ok {
			return StemRhythm
		}
	case StemRhythm:
		if _, ok := c.mixer.Channel(StemBass); ok {
			return StemBass
		}
	}
	return StemSong
}

// Group returns the named controller, creating it over the resolved
// stems on first use.
func (c *MixerController) Group(name string, stems ...Stem) *GroupController {
	c.mu.Lock()
	defer c.mu.Unlock()

	if g, ok := c.groups[name]; ok {
		return g
	}

	resolved := make([]Stem, 0, len(stems))
	for _, stem := range stems {
		r := c.ResolveStem(stem)
		seen := false
		for _, have := range resolved {
			if have == r {
				seen = true
				break
			}
		}
		if !seen {
			resolved = append(resolved, r)
		}
	}

	g := newGroupController(c.mixer, resolved)
	c.groups[name] = g
	return g
}
