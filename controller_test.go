// SPDX-License-Identifier: EPL-2.0

package stemmix

import (
	"math"
	"testing"
)

func newTestController(t *testing.T, stems ...Stem) (*MixerController, *StemMixer) {
	t.Helper()

	m, _ := newTestMixer(t, quietSettings())
	addTestStems(t, m, stems...)
	return NewMixerController(m), m
}

func TestGroupController_MuteFloorOnlyWhenMuting(t *testing.T) {
	t.Parallel()

	c, m := newTestController(t, StemGuitar)
	g := c.Group("guitars", StemGuitar)
	g.AddPlayer()
	g.AddPlayer() // three players total

	ch, _ := m.Channel(StemGuitar)

	// All three miss: weighted volume would hit 0, but the floor holds
	// the stem at half volume.
	g.Mute()
	g.Mute()
	g.Mute()
	if got := ch.pair.dry.graphCh.Volume().Target(); math.Abs(got-muteFloor) > 1e-12 {
		t.Errorf("volume with all players muted = %v, want floor %v", got, muteFloor)
	}

	// Unmuting applies the raw weighting with no floor: one of three
	// players back in gives exactly one third.
	g.Unmute()
	want := 1.0 / 3.0
	if got := ch.pair.dry.graphCh.Volume().Target(); math.Abs(got-want) > 1e-12 {
		t.Errorf("volume with one player unmuted = %v, want %v", got, want)
	}
}

func TestGroupController_SinglePlayerNoFloor(t *testing.T) {
	t.Parallel()

	c, m := newTestController(t, StemGuitar)
	g := c.Group("solo", StemGuitar)

	g.Mute()

	ch, _ := m.Channel(StemGuitar)
	if got := ch.pair.dry.graphCh.Volume().Target(); got != 0 {
		t.Errorf("single-player muted volume = %v, want 0 (no floor)", got)
	}
}

func TestGroupController_ReverbRefCount(t *testing.T) {
	t.Parallel()

	c, m := newTestController(t, StemGuitar)
	g := c.Group("guitars", StemGuitar)

	ch, _ := m.Channel(StemGuitar)

	g.AddReverb()
	g.AddReverb()
	if !ch.ReverbActive() {
		t.Fatal("reverb inactive after AddReverb")
	}
	if got := g.ReverbRefs(); got != 2 {
		t.Fatalf("ReverbRefs() = %d, want 2", got)
	}

	// One holder releasing must not cut reverb for the other.
	g.RemoveReverb()
	if !ch.ReverbActive() {
		t.Error("reverb dropped while a reference remains")
	}

	g.RemoveReverb()
	if ch.ReverbActive() {
		t.Error("reverb still active with zero references")
	}

	// Extra removes do not underflow.
	g.RemoveReverb()
	if got := g.ReverbRefs(); got != 0 {
		t.Errorf("ReverbRefs() after extra remove = %d, want 0", got)
	}
}

func TestGroupController_Whammy(t *testing.T) {
	t.Parallel()

	s := quietSettings()
	s.UseWhammyFx = true
	s.WhammyWindow = 512
	m, _ := newTestMixer(t, s)
	addTestStems(t, m, StemGuitar, StemSong)

	c := NewMixerController(m)
	g := c.Group("all", StemGuitar, StemSong)
	g.SetWhammy(0.5)

	guitar, _ := m.Channel(StemGuitar)
	if got := guitar.WhammyPitch(); got != 0.5 {
		t.Errorf("guitar whammy = %v, want 0.5", got)
	}
}

func TestMixerController_ResolveStem(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t, StemSong, StemRhythm)

	tests := []struct {
		in   Stem
		want Stem
	}{
		{StemRhythm, StemRhythm},
		{StemBass, StemRhythm}, // bass falls back to rhythm
		{StemGuitar, StemSong}, // anything else falls back to the song
		{StemSong, StemSong},
	}
	for _, tt := range tests {
		if got := c.ResolveStem(tt.in); got != tt.want {
			t.Errorf("ResolveStem(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestMixerController_GroupDeduplicates(t *testing.T) {
	t.Parallel()

	// Bass and rhythm both resolve to rhythm; the group must hold it
	// once, not twice.
	c, _ := newTestController(t, StemSong, StemRhythm)
	g := c.Group("rhythm section", StemBass, StemRhythm)

	if got := g.Stems(); len(got) != 1 || got[0] != StemRhythm {
		t.Errorf("group stems = %v, want [rhythm]", got)
	}

	// Same name returns the same controller.
	if c.Group("rhythm section") != g {
		t.Error("Group() with known name built a new controller")
	}
}
