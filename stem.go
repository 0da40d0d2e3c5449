// SPDX-License-Identifier: EPL-2.0

package stemmix

import "math"

// Stem identifies one track of a multi-stem song.
type Stem int

const (
	StemSong Stem = iota
	StemGuitar
	StemBass
	StemRhythm
	StemKeys
	StemDrums
	StemVocals
	StemCrowd
	StemSfx
)

var stemNames = map[Stem]string{
	StemSong:   "song",
	StemGuitar: "guitar",
	StemBass:   "bass",
	StemRhythm: "rhythm",
	StemKeys:   "keys",
	StemDrums:  "drums",
	StemVocals: "vocals",
	StemCrowd:  "crowd",
	StemSfx:    "sfx",
}

func (s Stem) String() string {
	if name, ok := stemNames[s]; ok {
		return name
	}
	return "unknown"
}

// PitchBendable reports whether the stem reacts to whammy pitch bending.
// Only the guitar-family stems do; everything else is routed around the
// pitch effect (and delayed to stay time-aligned with it).
func (s Stem) PitchBendable() bool {
	switch s {
	case StemGuitar, StemBass, StemRhythm:
		return true
	}
	return false
}

// StemInfo describes how one stem is carved out of a decoded source: which
// source channels it occupies and, optionally, where each of them sits in
// the stereo field.
type StemInfo struct {
	Stem Stem

	// Indices selects the source channels belonging to this stem. Nil
	// means the whole source.
	Indices []int

	// Panning holds one pan position in [-1, 1] per selected channel
	// (left to right). Nil means default routing.
	Panning []float64
}

// matrix expands the pan positions into a stereo mixing matrix: one row of
// per-input gains for the left output, one for the right, equal-power law.
func (i StemInfo) matrix() [][]float32 {
	if i.Panning == nil {
		return nil
	}

	left := make([]float32, len(i.Panning))
	right := make([]float32, len(i.Panning))
	for k, pan := range i.Panning {
		if pan < -1 {
			pan = -1
		} else if pan > 1 {
			pan = 1
		}
		angle := (pan + 1) * math.Pi / 4
		left[k] = float32(math.Cos(angle))
		right[k] = float32(math.Sin(angle))
	}
	return [][]float32{left, right}
}
