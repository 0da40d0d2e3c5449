// SPDX-License-Identifier: EPL-2.0

package stemmix

import "github.com/ik5/stemmix/fx"

// Settings is the external configuration surface the mixer reads at the
// points where playback behavior branches. The mixer never mutates it.
type Settings struct {
	// UseWhammyFx enables the per-stem whammy pitch-bend effect. When
	// on, pitch-bendable stems carry a pitch shifter and every other
	// stem is delayed by the shifter's latency so the mix stays aligned.
	UseWhammyFx bool

	// ChipmunkSpeedup lets SetSpeed shift pitch along with tempo.
	ChipmunkSpeedup bool

	// EnableNormalization turns on background loudness analysis.
	EnableNormalization bool

	// WhammyPitchShiftAmount is the bend depth in semitones at a fully
	// pressed whammy (percent 1.0).
	WhammyPitchShiftAmount float64

	// WhammyWindow is the pitch shifter's processing window in frames.
	// It fixes the shifter's inherent latency.
	WhammyWindow int

	// ReverbVolumeMultiplier scales the wet stream's volume relative to
	// the dry stream while reverb is engaged.
	ReverbVolumeMultiplier float64
}

// DefaultSettings returns the stock configuration.
func DefaultSettings() *Settings {
	return &Settings{
		UseWhammyFx:            true,
		ChipmunkSpeedup:        false,
		EnableNormalization:    true,
		WhammyPitchShiftAmount: 1,
		WhammyWindow:           fx.DefaultPitchWindow,
		ReverbVolumeMultiplier: 0.7,
	}
}
