// SPDX-License-Identifier: EPL-2.0

// Package audio provides the low-level mixing primitives the stem engine
// is built on.
//
// This package contains the building blocks that higher layers assemble
// into a playback session:
//   - Source interface for audio input
//   - Graph for summing many inputs with panning, delay and volume ramps
//   - Attribute for click-free slid parameter changes
//   - MemorySource for decoded, seekable in-memory clones
//   - LevelMeter for windowed RMS loudness measurement
//   - Resampler for rate conversion and speed scaling
//   - MonoMixer for channel fold-down
//   - Registry for decoder registration and open-from-bytes
//
// # Source Interface
//
// The Source interface is the foundation of the processing chain:
//
//	type Source interface {
//	    SampleRate() int
//	    Channels() int
//	    ReadSamples(dst []float32) (int, error)
//	    Close() error
//	}
//
// Decoders, effects chains and the mixing graph itself all implement it,
// so pipelines compose freely: stem decoders feed a Graph, the Graph feeds
// the tempo stage, and the tempo stage feeds the output device.
//
// Sources that can seek additionally implement Seeker; sources with a
// known length implement Lengther. Capability checks replace a fat
// mandatory interface because several decoders genuinely cannot seek.
//
// # Mixing Graph
//
// Graph sums registered channels into one interleaved stream:
//
//	g := audio.NewGraph(44100, 2)
//	ch, err := g.AddChannel(src, audio.ChannelConfig{DelayFrames: 8192})
//	ch.Volume().Slide(0.5, 200*time.Millisecond, 44100)
//
// Per-channel routing accepts an explicit pan matrix (rows per graph
// output channel) or falls back to sensible defaults. Insertion delay is
// rendered as leading silence, which keeps stems aligned when some of
// them pass through a latency-adding pitch effect.
//
// # Sample Format
//
// Audio samples are represented as float32 in the range [-1.0, 1.0]:
//   - 0.0 represents silence
//   - 1.0 represents maximum positive amplitude
//   - -1.0 represents maximum negative amplitude
//
// # Error Handling
//
// Processing functions return io.EOF when no more data is available.
// Other errors indicate problems with the source or processing.
package audio
