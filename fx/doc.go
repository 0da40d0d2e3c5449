// SPDX-License-Identifier: EPL-2.0

// Package fx provides the effect kernels of the stem engine: pitch
// shifting, the master tempo/pitch stage, EQ, reverb and dynamics.
//
// All kernels implement Processor and operate in place on interleaved
// float32 buffers. Chain wraps an audio.Source with an ordered,
// runtime-mutable processor list, which is how per-stem effect stacks
// (whammy pitch, reverb voicing, busted dynamics) are attached without
// the mixing graph knowing anything about effects.
package fx
