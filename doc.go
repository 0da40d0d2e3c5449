// SPDX-License-Identifier: EPL-2.0

// Package stemmix plays multi-stem songs as one synchronized mix with
// real-time tempo, pitch and loudness control.
//
// # Structure
//
// A StemMixer owns the mixing graph, one StemChannel per stem, the master
// tempo/pitch stage, and a background Normalizer that steers the overall
// gain toward a target loudness. Each StemChannel wraps a ChannelPair -
// a dry lane and a reverb-capable wet lane decoded independently from the
// same bytes - and, for pitch-bendable stems, a BustedChannel that plays
// the randomized miss effect.
//
// # Transport
//
// Play, Pause, SetPosition and SetSpeed drive the whole mix. Position is
// tracked in source frames, so it reports song time regardless of the
// playback speed, and is compensated for the whammy effect's inherent
// latency. Seeking rebuilds every channel from its cached bytes to flush
// graph read-ahead.
//
// # Threads
//
// Control calls, the background analysis task and the device's pull
// goroutine only share one value without a lock: the master gain scalar,
// an atomic float whose updates are bounded per analysis window.
package stemmix
