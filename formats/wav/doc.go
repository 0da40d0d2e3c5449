// SPDX-License-Identifier: EPL-2.0

// Package wav decodes 16-bit PCM WAV stems into audio.Source streams with
// frame-accurate seeking over the data chunk.
package wav
