// SPDX-License-Identifier: EPL-2.0

// Package vorbis decodes Ogg Vorbis stems via github.com/jfreymuth/oggvorbis.
// Seeking maps directly onto the library's sample positioning.
package vorbis
