// SPDX-License-Identifier: EPL-2.0

// Package mp3 decodes MP3 stems via github.com/hajimehoshi/go-mp3, exposing
// frame-accurate seeking over the decoded PCM stream.
package mp3
