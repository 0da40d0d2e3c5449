// SPDX-License-Identifier: EPL-2.0

package stemmix

import (
	"github.com/ik5/stemmix/audio"
	"github.com/ik5/stemmix/formats/aiff"
	"github.com/ik5/stemmix/formats/mp3"
	"github.com/ik5/stemmix/formats/vorbis"
	"github.com/ik5/stemmix/formats/wav"
)

// DefaultRegistry returns a decoder registry covering every stem format
// the engine ships with. Formats with unambiguous magic come first so
// sniffing never falls through to the frame-sync scan of the mp3 decoder.
func DefaultRegistry() *audio.Registry {
	r := audio.NewRegistry()
	r.Register("wav", wav.Decoder{})
	r.Register("ogg vorbis", vorbis.Decoder{})
	r.Register("aiff", aiff.Decoder{})
	r.Register("mp3", mp3.Decoder{})
	return r
}
