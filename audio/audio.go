// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

type Source interface {
	// SampleRate of the PCM stream in Hz.
	SampleRate() int
	// Channels count (e.g., 1=mono, 2=stereo).
	Channels() int
	// ReadSamples fills dst with interleaved float32 samples in [-1,1].
	// Returns number of float32 values written (not frames). When n == 0
	// with err == io.EOF, the stream is finished.
	ReadSamples(dst []float32) (n int, err error)

	// Close releases any resources.
	Close() error
}

// Seeker is implemented by sources that support frame-accurate seeking.
// Frame 0 is the start of the stream.
type Seeker interface {
	SeekFrame(frame int64) error
}

// Positioner is implemented by sources that can report the frame about to
// be read next.
type Positioner interface {
	CurrentFrame() int64
}

// Lengther is implemented by sources whose total length is known up front.
type Lengther interface {
	TotalFrames() int64
}

// Decoder constructs a Source from a seekable input.
type Decoder interface {
	Decode(r io.ReadSeeker) (Source, error)
}

// Registry holds decoders by format key (e.g., "wav", "mp3", "ogg vorbis")
// in registration order.
type Registry struct {
	mtx *sync.Mutex

	order  []string
	codecs map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[string]Decoder),
		mtx:    &sync.Mutex{},
	}
}

func (r *Registry) Register(format string, d Decoder) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if _, ok := r.codecs[format]; !ok {
		r.order = append(r.order, format)
	}
	r.codecs[format] = d
}

func (r *Registry) Get(format string) (Decoder, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	d, ok := r.codecs[format]
	return d, ok
}

// Open decodes audio held in memory, trying every registered decoder in
// registration order. The data slice is retained by the returned Source,
// so callers may open the same bytes several times to obtain independent
// read cursors over one stem.
func (r *Registry) Open(data []byte) (Source, error) {
	r.mtx.Lock()
	order := make([]string, len(r.order))
	copy(order, r.order)
	codecs := make(map[string]Decoder, len(r.codecs))
	for k, v := range r.codecs {
		codecs[k] = v
	}
	r.mtx.Unlock()

	if len(order) == 0 {
		return nil, ErrNoDecoders
	}

	var firstErr error
	for _, format := range order {
		src, err := codecs[format].Decode(bytes.NewReader(data))
		if err == nil {
			return src, nil
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", format, err)
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrUnknownFormat, firstErr)
}
