// SPDX-License-Identifier: EPL-2.0

package aiff

import (
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/ik5/stemmix/audio"
)

// source wraps go-audio aiff.Decoder to implement audio.Source. The
// library offers no random access, so SeekFrame re-creates the decoder
// from the underlying reader and skips forward. Stems are seeked rarely
// (position changes re-derive the whole channel), so the cost is fine.
type source struct {
	r          io.ReadSeeker
	dec        *aiff.Decoder
	sampleRate int
	channels   int
	total      int64
	pos        int64

	intBuf *goaudio.IntBuffer
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return s.channels }
func (s *source) Close() error    { return nil }

func (s *source) TotalFrames() int64  { return s.total }
func (s *source) CurrentFrame() int64 { return s.pos }

func (s *source) SeekFrame(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	if frame > s.total {
		frame = s.total
	}

	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w", err)
	}
	dec := aiff.NewDecoder(s.r)
	dec.ReadInfo()
	s.dec = dec
	s.pos = 0

	// Skip forward to the target frame.
	skip := frame
	scratch := make([]float32, 4096*s.channels)
	for skip > 0 {
		want := int64(len(scratch)) / int64(s.channels)
		if want > skip {
			want = skip
		}
		n, err := s.ReadSamples(scratch[:want*int64(s.channels)])
		if n == 0 {
			if err != nil && err != io.EOF {
				return fmt.Errorf("%w", err)
			}
			break
		}
		skip -= int64(n / s.channels)
	}
	return nil
}

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if len(dst)%s.channels != 0 {
		return 0, audio.ErrInvalidDstSize
	}

	if s.intBuf == nil || cap(s.intBuf.Data) < len(dst) {
		s.intBuf = &goaudio.IntBuffer{
			Data:   make([]int, len(dst)),
			Format: s.dec.Format(),
		}
	}
	s.intBuf.Data = s.intBuf.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.intBuf)
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	n -= n % s.channels
	for i := 0; i < n; i++ {
		dst[i] = float32(s.intBuf.Data[i]) / 32768.0
	}

	s.pos += int64(n / s.channels)
	if err == nil && (n < len(dst) || s.pos >= s.total) {
		return n, io.EOF
	}
	return n, err
}

type Decoder struct{}

// Decode validates the AIFF container and returns a 16-bit PCM source.
func (Decoder) Decode(r io.ReadSeeker) (audio.Source, error) {
	dec := aiff.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotAiffFile
	}

	dec.ReadInfo()

	if dec.BitDepth != 16 {
		return nil, ErrOnlyPCM16bitSupported
	}

	format := dec.Format()
	if format == nil || format.NumChannels < 1 {
		return nil, ErrUnsupportedAiffLayout
	}

	return &source{
		r:          r,
		dec:        dec,
		sampleRate: format.SampleRate,
		channels:   format.NumChannels,
		total:      int64(dec.NumSampleFrames),
	}, nil
}
