// SPDX-License-Identifier: EPL-2.0

package vorbis

import (
	"fmt"
	"io"

	"github.com/ik5/stemmix/audio"
	"github.com/jfreymuth/oggvorbis"
)

// oggReader is an interface for oggvorbis.Reader to allow testing
type oggReader interface {
	SampleRate() int
	Channels() int
	Read([]float32) (int, error)
	SetPosition(int64) error
	Position() int64
	Length() int64
}

type source struct {
	dec        oggReader
	sampleRate int
	channels   int
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return s.channels }
func (s *source) Close() error    { return nil }

// CurrentFrame reports the decoder's position in frames.
func (s *source) CurrentFrame() int64 { return s.dec.Position() }

// TotalFrames reports the stream length in frames per channel.
func (s *source) TotalFrames() int64 { return s.dec.Length() }

func (s *source) SeekFrame(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	if total := s.dec.Length(); total > 0 && frame > total {
		frame = total
	}
	if err := s.dec.SetPosition(frame); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst)%s.channels != 0 {
		return 0, audio.ErrInvalidDstSize
	}

	// oggvorbis reads interleaved float32 directly; only whole frames
	// are handed back to the caller.
	n, err := s.dec.Read(dst)
	n -= n % s.channels
	if n == 0 && err == nil {
		return 0, nil
	}
	return n, err
}

type Decoder struct{}

func (Decoder) Decode(r io.ReadSeeker) (audio.Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	return &source{
		dec:        dec,
		sampleRate: dec.SampleRate(),
		channels:   dec.Channels(),
	}, nil
}
