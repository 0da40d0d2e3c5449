// SPDX-License-Identifier: EPL-2.0

package mp3

import (
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/ik5/stemmix/audio"
)

// bytesPerFrame is go-mp3's fixed output layout: stereo 16-bit.
const bytesPerFrame = 4

// mp3Reader is an interface for gomp3.Decoder to allow testing
type mp3Reader interface {
	Read([]byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Length() int64
	SampleRate() int
}

type source struct {
	dec        mp3Reader
	sampleRate int
	pos        int64
	buf        []byte
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return 2 }
func (s *source) Close() error    { return nil }

func (s *source) CurrentFrame() int64 { return s.pos }

// TotalFrames derives the frame count from the decoded byte length, -1
// when go-mp3 cannot determine it.
func (s *source) TotalFrames() int64 {
	l := s.dec.Length()
	if l <= 0 {
		return -1
	}
	return l / bytesPerFrame
}

func (s *source) SeekFrame(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	if total := s.TotalFrames(); total >= 0 && frame > total {
		frame = total
	}

	if _, err := s.dec.Seek(frame*bytesPerFrame, io.SeekStart); err != nil {
		return fmt.Errorf("%w", err)
	}
	s.pos = frame
	return nil
}

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst)%2 != 0 {
		return 0, audio.ErrInvalidDstSize
	}

	// go-mp3 returns 16-bit little-endian PCM bytes (stereo interleaved)
	bytesNeeded := len(dst) * 2
	if cap(s.buf) < bytesNeeded {
		s.buf = make([]byte, bytesNeeded)
	}
	s.buf = s.buf[:bytesNeeded]

	n, err := s.dec.Read(s.buf)
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, nil
	}

	samples := n / 2
	samples -= samples % 2
	for i := range samples {
		low := uint16(s.buf[2*i])
		high := uint16(s.buf[2*i+1])
		val := int16(low | (high << 8))
		dst[i] = float32(val) / 32768.0
	}

	s.pos += int64(samples / 2)
	return samples, err
}

type Decoder struct{}

func (Decoder) Decode(r io.ReadSeeker) (audio.Source, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	// go-mp3 always outputs stereo 16-bit at the file's sample rate
	return &source{
		dec:        dec,
		sampleRate: dec.SampleRate(),
		buf:        make([]byte, 8192),
	}, nil
}
